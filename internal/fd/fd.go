// Package fd implements the per-process file descriptor table (C10).
//
// Grounded in the teacher's device-table pattern (vm.MMIO maps a fixed address to a
// driver): here a small integer maps to a fixed-capacity slot instead, with no dup or
// inheritance semantics in this revision (spec §4.10: "FDs are not inherited or dup'd").
package fd

import "errors"

// Capacity is the number of descriptor slots a process is given.
const Capacity = 16

// Entry is one open file's bookkeeping: its name, the process's current offset into it,
// and the flags it was opened with.
type Entry struct {
	Name   string
	Offset uint32
	Flags  uint8
	used   bool
}

// Flags bits for Entry.Flags.
const (
	FlagRead  uint8 = 1 << 0
	FlagWrite uint8 = 1 << 1
)

// ErrNoFreeSlot is returned when every slot in the table is occupied.
var ErrNoFreeSlot = errors.New("fd: no free descriptor slot")

// ErrBadDescriptor is returned when a descriptor number refers to an unused or
// out-of-range slot.
var ErrBadDescriptor = errors.New("fd: bad descriptor")

// Table is a process's fixed-capacity file descriptor table.
type Table struct {
	entries [Capacity]Entry
}

// Alloc reserves the first free slot for name opened with flags and returns its
// descriptor number, defaulting Offset to 0 (spec §4.10).
func (t *Table) Alloc(name string, flags uint8) (int, error) {
	for i := range t.entries {
		if !t.entries[i].used {
			t.entries[i] = Entry{Name: name, Flags: flags, used: true}
			return i, nil
		}
	}

	return -1, ErrNoFreeSlot
}

// Get returns the entry at fd, or ErrBadDescriptor if fd is out of range or unused.
func (t *Table) Get(fd int) (*Entry, error) {
	if fd < 0 || fd >= Capacity || !t.entries[fd].used {
		return nil, ErrBadDescriptor
	}

	return &t.entries[fd], nil
}

// Close zeroes the slot at fd, freeing it for reuse.
func (t *Table) Close(fd int) error {
	if fd < 0 || fd >= Capacity || !t.entries[fd].used {
		return ErrBadDescriptor
	}

	t.entries[fd] = Entry{}

	return nil
}

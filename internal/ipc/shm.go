package ipc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rost-kernel/rost/internal/mm"
)

// MaxShmRegions is a process's shared-memory table capacity (spec §3:
// "a shared-memory table (up to 32 regions)").
const MaxShmRegions = 32

var (
	// ErrOutOfMemory is returned when a process's SHM table is full or
	// frame allocation fails (spec §7: OutOfMemory).
	ErrOutOfMemory = errors.New("ipc: out of memory")

	// ErrNotFound is returned when an id is absent from the relevant table
	// or registry.
	ErrNotFound = errors.New("ipc: shm region not found")
)

// Region is a shared-memory region's bookkeeping (spec §3). physicalAddr is
// immutable for the region's lifetime; refCount and the per-table mapped
// state are the only mutable fields.
type Region struct {
	mut sync.Mutex

	id           int32
	sizeBytes    uint32
	physicalAddr mm.Frame
	ownerPID     uint32
	refCount     int32
}

// ID returns the region's identifier.
func (r *Region) ID() int32 { return r.id }

// SizeBytes returns the region's size, rounded up to a page multiple.
func (r *Region) SizeBytes() uint32 { return r.sizeBytes }

// PhysicalAddr returns the region's backing physical frame.
func (r *Region) PhysicalAddr() mm.Frame { return r.physicalAddr }

// RefCount returns the region's current reference count.
func (r *Region) RefCount() int32 {
	r.mut.Lock()
	defer r.mut.Unlock()

	return r.refCount
}

// mapping is one process's view of a region it has create'd or mapped: the
// canonical *Region plus this process's own mapped-virtual-address state
// (spec §3: "mapped_virtual_addr: option" is per-mapping, not per-region).
type mapping struct {
	region  *Region
	mapped  bool
	virtual uint64
}

// Table is a process's shared-memory table: the ids it has created or
// mapped, up to MaxShmRegions (spec §3).
type Table struct {
	mut     sync.Mutex
	entries map[int32]*mapping
}

// NewTable returns an empty shared-memory table.
func NewTable() *Table {
	return &Table{entries: make(map[int32]*mapping)}
}

// Manager allocates and tracks shared-memory regions across every process,
// grounded in the same bump allocator C1 uses for page frames (spec §4.13:
// "allocate contiguous physical frames via C1").
type Manager struct {
	mut      sync.Mutex
	alloc    *mm.Allocator
	nextID   int32
	registry map[int32]*Region
}

// NewManager returns a manager drawing frames from alloc.
func NewManager(alloc *mm.Allocator) *Manager {
	return &Manager{alloc: alloc, registry: make(map[int32]*Region)}
}

func roundUpPages(sizeBytes uint32) int {
	n := (int(sizeBytes) + mm.PageSize - 1) / mm.PageSize
	if n == 0 {
		n = 1
	}

	return n
}

// Create allocates sizeBytes (rounded up to a page multiple) from the
// physical allocator, registers a fresh region owned by ownerPID, and
// enters it into owner's table with ref_count=1 (spec §4.13).
func (m *Manager) Create(owner *Table, ownerPID uint32, sizeBytes uint32) (int32, error) {
	pages := roundUpPages(sizeBytes)

	m.mut.Lock()

	frame, err := m.alloc.AllocatePages(pages)
	if err != nil {
		m.mut.Unlock()
		return 0, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	m.nextID++
	id := m.nextID

	region := &Region{
		id:           id,
		sizeBytes:    uint32(pages * mm.PageSize),
		physicalAddr: frame,
		ownerPID:     ownerPID,
		refCount:     1,
	}
	m.registry[id] = region
	m.mut.Unlock()

	owner.mut.Lock()
	defer owner.mut.Unlock()

	if len(owner.entries) >= MaxShmRegions {
		return 0, fmt.Errorf("%w: shm table full", ErrOutOfMemory)
	}

	owner.entries[id] = &mapping{region: region}

	return id, nil
}

// Map installs a region already present in owner's table into the caller's
// address space. Per spec §4.13, the per-process user table already covers
// 0..4GiB user-RWX (spec §4.3), so mapping is identity: the returned virtual
// address equals the region's physical address.
func (m *Manager) Map(owner *Table, id int32) (uint64, error) {
	owner.mut.Lock()
	defer owner.mut.Unlock()

	entry, ok := owner.entries[id]
	if !ok {
		return 0, ErrNotFound
	}

	entry.virtual = uint64(entry.region.physicalAddr)
	entry.mapped = true

	return entry.virtual, nil
}

// LiveChecker reports whether pid names a non-terminated process, letting
// MapFromProcess honor spec §4.13's "terminated processes are skipped
// during lookup" without internal/ipc importing internal/proc.
type LiveChecker interface {
	IsLive(pid uint32) bool
}

// MapFromProcess scans the global registry for id, skips it if its owner is
// no longer live, and otherwise enters it into owner's table (bumping
// ref_count) before mapping it (spec §4.13).
func (m *Manager) MapFromProcess(owner *Table, id int32, live LiveChecker) (uint64, error) {
	m.mut.Lock()
	region, ok := m.registry[id]
	m.mut.Unlock()

	if !ok {
		return 0, ErrNotFound
	}

	if live != nil && !live.IsLive(region.ownerPID) {
		return 0, ErrNotFound
	}

	owner.mut.Lock()
	if _, exists := owner.entries[id]; !exists {
		if len(owner.entries) >= MaxShmRegions {
			owner.mut.Unlock()
			return 0, fmt.Errorf("%w: shm table full", ErrOutOfMemory)
		}

		region.mut.Lock()
		region.refCount++
		region.mut.Unlock()

		owner.entries[id] = &mapping{region: region}
	}
	owner.mut.Unlock()

	return m.Map(owner, id)
}

// Unmap clears the caller's mapping and decrements the region's ref_count,
// without unmapping other processes' views of the same region (spec §4.13).
func (m *Manager) Unmap(owner *Table, id int32) error {
	owner.mut.Lock()
	entry, ok := owner.entries[id]
	owner.mut.Unlock()

	if !ok {
		return ErrNotFound
	}

	owner.mut.Lock()
	entry.mapped = false
	entry.virtual = 0
	owner.mut.Unlock()

	entry.region.mut.Lock()
	entry.region.refCount--
	entry.region.mut.Unlock()

	return nil
}

// Destroy removes owner's entry for id without reclaiming the region's
// frames (spec §4.13: "does not reclaim frames (leak accepted)").
func (m *Manager) Destroy(owner *Table, id int32) error {
	owner.mut.Lock()
	defer owner.mut.Unlock()

	if _, ok := owner.entries[id]; !ok {
		return ErrNotFound
	}

	delete(owner.entries, id)

	return nil
}

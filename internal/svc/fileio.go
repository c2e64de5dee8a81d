package svc

import (
	"errors"

	"github.com/rost-kernel/rost/internal/fd"
	"github.com/rost-kernel/rost/internal/fs"
	"github.com/rost-kernel/rost/internal/proc"
)

// consoleFD is the fixed descriptor every process inherits for stdout,
// bypassing the flat filesystem entirely (spec §4.9: write(1, ...) reaches
// the UART console).
const consoleFD = 1

func (k *Kernel) sysOpen(pid proc.PID, args [7]uint64) int64 {
	pathPtr, pathLen, flags := args[0], args[1], uint8(args[2])

	name, err := k.readUserString(pathPtr, pathLen)
	if err != nil {
		return int64(InvalidArgument)
	}

	if _, ok := k.fileSize(name); !ok {
		return int64(FileNotFound)
	}

	var fdNum int

	err = k.Processes.WithProcess(pid, func(p *proc.Process) error {
		n, allocErr := p.FDs.Alloc(name, flags)
		fdNum = n

		return allocErr
	})

	switch {
	case errors.Is(err, fd.ErrNoFreeSlot):
		return int64(OutOfMemory)
	case err != nil:
		return int64(InvalidArgument)
	}

	return int64(fdNum)
}

func (k *Kernel) sysClose(pid proc.PID, args [7]uint64) int64 {
	fdNum := int(args[0])

	err := k.Processes.WithProcess(pid, func(p *proc.Process) error {
		return p.FDs.Close(fdNum)
	})
	if err != nil {
		return int64(BadFileDescriptor)
	}

	return int64(Success)
}

// sysRead implements spec §4.9's read(fd, buf, n). A FD opened without
// FlagRead fails PermissionDenied (spec §7).
func (k *Kernel) sysRead(pid proc.PID, args [7]uint64) int64 {
	fdNum, bufPtr, count := int(args[0]), args[1], args[2]

	var entry fd.Entry

	err := k.Processes.WithProcess(pid, func(p *proc.Process) error {
		e, getErr := p.FDs.Get(fdNum)
		if getErr != nil {
			return getErr
		}

		entry = *e

		return nil
	})
	if err != nil {
		return int64(BadFileDescriptor)
	}

	if entry.Flags&fd.FlagRead == 0 {
		return int64(PermissionDenied)
	}

	size, ok := k.fileSize(entry.Name)
	if !ok {
		return int64(FileNotFound)
	}

	full := make([]byte, size)
	if _, err := k.FS.ReadFile(entry.Name, full); err != nil {
		return int64(FileNotFound)
	}

	if uint64(entry.Offset) >= uint64(size) {
		return 0
	}

	n := count
	avail := uint64(size) - uint64(entry.Offset)

	if n > avail {
		n = avail
	}

	chunk := full[entry.Offset : uint64(entry.Offset)+n]

	if _, err := k.Memory.WriteAt(bufPtr, chunk); err != nil {
		return int64(InvalidArgument)
	}

	if err := k.Processes.WithProcess(pid, func(p *proc.Process) error {
		e, getErr := p.FDs.Get(fdNum)
		if getErr != nil {
			return getErr
		}

		e.Offset += uint32(n)

		return nil
	}); err != nil {
		return int64(BadFileDescriptor)
	}

	return int64(n)
}

// sysWrite implements spec §4.9/§4.12's write(fd, buf, n): fd 1 goes
// straight to the console, otherwise the whole file is read, the caller's
// bytes are spliced in at the descriptor's offset, and the whole file is
// rewritten -- the flat filesystem has no partial-write or grow path (spec
// §4.12: files are pre-sized at create_file and never resized). A file FD
// opened without FlagWrite fails PermissionDenied (spec §7).
func (k *Kernel) sysWrite(pid proc.PID, args [7]uint64) int64 {
	fdNum, bufPtr, count := int(args[0]), args[1], args[2]

	chunk := make([]byte, count)
	if _, err := k.Memory.ReadAt(bufPtr, chunk); err != nil {
		return int64(InvalidArgument)
	}

	if fdNum == consoleFD {
		if k.Console != nil {
			_, _ = k.Console.Write(chunk)
		}

		return int64(count)
	}

	var entry fd.Entry

	err := k.Processes.WithProcess(pid, func(p *proc.Process) error {
		e, getErr := p.FDs.Get(fdNum)
		if getErr != nil {
			return getErr
		}

		entry = *e

		return nil
	})
	if err != nil {
		return int64(BadFileDescriptor)
	}

	if entry.Flags&fd.FlagWrite == 0 {
		return int64(PermissionDenied)
	}

	size, ok := k.fileSize(entry.Name)
	if !ok {
		return int64(FileNotFound)
	}

	if uint64(entry.Offset)+count > uint64(size) {
		return int64(InvalidArgument)
	}

	full := make([]byte, size)
	if _, err := k.FS.ReadFile(entry.Name, full); err != nil {
		return int64(FileNotFound)
	}

	copy(full[entry.Offset:], chunk)

	if err := k.FS.WriteFile(entry.Name, full); err != nil {
		return int64(InvalidArgument)
	}

	if err := k.Processes.WithProcess(pid, func(p *proc.Process) error {
		e, getErr := p.FDs.Get(fdNum)
		if getErr != nil {
			return getErr
		}

		e.Offset += uint32(count)

		return nil
	}); err != nil {
		return int64(BadFileDescriptor)
	}

	return int64(count)
}

var errPathTooLong = errors.New("svc: path exceeds name length")

func (k *Kernel) readUserString(ptr, length uint64) (string, error) {
	if length > fs.NameMaxLen {
		return "", errPathTooLong
	}

	buf := make([]byte, length)
	if _, err := k.Memory.ReadAt(ptr, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

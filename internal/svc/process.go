package svc

import (
	"github.com/rost-kernel/rost/internal/proc"
)

// sysExit implements spec §4.4/§4.9's exit(code): the process is marked a
// zombie and ExitSentinel is returned so the EL0-return glue (not this
// package, which has no real control-flow transfer to perform) knows to
// restore the kernel MMU context and reap the current thread instead of
// writing an ordinary result into X0.
func (k *Kernel) sysExit(pid proc.PID, _ [7]uint64) int64 {
	_ = k.Processes.Terminate(pid)
	k.Scheduler.TerminateCurrentAndYield()

	return ExitSentinel
}

func (k *Kernel) sysKill(args [7]uint64) int64 {
	target := proc.PID(args[0])
	if err := k.Processes.Terminate(target); err != nil {
		return int64(InvalidArgument)
	}

	return int64(Success)
}

// sysSpawnELF looks the caller's program name up in the registry instead of
// loading and interpreting a real ELF image (see Kernel.Programs).
func (k *Kernel) sysSpawnELF(parent proc.PID, args [7]uint64) int64 {
	namePtr, nameLen := args[0], args[1]

	buf := make([]byte, nameLen)
	if _, err := k.Memory.ReadAt(namePtr, buf); err != nil {
		return int64(InvalidArgument)
	}

	name := string(buf)

	entry, ok := k.Programs[name]
	if !ok {
		return int64(FileNotFound)
	}

	child, err := k.Processes.CreateNamedUserProcess(name, parent)
	if err != nil {
		return int64(OutOfMemory)
	}

	k.Scheduler.SpawnUser(child.PID, entry)

	return int64(child.PID)
}

func (k *Kernel) sysPrintDebug(args [7]uint64) int64 {
	ptr, length := args[0], args[1]

	buf := make([]byte, length)
	if _, err := k.Memory.ReadAt(ptr, buf); err != nil {
		return int64(InvalidArgument)
	}

	if k.Console != nil {
		_, _ = k.Console.Write(buf)
	}

	return int64(Success)
}

// sysPollEvent returns -1 for "no event pending" (spec §4.9's table lists
// no dedicated errno for this, since it is a valid non-error result, not a
// dispatch failure); callers distinguish it from InvalidSyscall by the fact
// that poll_event's own syscall number was valid.
func (k *Kernel) sysPollEvent() int64 {
	if k.Events == nil {
		return -1
	}

	select {
	case b := <-k.Events:
		return int64(b)
	default:
		return -1
	}
}

package svc

import (
	"io"
	"time"

	"github.com/rost-kernel/rost/internal/fs"
	"github.com/rost-kernel/rost/internal/ipc"
	"github.com/rost-kernel/rost/internal/mm"
	"github.com/rost-kernel/rost/internal/proc"
)

// Clock reports milliseconds since boot for gettime() (spec §4.9, syscall 12).
type Clock interface {
	NowMillis() uint64
}

// SystemClock is a Clock backed by the host's monotonic clock, standing in
// for CNTPCT_EL0 (spec §4.5).
type SystemClock struct {
	boot time.Time
}

// NewSystemClock starts the clock running now.
func NewSystemClock() *SystemClock {
	return &SystemClock{boot: time.Now()}
}

// NowMillis returns elapsed milliseconds since the clock was created.
func (c *SystemClock) NowMillis() uint64 {
	return uint64(time.Since(c.boot).Milliseconds())
}

// Kernel wires together every component the syscall dispatcher calls into:
// the process table (C6), the scheduler (C8), the filesystem (C12), shared
// memory and messages (C13), and the user-memory simulation that stands in
// for the buffers a real syscall's pointer arguments reference.
type Kernel struct {
	Processes *proc.Table
	Scheduler *proc.Scheduler
	FS        *fs.FileSystem
	Shm       *ipc.Manager
	Memory    *mm.Memory
	Console   io.Writer
	Events    <-chan byte
	Clock     Clock

	// Programs is the spawn_elf registry (spec §4.9, syscall 34): a name
	// found in the "ELF image" buffer looks up a Go entry point instead of
	// this core interpreting real AArch64 machine code. Grounded in the
	// teacher's monitor.SystemImage, which loads a named program image
	// rather than executing an arbitrary instruction stream from cold.
	Programs map[string]func()
}

// NewKernel wires a fresh Kernel from already-constructed components.
func NewKernel(processes *proc.Table, scheduler *proc.Scheduler, filesystem *fs.FileSystem,
	shm *ipc.Manager, memory *mm.Memory, console io.Writer, events <-chan byte, clock Clock,
) *Kernel {
	return &Kernel{
		Processes: processes,
		Scheduler: scheduler,
		FS:        filesystem,
		Shm:       shm,
		Memory:    memory,
		Console:   console,
		Events:    events,
		Clock:     clock,
		Programs:  make(map[string]func()),
	}
}

// Handler is the shape every syscall handler conforms to: the wired Kernel, the caller's
// PID (resolved once per Dispatch from the scheduler's current thread), and the X0..X6
// argument registers, returning the value Dispatch hands back to be written into X0.
type Handler func(k *Kernel, pid proc.PID, args [7]uint64) int64

// handlers is the syscall table proper (spec §4.9): a map from syscall number to handler,
// built once, rather than one-off switch arms -- the teacher's monitor.SystemImage/Routine
// trap-table idiom (internal/monitor), generalized from a vector-indexed interrupt table to
// a syscall-number-indexed one. Dispatch itself does nothing but the lookup.
var handlers = map[uint64]Handler{
	SysRead:        (*Kernel).sysRead,
	SysWrite:       (*Kernel).sysWrite,
	SysOpen:        (*Kernel).sysOpen,
	SysClose:       (*Kernel).sysClose,
	SysExit:        (*Kernel).sysExit,
	SysGetPID:      func(_ *Kernel, pid proc.PID, _ [7]uint64) int64 { return int64(pid) },
	SysGetTime:     func(k *Kernel, _ proc.PID, _ [7]uint64) int64 { return int64(k.Clock.NowMillis()) },
	SysPrintDebug:  func(k *Kernel, _ proc.PID, args [7]uint64) int64 { return k.sysPrintDebug(args) },
	SysFBInfo:      notImplemented,
	SysFBMap:       notImplemented,
	SysFBFlush:     notImplemented,
	SysPollEvent:   func(k *Kernel, _ proc.PID, _ [7]uint64) int64 { return k.sysPollEvent() },
	SysShmCreate:   (*Kernel).sysShmCreate,
	SysShmMap:      (*Kernel).sysShmMap,
	SysShmUnmap:    (*Kernel).sysShmUnmap,
	SysSendMessage: (*Kernel).sysSendMessage,
	SysRecvMessage: (*Kernel).sysRecvMessage,
	SysYield: func(k *Kernel, _ proc.PID, _ [7]uint64) int64 {
		if tid, ok := k.Scheduler.Current(); ok {
			k.Scheduler.Yield(tid)
		}

		return 0
	},
	SysSpawnELF:          (*Kernel).sysSpawnELF,
	SysKill:              func(k *Kernel, _ proc.PID, args [7]uint64) int64 { return k.sysKill(args) },
	SysShmMapFromProcess: (*Kernel).sysShmMapFromProcess,
	SysShmDestroy:        (*Kernel).sysShmDestroy,
}

func notImplemented(_ *Kernel, _ proc.PID, _ [7]uint64) int64 { return int64(NotImplemented) }

// Dispatch implements internal/trap.Dispatcher: it decodes the syscall
// number, routes to a handler, and returns the handler's result (or
// InvalidSyscall for an unrecognized number) for the caller to write into
// X0 (spec §4.9).
func (k *Kernel) Dispatch(num uint64, args [7]uint64) int64 {
	pid, ok := k.currentPID()
	if !ok {
		return int64(InvalidArgument)
	}

	h, ok := handlers[num]
	if !ok {
		return int64(InvalidSyscall)
	}

	return h(k, pid, args)
}

func (k *Kernel) currentPID() (proc.PID, bool) {
	tid, ok := k.Scheduler.Current()
	if !ok {
		return 0, false
	}

	th := k.Scheduler.Thread(tid)
	if th == nil {
		return 0, false
	}

	return th.PID, true
}

func (k *Kernel) fileSize(name string) (int, bool) {
	for _, e := range k.FS.ListFiles() {
		if e.FileName() == name {
			return int(e.SizeBytes), true
		}
	}

	return 0, false
}

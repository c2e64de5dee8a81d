// Package proc implements the process table (C6), thread table and context
// switch primitive (C7), and the scheduler (C8).
//
// Grounded in the teacher's internal/vm.LC3: there, every piece of execution
// state (REG, PC, PSR) lives in one struct and is mutated only by Fetch and
// Execute, never by a caller reaching in directly. Here a Process/Thread
// owns its own state the same way, and the scheduler is the only caller
// permitted to flip a thread's State or move its id between the ready queue
// and "current" -- the proc-table analogue of the teacher's single
// instruction-cycle chokepoint.
package proc

import (
	"errors"
	"sort"
	"sync"

	"github.com/rost-kernel/rost/internal/fd"
	"github.com/rost-kernel/rost/internal/ipc"
)

// PID identifies a process. PID 0 is reserved; PID 1 is the window manager
// by convention (spec §3).
type PID uint32

// Type distinguishes kernel processes (no user mapping, EL1-only) from user
// processes (spec §3).
type Type uint8

const (
	KernelProcess Type = iota
	UserProcess
)

func (t Type) String() string {
	if t == UserProcess {
		return "user"
	}

	return "kernel"
}

// State is a process's lifecycle state (spec §3).
type State uint8

const (
	StateCreated State = iota
	StateReady
	StateRunning
	StateBlocked
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Sizing constants from spec §3/§4.6.
const (
	KernelStackSize   = 512 * 1024
	UserStackSlots    = 8
	UserStackBase     = 0x4800_0000
	UserStackSlotSize = 128 * 1024

	// NameMax is the longest Name a process record stores (supplemented
	// for ps-style introspection; absent from spec.md's data model).
	NameMax = 16
)

func truncateName(name string) string {
	if len(name) > NameMax {
		return name[:NameMax]
	}

	return name
}

var (
	ErrNoSuchProcess   = errors.New("proc: no such process")
	ErrNoUserStackSlot = errors.New("proc: no free user stack slot")
)

// Process is the process table's per-PID record (spec §3). Terminated
// processes are zombies: State flips to Terminated but KernelStack and the
// FD/message/SHM tables are not freed, since the reaping thread may still be
// executing on that kernel stack (spec §3: "memory is not freed to avoid
// use-after-free").
type Process struct {
	mut sync.Mutex

	PID          PID
	Name         string // <=16 bytes, for ps-style introspection; "" if unnamed.
	ParentPID    PID    // 0 for PID 1 and any process created without a parent.
	Type         Type
	State        State
	KernelStack  []byte
	UserStackTop uint64 // valid only for Type == UserProcess
	userSlot     int

	MainThread TID

	FDs      fd.Table
	Messages *ipc.Queue
	Shm      *ipc.Table
}

func (p *Process) setState(s State) {
	p.mut.Lock()
	p.State = s
	p.mut.Unlock()
}

// GetState reads the process's current state.
func (p *Process) GetState() State {
	p.mut.Lock()
	defer p.mut.Unlock()

	return p.State
}

// Table is the global process manager: a PID-indexed map behind a single
// lock, plus the user-stack-slot pool (spec §4.6: "Lookups on PID go
// through a global process manager protected by a spinlock").
type Table struct {
	mut       sync.Mutex
	processes map[PID]*Process
	nextPID   PID
	userSlots [UserStackSlots]bool
}

// NewTable returns an empty process table. The first PID it hands out is 1;
// PID 0 is never allocated (spec §3).
func NewTable() *Table {
	return &Table{processes: make(map[PID]*Process), nextPID: 1}
}

func (t *Table) allocatePID() PID {
	pid := t.nextPID
	t.nextPID++

	return pid
}

// CreateKernelProcess allocates a 512 KiB kernel stack and a fresh PID for
// an EL1-only process (spec §4.6).
func (t *Table) CreateKernelProcess() *Process {
	return t.CreateNamedKernelProcess("", 0)
}

// CreateNamedKernelProcess is CreateKernelProcess, additionally recording a
// ps-style name and the PID of whatever process caused this one to be
// created (0 if none, e.g. PID 1).
func (t *Table) CreateNamedKernelProcess(name string, parentPID PID) *Process {
	t.mut.Lock()
	defer t.mut.Unlock()

	p := &Process{
		PID:         t.allocatePID(),
		Name:        truncateName(name),
		ParentPID:   parentPID,
		Type:        KernelProcess,
		State:       StateCreated,
		KernelStack: make([]byte, KernelStackSize),
		userSlot:    -1,
		Messages:    ipc.NewQueue(),
		Shm:         ipc.NewTable(),
	}

	t.processes[p.PID] = p

	return p
}

// CreateUserProcess additionally reserves one of eight fixed user-stack
// slots at UserStackBase + i*UserStackSlotSize (spec §4.6). It fails with
// ErrNoUserStackSlot once all eight slots have been taken; a slot is not
// released when its process terminates.
func (t *Table) CreateUserProcess() (*Process, error) {
	return t.CreateNamedUserProcess("", 0)
}

// CreateNamedUserProcess is CreateUserProcess, additionally recording a
// ps-style name (e.g. the spawn_elf program name) and the spawning
// process's PID.
func (t *Table) CreateNamedUserProcess(name string, parentPID PID) (*Process, error) {
	t.mut.Lock()
	defer t.mut.Unlock()

	slot := -1

	for i, used := range t.userSlots {
		if !used {
			slot = i
			break
		}
	}

	if slot < 0 {
		return nil, ErrNoUserStackSlot
	}

	t.userSlots[slot] = true

	base := uint64(UserStackBase) + uint64(slot)*UserStackSlotSize

	p := &Process{
		PID:          t.allocatePID(),
		Name:         truncateName(name),
		ParentPID:    parentPID,
		Type:         UserProcess,
		State:        StateCreated,
		KernelStack:  make([]byte, KernelStackSize),
		userSlot:     slot,
		UserStackTop: base + UserStackSlotSize,
		Messages:     ipc.NewQueue(),
		Shm:          ipc.NewTable(),
	}

	t.processes[p.PID] = p

	return p, nil
}

// Get returns the process named by pid.
func (t *Table) Get(pid PID) (*Process, error) {
	t.mut.Lock()
	defer t.mut.Unlock()

	p, ok := t.processes[pid]
	if !ok {
		return nil, ErrNoSuchProcess
	}

	return p, nil
}

// WithProcess looks up pid and invokes fn on it while holding the table
// lock, matching spec §4.6's "with_process_mut" closure-based mutation API
// -- callers cannot retain an aliased *Process past fn's return.
func (t *Table) WithProcess(pid PID, fn func(*Process) error) error {
	t.mut.Lock()
	defer t.mut.Unlock()

	p, ok := t.processes[pid]
	if !ok {
		return ErrNoSuchProcess
	}

	return fn(p)
}

// IsLive reports whether pid names a process that exists and has not
// terminated. It implements ipc.LiveChecker for shm_map_from_process.
func (t *Table) IsLive(pid uint32) bool {
	t.mut.Lock()
	defer t.mut.Unlock()

	p, ok := t.processes[PID(pid)]

	return ok && p.State != StateTerminated
}

// Terminate marks pid's process Terminated (a zombie) without freeing its
// resources (spec §4.13/§9: kill "does not forcibly unwind its in-flight
// syscall").
func (t *Table) Terminate(pid PID) error {
	t.mut.Lock()
	p, ok := t.processes[pid]
	t.mut.Unlock()

	if !ok {
		return ErrNoSuchProcess
	}

	p.setState(StateTerminated)

	return nil
}

// ProcessInfo is a read-only snapshot of one process's ps-visible fields,
// returned by List for introspection; never consulted for permission checks
// (spec.md's core has no such concept).
type ProcessInfo struct {
	PID       PID
	Name      string
	ParentPID PID
	Type      Type
	State     State
}

// List returns a snapshot of every process currently in the table, sorted
// by PID, for ps-style introspection (supplements spec.md, which has no
// such syscall).
func (t *Table) List() []ProcessInfo {
	t.mut.Lock()
	defer t.mut.Unlock()

	out := make([]ProcessInfo, 0, len(t.processes))

	for _, p := range t.processes {
		out = append(out, ProcessInfo{
			PID:       p.PID,
			Name:      p.Name,
			ParentPID: p.ParentPID,
			Type:      p.Type,
			State:     p.GetState(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })

	return out
}

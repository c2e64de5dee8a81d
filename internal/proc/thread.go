package proc

import "sync"

// TID identifies a thread.
type TID uint32

// Context is the 104-byte callee-saved context the context_switch assembly
// primitive stores and loads (spec §3): x19..x29 (11 registers), x30 (LR),
// SP -- in that exact field order, matching the offsets context_switch uses
// (0, 8, .., 96).
type Context struct {
	X  [11]uint64 // x19..x29
	LR uint64     // x30, the return address into the thread's own code
	SP uint64
}

// ContextSwitch is the single chokepoint through which a saved-state
// transition happens (spec §4.7), standing in for the assembly primitive
// `context_switch(current_ctx_ptr, next_ctx_ptr)`: stp x19..x30,sp to *cur,
// then the symmetric ldp from *next, then ret -- landing the calling
// goroutine's stack-equivalent "return" at next's LR.
//
// Go has no raw callee-saved general registers to stp/ldp, so this core
// performs the equivalent control transfer at goroutine granularity instead
// of register granularity: next's Entry actually runs (on its own
// goroutine, started the first time it is reached and resumed thereafter),
// cur actually stops running until some later switch hands the CPU back to
// it, and exactly one thread's goroutine holds the shared cpu mutex at a
// time -- the Go-level stand-in for there being one core with one live
// register file.
func ContextSwitch(cur, next *Thread) {
	if next == nil {
		panic("proc: ContextSwitch requires a non-nil next thread")
	}

	if cur == nil {
		panic("proc: ContextSwitch requires a non-nil current thread; use JumpToThread for a first run")
	}

	next.wake()
	cur.park()
}

// JumpToThread is `jump_to_thread(next_ctx_ptr)`: the symmetric load with no
// corresponding save, used for a thread with no prior state to preserve --
// its first run, or after the prior occupant of this kernel stack
// terminated (spec §4.7). It hands control to next and returns immediately;
// unlike ContextSwitch it does not block waiting to be resumed, because the
// caller (the scheduler driver, or a terminating thread handing off) has no
// saved state of its own to come back to here.
func JumpToThread(next *Thread) {
	if next == nil {
		panic("proc: JumpToThread requires a non-nil thread")
	}

	next.wake()
}

// ThreadType mirrors the owning process's type: a thread never outlives or
// changes type independent of its process (spec §3).
type ThreadType = Type

// Thread is the thread table's per-TID record (spec §3): owning PID, type,
// callee-saved context, state, and entry point.
type Thread struct {
	TID     TID
	PID     PID
	Type    ThreadType
	State   State
	Context Context
	Entry   func()

	// baton, cpu and started implement the goroutine-per-thread execution
	// engine ContextSwitch/JumpToThread drive: baton is the unbuffered
	// rendezvous channel a switch sends on to hand this thread the CPU and
	// that this thread's park blocks on to give it up; cpu is the single
	// mutex shared by every thread of a scheduler, held by whichever
	// thread's goroutine is the one actually running (the Go-level stand-in
	// for there being exactly one core); started records whether Entry's
	// goroutine has already been launched, so a later switch resumes it
	// rather than starting it twice. onExit is the scheduler's hook run
	// once Entry returns, wiring natural thread exit back into scheduling.
	baton   chan struct{}
	cpu     *sync.Mutex
	onExit  func(*Thread)
	started bool
}

// wake is the shared mechanism behind JumpToThread and ContextSwitch: the
// first time a thread is reached it launches Entry (including any syscalls
// it makes) on a dedicated goroutine; every later call instead resumes the
// goroutine left blocked in that thread's own park. Either way wake returns
// once the target has been handed the CPU, not once it gives it back.
func (th *Thread) wake() {
	if !th.started {
		th.started = true

		go func() {
			<-th.baton
			th.cpu.Lock()
			th.Entry()
			th.onExit(th)
		}()
	}

	th.baton <- struct{}{}
}

// park is ContextSwitch's half performed by the outgoing thread: release the
// CPU mutex so the thread just woken may acquire it, then block until some
// later wake call hands the CPU back, reacquiring the mutex before
// returning -- the Go-level stand-in for the assembly primitive's `ret`
// landing back at th's saved LR.
func (th *Thread) park() {
	th.cpu.Unlock()
	<-th.baton
	th.cpu.Lock()
}

package proc

import (
	"context"
	"sync"
)

// Scheduler is the global singleton described in spec §4.8: a vector of
// boxed threads, a ready-queue FIFO of thread ids, the current thread id (if
// any), a monotonic next-id counter, and an optional "kernel return
// context" so that whatever started the kernel (the CLI's boot loop) can
// regain control once the ready queue empties.
//
// cpu and kernelThread belong to the goroutine-per-thread execution engine
// (thread.go): cpu is the single mutex serializing actual Entry execution
// across every thread this scheduler owns, and kernelThread is a pseudo
// thread (TID 0, never handed out by newThreadLocked) standing in for
// whatever goroutine called Drive -- the "CPU" a thread yields to when the
// ready queue empties or hands control back explicitly.
type Scheduler struct {
	mut          sync.Mutex
	threads      map[TID]*Thread
	nextTID      TID
	ready        []TID
	current      *TID
	kernelReturn *Context

	cpu          sync.Mutex
	kernelThread *Thread
}

// NewScheduler returns an empty scheduler with no threads and no kernel
// return context registered.
func NewScheduler() *Scheduler {
	s := &Scheduler{threads: make(map[TID]*Thread)}

	s.kernelThread = &Thread{
		TID:     0,
		State:   StateRunning,
		baton:   make(chan struct{}),
		cpu:     &s.cpu,
		started: true,
	}

	return s
}

func (s *Scheduler) newThreadLocked(pid PID, typ ThreadType, entry func()) *Thread {
	s.nextTID++

	th := &Thread{
		TID:    s.nextTID,
		PID:    pid,
		Type:   typ,
		State:  StateReady,
		Entry:  entry,
		baton:  make(chan struct{}),
		cpu:    &s.cpu,
		onExit: s.finish,
	}

	s.threads[th.TID] = th

	return th
}

// Spawn creates a kernel thread for pid, pushes it to the ready queue, and
// returns its id (spec §4.8: "spawn(entry)").
func (s *Scheduler) Spawn(pid PID, entry func()) TID {
	s.mut.Lock()
	defer s.mut.Unlock()

	th := s.newThreadLocked(pid, KernelProcess, entry)
	s.ready = append(s.ready, th.TID)

	return th.TID
}

// SpawnUser creates a user thread for pid, pushes it to the ready queue, and
// returns its id (spec §4.8: "spawn_user(entry)").
func (s *Scheduler) SpawnUser(pid PID, entry func()) TID {
	s.mut.Lock()
	defer s.mut.Unlock()

	th := s.newThreadLocked(pid, UserProcess, entry)
	s.ready = append(s.ready, th.TID)

	return th.TID
}

// Thread returns the thread table entry for tid, or nil if it does not
// exist (used by callers that need to read or seed a thread's Context,
// e.g. constructing the first-run synthetic exception frame).
func (s *Scheduler) Thread(tid TID) *Thread {
	s.mut.Lock()
	defer s.mut.Unlock()

	return s.threads[tid]
}

// SetKernelReturn registers the context the scheduler yields back to once
// the ready queue empties (spec §4.8).
func (s *Scheduler) SetKernelReturn(ctx *Context) {
	s.mut.Lock()
	defer s.mut.Unlock()

	s.kernelReturn = ctx
}

// Current returns the currently running thread id, if any.
func (s *Scheduler) Current() (TID, bool) {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.current == nil {
		return 0, false
	}

	return *s.current, true
}

func (s *Scheduler) purgeTerminatedLocked() {
	live := s.ready[:0]

	for _, tid := range s.ready {
		if th, ok := s.threads[tid]; ok && th.State != StateTerminated {
			live = append(live, tid)
		}
	}

	s.ready = live
}

// Decision is Schedule's result: the current and next thread's contexts for
// the caller to hand to ContextSwitch/JumpToThread, outside the scheduler
// lock (spec §4.7: "Yielding must happen outside the scheduler lock").
type Decision struct {
	Current       *Context
	Next          *Context
	FirstSwitch   bool
	YieldToKernel bool
	NoOp          bool
}

// Schedule purges terminated ids from the ready queue and pops its head
// (spec §4.8). If the queue is empty, it yields back to the kernel return
// context when one is registered and is a no-op otherwise. If the head is
// already current and a kernel return context
// is registered, it yields back to that context; if the head is current and
// no kernel return context exists, it is a no-op. Otherwise it marks the
// next thread Running and returns both contexts for the caller to execute.
func (s *Scheduler) Schedule() Decision {
	s.mut.Lock()
	defer s.mut.Unlock()

	s.purgeTerminatedLocked()

	if len(s.ready) == 0 {
		if s.kernelReturn != nil {
			return Decision{Next: s.kernelReturn, YieldToKernel: true}
		}

		return Decision{NoOp: true}
	}

	head := s.ready[0]

	if s.current != nil && head == *s.current {
		if s.kernelReturn != nil {
			return Decision{Next: s.kernelReturn, YieldToKernel: true}
		}

		return Decision{NoOp: true}
	}

	s.ready = s.ready[1:]

	next := s.threads[head]
	next.State = StateRunning

	var curCtx *Context

	first := s.current == nil
	if !first {
		curCtx = &s.threads[*s.current].Context
	}

	s.current = &head

	return Decision{Current: curCtx, Next: &next.Context, FirstSwitch: first}
}

// YieldNow demotes the current thread (if Running) back to Ready, re-queues
// it, and calls Schedule -- spec §4.8's yield_now, also used directly as
// preempt() on a timer tick.
func (s *Scheduler) YieldNow() Decision {
	s.mut.Lock()

	if s.current != nil {
		cur := s.threads[*s.current]
		if cur.State == StateRunning {
			cur.State = StateReady
			s.ready = append(s.ready, cur.TID)
		}
	}

	s.mut.Unlock()

	return s.Schedule()
}

// Preempt is the timer ISR's entry point into the scheduler (spec §4.8:
// "preempt() = yield_now").
func (s *Scheduler) Preempt() Decision {
	return s.YieldNow()
}

// TerminateCurrentAndYield marks the current thread Terminated, does not
// re-queue it, and pops the next ready thread. It returns the next thread's
// context and the PID to reap, for the caller to act on outside the lock
// (spec §4.8).
func (s *Scheduler) TerminateCurrentAndYield() (next *Context, reapPID PID, ok bool) {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.current == nil {
		return nil, 0, false
	}

	cur := s.threads[*s.current]
	cur.State = StateTerminated
	reapPID = cur.PID

	s.purgeTerminatedLocked()

	if len(s.ready) == 0 {
		s.current = nil
		return nil, reapPID, true
	}

	head := s.ready[0]
	s.ready = s.ready[1:]

	nextThread := s.threads[head]
	nextThread.State = StateRunning
	s.current = &head

	return &nextThread.Context, reapPID, true
}

func (s *Scheduler) stateOf(tid TID) State {
	s.mut.Lock()
	defer s.mut.Unlock()

	if th, ok := s.threads[tid]; ok {
		return th.State
	}

	return StateTerminated
}

// finish is the onExit hook every thread's goroutine runs once its Entry
// returns, whether that is an implicit exit (Entry simply returned, e.g. the
// window-manager placeholder) or an explicit one (the exit syscall handler
// already called TerminateCurrentAndYield, so the thread is already
// Terminated by the time Entry's call to it returns). Either way it hands
// the CPU to whatever the scheduler now says is current, or back to
// whichever goroutine called Drive if the ready queue is empty.
func (s *Scheduler) finish(th *Thread) {
	if s.stateOf(th.TID) != StateTerminated {
		s.TerminateCurrentAndYield()
	}

	if nextTID, ok := s.Current(); ok {
		JumpToThread(s.Thread(nextTID))
	} else {
		JumpToThread(s.kernelThread)
	}

	s.cpu.Unlock()
}

// Yield is the cooperative half of spec §4.8's yield_now, callable from
// inside a thread's own Entry (directly, or via the yield syscall's
// dispatcher case) to actually relinquish the CPU -- as opposed to YieldNow
// and Preempt, which only perform scheduler bookkeeping for callers (tests,
// and the timer ISR) that are not themselves a running thread's goroutine.
func (s *Scheduler) Yield(tid TID) {
	th := s.Thread(tid)
	if th == nil {
		return
	}

	decision := s.YieldNow()

	switch {
	case decision.NoOp:
		return
	case decision.YieldToKernel:
		ContextSwitch(th, s.kernelThread)
	default:
		nextTID, _ := s.Current()
		ContextSwitch(th, s.Thread(nextTID))
	}
}

// Drive hands control of the simulated CPU to the ready queue for real:
// where Schedule/YieldNow/TerminateCurrentAndYield only ever compute which
// thread should run next, Drive is what actually executes it, standing in
// for spec §2's "timer IRQ -> C5 -> C8 picks next -> C7 performs context
// switch" and "svc #0 ... dispatches to C9" control flow. It blocks until
// control returns to the caller -- because the ready queue emptied, or the
// running thread yielded back to a registered kernel return context -- or
// until ctx is cancelled.
func (s *Scheduler) Drive(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	decision := s.Schedule()
	if decision.NoOp || decision.Next == nil {
		return nil
	}

	nextTID, _ := s.Current()

	JumpToThread(s.Thread(nextTID))

	select {
	case <-s.kernelThread.baton:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

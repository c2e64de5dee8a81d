package proc_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rost-kernel/rost/internal/proc"
)

// TestDriveActuallyRunsEntry is the direct regression test for wiring
// Thread.Entry to real execution: Schedule/ContextSwitch bookkeeping alone
// must not be enough, Drive must cause the thread's own code to run.
func TestDriveActuallyRunsEntry(t *testing.T) {
	s := proc.NewScheduler()

	var ran int32

	s.Spawn(1, func() { atomic.StoreInt32(&ran, 1) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.Drive(ctx); err != nil {
		t.Fatalf("drive: %s", err)
	}

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("expected Entry to have actually run")
	}

	if _, ok := s.Current(); ok {
		t.Error("expected no current thread once the sole thread's Entry returned")
	}
}

// TestDriveRoundRobinFairness is the real-execution analogue of
// TestRoundRobinFIFO: three threads cooperatively yielding to each other via
// Scheduler.Yield must each get a turn before any of them runs twice in a
// row, and each must complete the same number of increments.
func TestDriveRoundRobinFairness(t *testing.T) {
	s := proc.NewScheduler()

	const (
		threads    = 3
		iterations = 20
	)

	counters := make([]int, threads)
	tids := make([]proc.TID, threads)
	var order []int

	for i := 0; i < threads; i++ {
		i := i

		tids[i] = s.Spawn(proc.PID(i+1), func() {
			for j := 0; j < iterations; j++ {
				counters[i]++
				order = append(order, i)
				s.Yield(tids[i])
			}
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Drive(ctx); err != nil {
		t.Fatalf("drive: %s", err)
	}

	for i, c := range counters {
		if c != iterations {
			t.Errorf("thread %d ran %d times, want %d", i, c, iterations)
		}
	}

	// Fairness: no thread should ever run two of its own increments back to
	// back while another thread is still waiting for its turn.
	for i := threads; i < len(order); i++ {
		if order[i] == order[i-1] {
			t.Fatalf("thread %d ran twice in a row at position %d, want round robin", order[i], i)
		}
	}
}

// TestDriveExplicitExitHandsOffCleanly exercises a thread that calls the
// termination bookkeeping itself (standing in for the exit syscall) before
// its Entry returns, verifying finish does not double-terminate it.
func TestDriveExplicitExitHandsOffCleanly(t *testing.T) {
	s := proc.NewScheduler()

	var secondRan bool

	s.Spawn(1, func() {
		s.TerminateCurrentAndYield()
	})
	s.Spawn(2, func() {
		secondRan = true
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.Drive(ctx); err != nil {
		t.Fatalf("drive: %s", err)
	}

	if !secondRan {
		t.Fatal("expected the second thread to run after the first's explicit exit")
	}

	if _, ok := s.Current(); ok {
		t.Error("expected no current thread once both threads finished")
	}
}

package proc_test

import (
	"errors"
	"testing"

	"github.com/rost-kernel/rost/internal/proc"
)

func TestCreateKernelProcessAllocatesStack(t *testing.T) {
	table := proc.NewTable()

	p := table.CreateKernelProcess()

	if p.PID == 0 {
		t.Errorf("PID = 0, want nonzero (PID 0 is reserved)")
	}

	if len(p.KernelStack) != proc.KernelStackSize {
		t.Errorf("len(KernelStack) = %d, want %d", len(p.KernelStack), proc.KernelStackSize)
	}

	if p.Type != proc.KernelProcess {
		t.Errorf("Type = %s, want kernel", p.Type)
	}
}

func TestCreateUserProcessAssignsDistinctStackSlots(t *testing.T) {
	table := proc.NewTable()

	seen := map[uint64]bool{}

	for i := 0; i < proc.UserStackSlots; i++ {
		p, err := table.CreateUserProcess()
		if err != nil {
			t.Fatalf("create %d: %s", i, err)
		}

		if seen[p.UserStackTop] {
			t.Fatalf("duplicate UserStackTop %#x at process %d", p.UserStackTop, i)
		}

		seen[p.UserStackTop] = true
	}

	if _, err := table.CreateUserProcess(); !errors.Is(err, proc.ErrNoUserStackSlot) {
		t.Errorf("err = %v, want ErrNoUserStackSlot", err)
	}
}

func TestFirstPIDIsOne(t *testing.T) {
	table := proc.NewTable()

	p := table.CreateKernelProcess()
	if p.PID != 1 {
		t.Errorf("first PID = %d, want 1", p.PID)
	}
}

func TestWithProcessMutation(t *testing.T) {
	table := proc.NewTable()

	p := table.CreateKernelProcess()

	err := table.WithProcess(p.PID, func(p *proc.Process) error {
		p.MainThread = 7
		return nil
	})
	if err != nil {
		t.Fatalf("WithProcess: %s", err)
	}

	got, err := table.Get(p.PID)
	if err != nil {
		t.Fatalf("Get: %s", err)
	}

	if got.MainThread != 7 {
		t.Errorf("MainThread = %d, want 7", got.MainThread)
	}
}

func TestWithProcessNoSuchProcess(t *testing.T) {
	table := proc.NewTable()

	err := table.WithProcess(99, func(*proc.Process) error { return nil })
	if !errors.Is(err, proc.ErrNoSuchProcess) {
		t.Errorf("err = %v, want ErrNoSuchProcess", err)
	}
}

func TestTerminateMarksZombieWithoutFreeingStack(t *testing.T) {
	table := proc.NewTable()

	p := table.CreateKernelProcess()

	if err := table.Terminate(p.PID); err != nil {
		t.Fatalf("terminate: %s", err)
	}

	got, err := table.Get(p.PID)
	if err != nil {
		t.Fatalf("get after terminate: %s", err)
	}

	if got.GetState() != proc.StateTerminated {
		t.Errorf("State = %s, want terminated", got.GetState())
	}

	if len(got.KernelStack) != proc.KernelStackSize {
		t.Errorf("KernelStack freed on terminate, len = %d", len(got.KernelStack))
	}
}

func TestIsLive(t *testing.T) {
	table := proc.NewTable()

	p := table.CreateKernelProcess()

	if !table.IsLive(uint32(p.PID)) {
		t.Errorf("IsLive(%d) = false before terminate", p.PID)
	}

	if err := table.Terminate(p.PID); err != nil {
		t.Fatalf("terminate: %s", err)
	}

	if table.IsLive(uint32(p.PID)) {
		t.Errorf("IsLive(%d) = true after terminate", p.PID)
	}

	if table.IsLive(999) {
		t.Errorf("IsLive(999) = true for a PID that was never allocated")
	}
}

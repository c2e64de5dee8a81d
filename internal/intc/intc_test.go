package intc_test

import (
	"testing"

	"github.com/rost-kernel/rost/internal/intc"
)

func TestDistributorInitEnablesAll(t *testing.T) {
	d := intc.NewDistributor()
	d.Init()

	if !d.IsEnabled(intc.TimerIRQ) {
		t.Errorf("IsEnabled(TimerIRQ) = false after Init, want true")
	}

	d.Disable(intc.TimerIRQ)

	if d.IsEnabled(intc.TimerIRQ) {
		t.Errorf("IsEnabled(TimerIRQ) = true after Disable, want false")
	}
}

func TestCPUInterfaceAcknowledgeAndEOI(t *testing.T) {
	cpu := intc.NewCPUInterface()
	cpu.Init()

	if _, ok := cpu.Acknowledge(); ok {
		t.Fatalf("Acknowledge() on empty pending set returned ok=true")
	}

	cpu.Raise(intc.TimerIRQ)

	irq, ok := cpu.Acknowledge()
	if !ok || irq != intc.TimerIRQ {
		t.Fatalf("Acknowledge() = (%d, %v), want (%d, true)", irq, ok, intc.TimerIRQ)
	}

	// Acknowledged interrupts move to active and are not re-delivered until EOI.
	if _, ok := cpu.Acknowledge(); ok {
		t.Errorf("Acknowledge() returned a second time before EndOfInterrupt")
	}

	cpu.EndOfInterrupt(intc.TimerIRQ)
}

func TestTimerTickFiresAtReload(t *testing.T) {
	timer := intc.NewTimer(1000) // 1000 Hz -> reload = 10 ticks for a 10ms period.
	timer.Enable()

	var fired bool

	for i := 0; i < 9; i++ {
		if timer.Tick(1) {
			t.Fatalf("timer fired early at tick %d", i)
		}
	}

	fired = timer.Tick(1)
	if !fired {
		t.Errorf("timer did not fire at the 10th tick")
	}
}

func TestTimerDisabledDoesNotFire(t *testing.T) {
	timer := intc.NewTimer(1000)

	if timer.Tick(1000) {
		t.Errorf("disabled timer fired")
	}
}

func TestGICHandleTickInvokesPreemptAndEOIs(t *testing.T) {
	gic := intc.New()
	gic.Init()

	timer := intc.NewTimer(1000)
	timer.Enable()

	for timer.Tick(1) == false { //nolint:revive
	}

	gic.CPU.Raise(intc.TimerIRQ)

	if _, ok := gic.CPU.Acknowledge(); !ok {
		t.Fatalf("expected pending timer IRQ")
	}

	preempted := false

	gic.HandleTick(timer, func() { preempted = true })

	if !preempted {
		t.Errorf("HandleTick did not invoke preempt callback")
	}
}

// Package intc implements the timer and interrupt controller (C5): a GIC
// distributor, a CPU interface, and the generic physical timer's 10ms tick.
//
// Grounded in the teacher's internal/vm.Interrupt/ISR idiom (internal/vm/intr.go):
// there, a fixed priority-indexed table of ISR{vector, driver} entries decides
// whether a device may preempt the running program. Here the GIC distributor
// plays that table's role for one real interrupt source -- the generic timer --
// with "driver" replaced by the scheduler's preempt callback (internal/proc
// cannot be imported here without an import cycle, so the callback is
// threaded in by the caller, the way the teacher's vm package never imports
// a device's owning package either).
package intc

import "sync"

// QEMU virt machine MMIO bases (spec §4.5).
const (
	DistributorBase  = 0x0800_0000
	CPUInterfaceBase = 0x0801_0000
)

// NumIRQs bounds the interrupt ID space this controller models. Only the
// generic timer's PPI (30) is driven by this core; the rest of the space
// exists so SetPriority/Enable accept any interrupt ID below NumIRQs.
const NumIRQs = 32

// TimerIRQ is the generic physical timer's GIC interrupt ID (spec §4.5).
const TimerIRQ = 30

// Distributor models the subset of GICD registers the boot sequence touches:
// GICD_CTLR, GICD_IPRIORITYR, GICD_ISENABLER (spec §4.5).
type Distributor struct {
	mut      sync.Mutex
	ctlr     bool
	priority [NumIRQs]uint8
	enabled  [NumIRQs]bool
}

// NewDistributor returns a distributor with GICD_CTLR cleared.
func NewDistributor() *Distributor {
	return &Distributor{}
}

// Init runs the boot sequence from spec §4.5: disable, lower every priority
// to the least restrictive value, target (implicitly CPU 0, the only CPU
// this core models), enable every IRQ, then enable the distributor.
func (d *Distributor) Init() {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.ctlr = false

	for i := range d.priority {
		d.priority[i] = 0xFF
		d.enabled[i] = true
	}

	d.ctlr = true
}

// Enable sets GICD_ISENABLER's bit for irq.
func (d *Distributor) Enable(irq uint32) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.enabled[irq] = true
}

// Disable clears GICD_ISENABLER's bit for irq.
func (d *Distributor) Disable(irq uint32) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.enabled[irq] = false
}

// IsEnabled reports whether irq is currently routed to the CPU interface.
func (d *Distributor) IsEnabled(irq uint32) bool {
	d.mut.Lock()
	defer d.mut.Unlock()

	return d.ctlr && d.enabled[irq]
}

// SetPriority writes GICD_IPRIORITYR for irq.
func (d *Distributor) SetPriority(irq uint32, pri uint8) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.priority[irq] = pri
}

// CPUInterface models the subset of GICC registers the core touches:
// GICC_PMR, GICC_CTLR, GICC_IAR/EOIR (spec §4.5).
type CPUInterface struct {
	mut     sync.Mutex
	pmr     uint8
	ctlr    bool
	pending map[uint32]bool
	active  map[uint32]bool
}

// NewCPUInterface returns a CPU interface with the interrupt masked.
func NewCPUInterface() *CPUInterface {
	return &CPUInterface{pending: make(map[uint32]bool), active: make(map[uint32]bool)}
}

// Init programs GICC_PMR=0xFF (accept every priority) and sets GICC_CTLR=1.
func (c *CPUInterface) Init() {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.pmr = 0xFF
	c.ctlr = true
}

// Raise marks irq pending, standing in for the device asserting its SPI/PPI
// line. The generic timer calls this when its count reaches zero.
func (c *CPUInterface) Raise(irq uint32) {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.pending[irq] = true
}

// Acknowledge reads GICC_IAR: it returns the highest-numbered pending
// interrupt, moves it from pending to active, and reports whether one was
// found. Highest-numbered is an arbitrary but deterministic tie-break; this
// core never has more than one IRQ source pending at once.
func (c *CPUInterface) Acknowledge() (irq uint32, ok bool) {
	c.mut.Lock()
	defer c.mut.Unlock()

	if !c.ctlr {
		return 0, false
	}

	best := int64(-1)

	for id := range c.pending {
		if int64(id) > best {
			best = int64(id)
		}
	}

	if best < 0 {
		return 0, false
	}

	delete(c.pending, uint32(best))
	c.active[uint32(best)] = true

	return uint32(best), true
}

// EndOfInterrupt writes GICC_EOIR, retiring irq from the active set.
func (c *CPUInterface) EndOfInterrupt(irq uint32) {
	c.mut.Lock()
	defer c.mut.Unlock()

	delete(c.active, irq)
}

// GIC bundles the distributor and CPU interface the boot sequence programs
// together (spec §4.5).
type GIC struct {
	Distributor *Distributor
	CPU         *CPUInterface
}

// New returns an uninitialized GIC; callers must call Init.
func New() *GIC {
	return &GIC{Distributor: NewDistributor(), CPU: NewCPUInterface()}
}

// Init runs the distributor and CPU interface init sequences and enables
// the timer IRQ, matching spec §4.5's combined init description.
func (g *GIC) Init() {
	g.Distributor.Init()
	g.CPU.Init()
	g.Distributor.Enable(TimerIRQ)
}

// Timer models the ARM generic physical timer: CNTFRQ_EL0, CNTP_TVAL_EL0,
// CNTP_CTL_EL0 (spec §4.5). It counts down in ticks rather than wall-clock
// time since nothing in this core has a real crystal to read; Tick advances
// it by the caller's chosen step.
type Timer struct {
	mut       sync.Mutex
	freqHz    uint64
	reload    uint64 // CNTP_TVAL_EL0 reload value for a 10ms period.
	remaining uint64
	enabled   bool
}

// DefaultTickMillis is the scheduling quantum (spec §4.5: "program
// CNTP_TVAL_EL0 for a 10 ms tick").
const DefaultTickMillis = 10

// NewTimer returns a timer for a CNTFRQ_EL0 of freqHz, programmed for the
// default 10ms tick.
func NewTimer(freqHz uint64) *Timer {
	t := &Timer{freqHz: freqHz}
	t.program(DefaultTickMillis)

	return t
}

func (t *Timer) program(periodMillis uint64) {
	t.reload = (t.freqHz / 1000) * periodMillis
	if t.reload == 0 {
		t.reload = 1
	}

	t.remaining = t.reload
}

// Enable sets CNTP_CTL_EL0.ENABLE.
func (t *Timer) Enable() {
	t.mut.Lock()
	defer t.mut.Unlock()

	t.enabled = true
}

// Disable clears CNTP_CTL_EL0.ENABLE.
func (t *Timer) Disable() {
	t.mut.Lock()
	defer t.mut.Unlock()

	t.enabled = false
}

// Reload resets the countdown to the programmed period without changing the
// enable bit, matching the timer ISR's "reload TVAL" step (spec §4.5).
func (t *Timer) Reload() {
	t.mut.Lock()
	defer t.mut.Unlock()

	t.remaining = t.reload
}

// Tick advances the countdown by n ticks and reports whether it reached
// zero. A fired timer does not auto-reload; the caller (the timer ISR) is
// responsible for Reload, matching the real register's one-shot countdown.
func (t *Timer) Tick(n uint64) (fired bool) {
	t.mut.Lock()
	defer t.mut.Unlock()

	if !t.enabled {
		return false
	}

	if n >= t.remaining {
		t.remaining = 0
		return true
	}

	t.remaining -= n

	return false
}

// HandleTick runs one pass of the timer ISR described in spec §4.5: clear
// the enable bit, reload TVAL, re-enable, invoke preempt (the scheduler's
// decision of what runs next), then EOI. preempt is called with the
// distributor/CPU lock not held, so it is free to call back into this
// package.
func (g *GIC) HandleTick(t *Timer, preempt func()) {
	t.Disable()
	t.Reload()
	t.Enable()

	preempt()

	g.CPU.EndOfInterrupt(TimerIRQ)
}

// Package trap implements the exception vector and EL0↔EL1 glue (C4): decoding the
// syndrome register for a synchronous exception taken from EL0, saving/restoring the full
// register context, and dispatching SVC instructions to the syscall layer.
//
// Grounded in the teacher's internal/vm.interrupt/intr.go: there, an interrupt{} value
// carries the vector table, the vector, and the caller's PC/PSR, and Handle pushes them
// and jumps to the service routine. Here the "push caller state" step is the
// ExceptionContext the assembly stub would have built on the kernel stack, and Handle's
// dispatch/return step is HandleSynchronous.
package trap

import "fmt"

// ExceptionContext mirrors the 272-byte frame the assembly vector stub builds on the
// kernel stack for a synchronous exception taken from EL0 (spec §3, §4.4):
// X0..X30 (31 general registers), 8 bytes of padding, ELR_EL1, SPSR_EL1.
type ExceptionContext struct {
	X    [31]uint64 // x0..x30; x8 carries the syscall number, x0..x6 the arguments.
	_    uint64     // Padding, matching the assembly stub's frame layout.
	ELR  uint64     // Saved return address.
	SPSR uint64     // Saved processor state.
}

// Arg returns argument register n (0..6), the syscall ABI's X0..X6.
func (c *ExceptionContext) Arg(n int) uint64 { return c.X[n] }

// SyscallNumber returns the value of X8, the syscall ABI's number register.
func (c *ExceptionContext) SyscallNumber() uint64 { return c.X[8] }

// SetReturn writes a handler's result into X0, where the assembly stub's restore sequence
// will pick it up on eret.
func (c *ExceptionContext) SetReturn(v int64) { c.X[0] = uint64(v) }

// Exception classes read from bits 26..31 of ESR_EL1 (spec §4.4). Only the classes this
// core distinguishes are named; every other value is routed to the fatal path.
const (
	ClassSVC64 = 0x15 // SVC instruction execution in AArch64 state.
)

// ExceptionClass extracts the exception class from a raw ESR_EL1 value.
func ExceptionClass(esr uint64) uint8 {
	return uint8((esr >> 26) & 0x3f)
}

// Dispatcher invokes a syscall given its number and the X0..X6 argument registers, and
// returns the value to write back into X0. It is implemented by internal/svc.Dispatcher.
type Dispatcher interface {
	Dispatch(num uint64, args [7]uint64) int64
}

// FatalFault is returned by HandleSynchronous when an EL0 exception is not an SVC. Per
// spec §4.4/§7, any other synchronous exception class from EL0 is, in this revision,
// fatal to the kernel: the core does not yet deliver a signal or terminate only the
// offending process (spec §9, open question).
type FatalFault struct {
	ESR, ELR, FAR uint64
}

func (f *FatalFault) Error() string {
	return fmt.Sprintf("trap: fatal fault: ESR=%#x ELR=%#x FAR=%#x", f.ESR, f.ELR, f.FAR)
}

// HandleSynchronous is the Rust-handler equivalent the assembly stub calls after building
// an ExceptionContext: it reads the exception class, dispatches SVCs, and returns a
// *FatalFault for anything else.
//
// farEL1 is the faulting address register, read only to annotate a fatal fault for
// diagnostics (SPEC_FULL.md's documented addition to spec.md's terse description).
func HandleSynchronous(ctx *ExceptionContext, esr, farEL1 uint64, d Dispatcher) error {
	if ExceptionClass(esr) != ClassSVC64 {
		return &FatalFault{ESR: esr, ELR: ctx.ELR, FAR: farEL1}
	}

	var args [7]uint64
	copy(args[:], ctx.X[0:7])

	ret := d.Dispatch(ctx.SyscallNumber(), args)
	ctx.SetReturn(ret)

	return nil
}

// Syscall builds the ExceptionContext an `svc #0` from EL0 would leave on the kernel stack
// (X8 = num, X0..X6 = args) and drives it through HandleSynchronous, exactly the path the
// assembly vector stub takes to a real handler. It is the stand-in for the instruction a
// compiled EL0 program has no occasion to execute here: any Go closure standing in for user
// or window-manager code (internal/kernel's DefaultWM, and programs registered in
// svc.Kernel.Programs) calls Syscall instead of Dispatch directly, so the trap layer (C4)
// sits on the path between a "user program" and the dispatcher (C9), not just in its tests.
func Syscall(d Dispatcher, num uint64, args ...uint64) int64 {
	var ctx ExceptionContext

	ctx.X[8] = num

	for i := 0; i < len(args) && i < 7; i++ {
		ctx.X[i] = args[i]
	}

	esr := uint64(ClassSVC64) << 26

	if err := HandleSynchronous(&ctx, esr, 0, d); err != nil {
		// Unreachable: esr is fixed to ClassSVC64 above, the only class
		// HandleSynchronous does not turn into a *FatalFault.
		panic(err)
	}

	return int64(ctx.X[0])
}

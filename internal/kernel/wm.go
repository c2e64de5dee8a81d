package kernel

import (
	"github.com/rost-kernel/rost/internal/fd"
	"github.com/rost-kernel/rost/internal/svc"
	"github.com/rost-kernel/rost/internal/trap"
)

// motdFile is the tiny bootstrap file DefaultWM opens on startup, seeded by
// Boot if the mounted disk does not already carry one -- the stand-in for an
// init script a real window manager would read, grounded in spec §4.9's
// open/read/write contract rather than anything richer.
const motdFile = "motd"

// motdBanner is motdFile's contents on a freshly seeded disk.
var motdBanner = []byte("rost kernel booting\n")

// greeterProgram is the name DefaultWM spawns via spawn_elf (spec §4.9,
// syscall 34) to exercise the spawn path from something other than a test
// harness: a second simulated EL0 program that writes to the console and
// exits.
const greeterProgram = "greeter"

// wmNamePtr, wmReadBuf, wmProgBuf and greeterBuf are fixed addresses in the
// simulated user address space DefaultWM and greeterEntry stage their
// path/buffer arguments at before issuing a syscall, standing in for the
// stack or .data addresses a compiled EL0 binary's arguments would actually
// live at.
const (
	wmNamePtr  = 0x9000
	wmReadBuf  = 0x9100
	wmProgBuf  = 0x9200
	greeterBuf = 0x9300

	// readChunkSize bounds a single read() call in DefaultWM's loop; it only
	// needs to exceed any chunk actually read, never the whole file at once.
	readChunkSize = 64
)

// DefaultWM is PID 1's real entry point: it opens motdFile, reads it in
// chunks and echoes each chunk to the console (fd 1), spawns greeterProgram,
// yields once to let it run, and exits. Every step goes through
// trap.Syscall -> trap.HandleSynchronous -> d.Dispatch, the same path a real
// `svc #0` from EL0 would take (spec §4.4/§4.9), so the trap and dispatch
// layers (C4, C9) sit on a real boot path rather than only under test.
//
// Grounded in the teacher's cmd/elsie "Demo" program (a fixed instruction
// sequence loaded and run to prove the VM end to end): DefaultWM plays the
// same role here, a known-good program that exercises the core mechanism
// instead of leaving it for unit tests alone to reach.
func DefaultWM(d *svc.Kernel) func() {
	return func() {
		if _, err := d.Memory.WriteAt(wmNamePtr, []byte(motdFile)); err != nil {
			return
		}

		fdNum := trap.Syscall(d, svc.SysOpen, wmNamePtr, uint64(len(motdFile)), uint64(fd.FlagRead))
		if fdNum >= 0 {
			for {
				n := trap.Syscall(d, svc.SysRead, uint64(fdNum), wmReadBuf, readChunkSize)
				if n <= 0 {
					break
				}

				trap.Syscall(d, svc.SysWrite, consoleFD, wmReadBuf, uint64(n))
			}

			trap.Syscall(d, svc.SysClose, uint64(fdNum))
		}

		if _, err := d.Memory.WriteAt(wmProgBuf, []byte(greeterProgram)); err == nil {
			trap.Syscall(d, svc.SysSpawnELF, wmProgBuf, uint64(len(greeterProgram)))
		}

		trap.Syscall(d, svc.SysYield)
		trap.Syscall(d, svc.SysExit, 0)
	}
}

// consoleFD mirrors svc's unexported console file descriptor (spec §4.9:
// write(1, ...) reaches the UART console); duplicated here rather than
// exported from svc, since no other package needs it.
const consoleFD = 1

// greeterEntry is greeterProgram's body, registered into a booted Kernel's
// spawn_elf registry (see Boot): it writes a short line to the console and
// exits, so spawn_elf's callee actually runs rather than being bookkeeping
// only reachable from tests.
func greeterEntry(d *svc.Kernel) func() {
	return func() {
		msg := []byte("greeter: hello from spawn_elf\n")
		if _, err := d.Memory.WriteAt(greeterBuf, msg); err != nil {
			return
		}

		trap.Syscall(d, svc.SysWrite, consoleFD, greeterBuf, uint64(len(msg)))
		trap.Syscall(d, svc.SysExit, 0)
	}
}

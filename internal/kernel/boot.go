// Package kernel wires together every component the other internal packages
// implement (C1..C13) into the boot sequence the distillation calls C14:
// consume BootInfo, bring up the frame allocator and GIC, mount the
// filesystem, start the window-manager process as PID 1, and run the
// scheduler loop. Boot does not call mm.BringUp.
//
// Grounded in the teacher's cmd/elsie "Demo" sequence (cmd/internal/cli/cmd/demo.go):
// there, main constructs a vm.Machine by hand, loads a fixed program into memory, and
// calls Run; Boot does the analogous thing for this kernel, in the fixed order spec §6's
// BootInfo handoff and spec §4 name, except the "program" run as PID 1 is a Go entry
// point (Config.WMFactory or Config.WM) rather than being poked into memory instruction
// by instruction.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rost-kernel/rost/internal/fs"
	"github.com/rost-kernel/rost/internal/intc"
	"github.com/rost-kernel/rost/internal/ipc"
	"github.com/rost-kernel/rost/internal/log"
	"github.com/rost-kernel/rost/internal/mm"
	"github.com/rost-kernel/rost/internal/proc"
	"github.com/rost-kernel/rost/internal/svc"
	"github.com/rost-kernel/rost/internal/virtio"
)

// PixelFormat mirrors spec §6's BootInfo.framebuffer.pixel_format. The kernel
// core does not interpret it (framebuffer syscalls are NotImplemented, per
// SPEC_FULL.md), but it rides along in BootInfo because the UEFI bootloader
// always reports it.
type PixelFormat uint32

// Framebuffer mirrors spec §6's BootInfo.framebuffer record.
type Framebuffer struct {
	Base             uint64
	Size             uint64
	Width            uint32
	Height           uint32
	PixelsPerScanRow uint32
	PixelFormat      PixelFormat
}

// BootInfo mirrors the UEFI-to-kernel handoff contract of spec §6. The
// kernel must not call any UEFI service after Boot is entered; this Go
// simulation has no UEFI calls to make in the first place, but BootInfo's
// shape is preserved so Config's fields have somewhere grounded to come
// from.
type BootInfo struct {
	MemoryMapDescriptors int
	Framebuffer          *Framebuffer // nil if none reported.
	ACPIRSDP             *uint64      // nil if absent.
}

// Config bundles everything Boot needs beyond the bare BootInfo: the block
// device backing the flat filesystem, the console UART, and an optional
// input-event source (spec §4.9's poll_event).
type Config struct {
	Info BootInfo

	Disk        virtio.Backend
	DiskSectors uint64
	Format      bool // true to fs.Format the disk before mounting.

	Console io.Writer
	Events  <-chan byte
	Clock   svc.Clock

	// Programs registers spawn_elf's named entry points (spec §4.9,
	// syscall 34), alongside the built-in greeter program.
	Programs map[string]func()

	// WM is PID 1's entry point for callers that only need a bare probe
	// function with no access to the fully wired syscall dispatcher (e.g.
	// tests). WMFactory takes priority when set.
	WM func()

	// WMFactory builds PID 1's entry point from the fully wired syscall
	// dispatcher, for entry points that issue real syscalls through
	// trap.HandleSynchronous (see DefaultWM). Real CLI entry points should
	// set this rather than WM, so the trap/dispatch layers (C4, C9) sit on
	// an actual boot path instead of being reachable only from tests.
	WMFactory func(d *svc.Kernel) func()
}

// Kernel is the fully wired, booted system: every component C1..C13 plus the
// dispatcher (C9) that drives them, ready for Run to pump the scheduler.
type Kernel struct {
	Info BootInfo

	Allocator *mm.Allocator
	GIC       *intc.GIC
	Timer     *intc.Timer

	Processes *proc.Table
	Scheduler *proc.Scheduler
	FS        *fs.FileSystem
	Shm       *ipc.Manager
	Memory    *mm.Memory

	Dispatcher *svc.Kernel

	logger *log.Logger
}

var errNoDisk = errors.New("kernel: boot config has no disk backend")

// seedMOTD ensures motdFile exists on the mounted filesystem, creating it
// with motdBanner's contents if absent -- the bootstrap content DefaultWM
// opens on startup, analogous to an init script a real window manager binary
// would ship with. Idempotent: a disk booted more than once keeps whatever
// motdFile already holds.
func seedMOTD(filesystem *fs.FileSystem) error {
	for _, e := range filesystem.ListFiles() {
		if e.FileName() == motdFile {
			return nil
		}
	}

	if err := filesystem.CreateFile(motdFile, uint32(len(motdBanner))); err != nil {
		return err
	}

	return filesystem.WriteFile(motdFile, motdBanner)
}

// Boot performs C14's init order: bring up the physical allocator and GIC,
// mount (or format-then-mount) the flat filesystem, wire the syscall
// dispatcher, and start PID 1 running Config.WMFactory's entry point (or
// Config.WM when no factory is set); with neither set, no PID 1 is started.
// PID 1's process is marked Terminated once its entry point returns.
func Boot(cfg Config) (*Kernel, error) {
	logger := log.DefaultLogger()

	if cfg.Disk == nil {
		return nil, errNoDisk
	}

	logger.Info("booting", "memory_map_descriptors", cfg.Info.MemoryMapDescriptors)

	alloc := mm.NewDefaultAllocator()

	gic := intc.New()
	gic.Init()
	timer := intc.NewTimer(100) // 100Hz -> 10ms tick, per spec §4.5.

	disk := virtio.NewDisk(cfg.Disk, cfg.DiskSectors)

	if cfg.Format {
		logger.Info("formatting filesystem", "sectors", cfg.DiskSectors)

		if err := fs.Format(disk, cfg.DiskSectors); err != nil {
			return nil, fmt.Errorf("kernel: format: %w", err)
		}
	}

	filesystem, err := fs.Mount(disk)
	if err != nil {
		return nil, fmt.Errorf("kernel: mount: %w", err)
	}

	if err := seedMOTD(filesystem); err != nil {
		return nil, fmt.Errorf("kernel: seed motd: %w", err)
	}

	processes := proc.NewTable()
	scheduler := proc.NewScheduler()
	shm := ipc.NewManager(alloc)
	memory := mm.NewMemory()

	clock := cfg.Clock
	if clock == nil {
		clock = svc.NewSystemClock()
	}

	dispatcher := svc.NewKernel(processes, scheduler, filesystem, shm, memory, cfg.Console, cfg.Events, clock)

	dispatcher.Programs[greeterProgram] = greeterEntry(dispatcher)

	for name, entry := range cfg.Programs {
		dispatcher.Programs[name] = entry
	}

	k := &Kernel{
		Info:       cfg.Info,
		Allocator:  alloc,
		GIC:        gic,
		Timer:      timer,
		Processes:  processes,
		Scheduler:  scheduler,
		FS:         filesystem,
		Shm:        shm,
		Memory:     memory,
		Dispatcher: dispatcher,
		logger:     logger,
	}

	wmEntry := cfg.WM
	if cfg.WMFactory != nil {
		wmEntry = cfg.WMFactory(dispatcher)
	}

	if wmEntry != nil {
		wm := processes.CreateNamedKernelProcess("wm", 0)
		scheduler.Spawn(wm.PID, func() {
			wmEntry()
			_ = processes.Terminate(wm.PID)
		})
		logger.Info("started window manager", "pid", wm.PID)
	}

	timer.Enable()

	return k, nil
}

// Run drives the scheduler's round-robin ready queue (spec §4.8), actually
// executing PID 1's thread (and whatever it spawns) rather than only
// bookkeeping which thread would run, until no thread remains ready or ctx
// is cancelled, standing in for the timer-ISR preemption loop a real EL1
// exception return would drive.
func (k *Kernel) Run(ctx context.Context) error {
	return k.Scheduler.Drive(ctx)
}

// Tick advances the simulated timer by n ticks, running the timer ISR
// (disable, reload, re-enable, preempt, EOI) when the countdown reaches
// zero (spec §4.5/§4.8's timer-driven preemption).
func (k *Kernel) Tick(n uint64) {
	if !k.Timer.Tick(n) {
		return
	}

	k.GIC.HandleTick(k.Timer, func() {
		k.Scheduler.Preempt()
	})
}

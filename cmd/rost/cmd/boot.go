package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rost-kernel/rost/internal/cli"
	"github.com/rost-kernel/rost/internal/console"
	"github.com/rost-kernel/rost/internal/kernel"
	"github.com/rost-kernel/rost/internal/log"
)

// Boot returns the "rost boot <disk-image>" subcommand: it mounts the given
// disk image, starts PID 1, and runs the scheduler loop until the ready
// queue is empty or the context is cancelled (Ctrl-C).
func Boot() cli.Command { return new(boot) }

type boot struct {
	sectors uint64
}

func (b *boot) FlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("boot", flag.ContinueOnError)
	fs.Uint64Var(&b.sectors, "sectors", 2048, "disk image size in 512-byte sectors")

	return fs
}

func (boot) Description() string { return "boot a disk image and run the scheduler loop" }

func (boot) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, "usage: rost boot [-sectors N] <disk-image>")
	return err
}

func (b *boot) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		_ = b.Usage(out)
		return 1
	}

	disk, err := os.OpenFile(args[0], os.O_RDWR, 0o644)
	if err != nil {
		logger.Error("open disk image", "err", err)
		return 1
	}
	defer disk.Close()

	cons, err := console.New(os.Stdin, os.Stdout)
	if err != nil {
		logger.Warn("console not a tty, input disabled", "err", err)
	}
	defer cons.Restore()

	go cons.Run(ctx) //nolint:errcheck

	k, err := kernel.Boot(kernel.Config{
		Disk:        disk,
		DiskSectors: b.sectors,
		Console:     cons,
		Events:      cons.Events(),
		// PID 1 per spec §3; a real window-manager binary is out of scope
		// here, but DefaultWM issues real open/read/write/spawn_elf/exit
		// syscalls through the dispatcher so the boot path actually
		// exercises the syscall/trap layer rather than running a no-op.
		WMFactory: kernel.DefaultWM,
	})
	if err != nil {
		logger.Error("boot", "err", err)
		return 1
	}

	if err := k.Run(ctx); err != nil {
		logger.Error("run", "err", err)
		return 1
	}

	return 0
}

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rost-kernel/rost/internal/cli"
	"github.com/rost-kernel/rost/internal/kernel"
	"github.com/rost-kernel/rost/internal/log"
	"github.com/rost-kernel/rost/internal/virtio"
)

// PS returns the "rost ps <disk-image>" subcommand: it boots the kernel
// (without running the scheduler loop) and lists the process table
// (SPEC_FULL.md, C6's Process.Name/Process.ParentPID supplement).
func PS() cli.Command { return new(ps) }

type ps struct{}

func (ps) FlagSet() *flag.FlagSet { return flag.NewFlagSet("ps", flag.ContinueOnError) }

func (ps) Description() string { return "list processes at boot" }

func (ps) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, "usage: rost ps <disk-image>")
	return err
}

func (p ps) Run(_ context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		_ = p.Usage(out)
		return 1
	}

	file, err := os.OpenFile(args[0], os.O_RDWR, 0o644)
	if err != nil {
		logger.Error("open disk image", "err", err)
		return 1
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		logger.Error("stat disk image", "err", err)
		return 1
	}

	sectors := uint64(info.Size()) / virtio.SectorSize

	k, err := kernel.Boot(kernel.Config{
		Disk:        file,
		DiskSectors: sectors,
		WMFactory:   kernel.DefaultWM,
	})
	if err != nil {
		logger.Error("boot", "err", err)
		return 1
	}

	fmt.Fprintf(out, "%-6s %-6s %-8s %-6s %s\n", "PID", "PPID", "NAME", "TYPE", "STATE")

	for _, proc := range k.Processes.List() {
		fmt.Fprintf(out, "%-6d %-6d %-8s %-6s %s\n", proc.PID, proc.ParentPID, proc.Name, proc.Type, proc.State)
	}

	return 0
}

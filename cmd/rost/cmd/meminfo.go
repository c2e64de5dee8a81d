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

// MemInfo returns the "rost meminfo <disk-image>" subcommand: it boots far
// enough to bring up the physical frame allocator (C1) and reports its
// watermark and region end via Allocator.Stats (SPEC_FULL.md, C1).
func MemInfo() cli.Command { return new(meminfo) }

type meminfo struct{}

func (meminfo) FlagSet() *flag.FlagSet { return flag.NewFlagSet("meminfo", flag.ContinueOnError) }

func (meminfo) Description() string { return "report the physical frame allocator's watermark" }

func (meminfo) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, "usage: rost meminfo <disk-image>")
	return err
}

func (m meminfo) Run(_ context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		_ = m.Usage(out)
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

	k, err := kernel.Boot(kernel.Config{Disk: file, DiskSectors: sectors})
	if err != nil {
		logger.Error("boot", "err", err)
		return 1
	}

	watermark, regionEnd := k.Allocator.Stats()

	fmt.Fprintf(out, "watermark   %s\n", watermark)
	fmt.Fprintf(out, "region_end  %s\n", regionEnd)
	fmt.Fprintf(out, "free_bytes  %d\n", uint64(regionEnd)-uint64(watermark))

	return 0
}

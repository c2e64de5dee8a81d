package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rost-kernel/rost/internal/cli"
	"github.com/rost-kernel/rost/internal/fs"
	"github.com/rost-kernel/rost/internal/log"
	"github.com/rost-kernel/rost/internal/virtio"
)

// FSFormat returns the "rost fsformat <disk-image> <sectors>" subcommand,
// exercising C11+C12's Format end to end from the command line.
func FSFormat() cli.Command { return new(fsformat) }

type fsformat struct{}

func (fsformat) FlagSet() *flag.FlagSet { return flag.NewFlagSet("fsformat", flag.ContinueOnError) }

func (fsformat) Description() string { return "format a disk image with a fresh flat filesystem" }

func (fsformat) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, "usage: rost fsformat <disk-image> <sectors>")
	return err
}

func (f fsformat) Run(_ context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 2 {
		_ = f.Usage(out)
		return 1
	}

	sectors, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		logger.Error("parse sectors", "err", err)
		return 1
	}

	file, err := os.Create(args[0])
	if err != nil {
		logger.Error("create disk image", "err", err)
		return 1
	}
	defer file.Close()

	if err := file.Truncate(int64(sectors) * virtio.SectorSize); err != nil {
		logger.Error("truncate disk image", "err", err)
		return 1
	}

	disk := virtio.NewDisk(file, sectors)

	if err := fs.Format(disk, sectors); err != nil {
		logger.Error("format", "err", err)
		return 1
	}

	logger.Info("formatted", "path", args[0], "sectors", sectors)

	return 0
}

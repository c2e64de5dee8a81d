package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rost-kernel/rost/internal/cli"
	"github.com/rost-kernel/rost/internal/fs"
	"github.com/rost-kernel/rost/internal/log"
	"github.com/rost-kernel/rost/internal/virtio"
)

// FSLs returns the "rost fsls <disk-image>" subcommand, mounting the given
// image read-write and listing its file table (C11+C12's read paths).
func FSLs() cli.Command { return new(fsls) }

type fsls struct{}

func (fsls) FlagSet() *flag.FlagSet { return flag.NewFlagSet("fsls", flag.ContinueOnError) }

func (fsls) Description() string { return "list the files in a flat filesystem image" }

func (fsls) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, "usage: rost fsls <disk-image>")
	return err
}

func (f fsls) Run(_ context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		_ = f.Usage(out)
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
	disk := virtio.NewDisk(file, sectors)

	fsys, err := fs.Mount(disk)
	if err != nil {
		logger.Error("mount", "err", err)
		return 1
	}

	for _, entry := range fsys.ListFiles() {
		fmt.Fprintf(out, "%-8s %8d bytes\n", entry.FileName(), entry.SizeBytes)
	}

	return 0
}

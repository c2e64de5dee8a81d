// rost is the kernel's operator-facing entry point: boot a disk image under
// the scheduler loop, format a fresh flat filesystem, list an existing one's
// contents, or inspect the allocator/process table (C14, supplementing
// spec.md's test-only treatment of these operations).
//
// Grounded in the teacher's cmd/elsie, which wires a vm.Machine by hand in
// main; here main wires a Commander over five subcommands instead of one
// fixed demo sequence.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rost-kernel/rost/cmd/rost/cmd"
	"github.com/rost-kernel/rost/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	runner := cli.New(ctx).
		WithLogger(os.Stderr).
		WithHelp(cmd.Help()).
		WithCommands([]cli.Command{
			cmd.Boot(),
			cmd.FSFormat(),
			cmd.FSLs(),
			cmd.MemInfo(),
			cmd.PS(),
		})

	os.Exit(runner.Execute(os.Args[1:]))
}

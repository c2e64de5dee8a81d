package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/rost-kernel/rost/internal/cli"
	"github.com/rost-kernel/rost/internal/log"
)

// Help returns the default command shown when rost is invoked with no
// arguments or an unrecognized subcommand.
func Help() cli.Command { return new(help) }

type help struct{}

func (help) FlagSet() *flag.FlagSet { return flag.NewFlagSet("help", flag.ContinueOnError) }

func (help) Description() string { return "show usage" }

func (h help) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, "usage: rost <boot|fsformat|fsls|meminfo|ps> [args...]")
	return err
}

func (h help) Run(_ context.Context, _ []string, out io.Writer, _ *log.Logger) int {
	_ = h.Usage(out)
	return 1
}

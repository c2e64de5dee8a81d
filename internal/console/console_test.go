// Package console_test tries to test consoles.
//
// The test is skipped when stdin is not a terminal, which notably includes when run with "go
// test" (it redirects standard streams). Run a built test binary directly to exercise it for
// real: go test -c && ./console.test
package console_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rost-kernel/rost/internal/console"
)

func TestConsoleWrite(t *testing.T) {
	cons, err := console.New(os.Stdin, os.Stdout)
	if errors.Is(err, console.ErrNoTTY) {
		t.Skipf("not a tty: %s", err)
	} else if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	defer cons.Restore()

	msg := []byte("hello\n")

	n, err := cons.Write(msg)
	if err != nil {
		t.Fatalf("write: %s", err)
	}

	if n != len(msg) {
		t.Errorf("wrote %d bytes, want %d", n, len(msg))
	}
}

func TestConsoleEventsNotATTY(t *testing.T) {
	var buf bytes.Buffer

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}

	defer r.Close()
	defer w.Close()

	cons, err := console.New(r, os.NewFile(0, "discard"))
	if err != nil && !errors.Is(err, console.ErrNoTTY) {
		t.Fatalf("unexpected error: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	go cons.Run(ctx) //nolint:errcheck

	select {
	case _, ok := <-cons.Events():
		if ok {
			t.Errorf("expected closed events channel for non-tty console")
		}
	case <-ctx.Done():
	}

	_ = buf
}

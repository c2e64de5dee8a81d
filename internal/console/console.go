// Package console adapts a host terminal into the UART the kernel core talks to.
//
// The kernel's exception and syscall handlers (internal/trap, internal/svc) treat
// the UART as a pair of registers: one FIFO of bytes written by write(1, ...) and
// print_debug, and one FIFO of input bytes consumed by poll_event. Console is the
// external collaborator on the other end, exactly as the boot info contract in
// spec §6 describes devices beyond VirtIO-blk: an interface, not an
// implementation the kernel core depends on directly.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrNoTTY is returned if standard input is not a terminal. Non-interactive use (tests,
// piped input) falls back to a Console that only ever produces EOF from Events.
var ErrNoTTY = errors.New("console: not a TTY")

// Console is a serial console backed by the host terminal in raw mode.
//
// Bytes written with Write are emitted to the terminal immediately, mirroring a
// UART's transmit register. Bytes typed at the terminal are delivered on the
// channel returned by Events, mirroring a UART's receive register with its
// ready bit: the kernel's poll_event handler drains the channel
// non-blockingly and returns None when it is empty.
type Console struct {
	in  *os.File
	out *os.File
	fd  int

	state *term.State

	mut    sync.Mutex
	events chan byte
}

// New creates a Console using the given streams. If in is not a terminal, New returns
// ErrNoTTY together with a Console whose Events channel is immediately closed; Write still works (it writes to
// out unconditionally), which keeps batch/test use simple.
func New(in, out *os.File) (*Console, error) {
	fd := int(in.Fd())

	cons := &Console{
		in:     in,
		out:    out,
		fd:     fd,
		events: make(chan byte, 16),
	}

	if !term.IsTerminal(fd) {
		close(cons.events)
		return cons, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		close(cons.events)
		return cons, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	cons.state = saved

	if err := cons.setTerminalParams(1, 0); err != nil {
		_ = term.Restore(fd, saved)
		close(cons.events)

		return cons, err
	}

	return cons, nil
}

// Run reads bytes from the terminal and publishes them on Events until ctx is cancelled
// or the underlying read fails.
func (c *Console) Run(ctx context.Context) error {
	if c.state == nil {
		return nil // not a terminal; nothing to pump.
	}

	reader := bufio.NewReader(c.in)

	defer close(c.events)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		b, err := reader.ReadByte()
		if err != nil {
			return fmt.Errorf("console: read: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.events <- b:
		}
	}
}

// Events returns the channel of bytes read from the terminal.
func (c *Console) Events() <-chan byte {
	return c.events
}

// Write implements io.Writer, emitting bytes to the terminal's output stream.
func (c *Console) Write(p []byte) (int, error) {
	c.mut.Lock()
	defer c.mut.Unlock()

	return c.out.Write(p)
}

// Restore returns the terminal to its original state. It is safe to call more than once.
func (c *Console) Restore() {
	if c.state == nil {
		return
	}

	_ = c.in.SetReadDeadline(time.Now())
	_ = term.Restore(c.fd, c.state)
}

func (c *Console) setTerminalParams(vmin, vtime byte) error {
	_ = syscall.SetNonblock(c.fd, true)

	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	if err := unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO); err != nil {
		return err
	}

	return c.in.SetReadDeadline(time.Time{})
}

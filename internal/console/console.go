// Package console adapts a real terminal to the hart's UART, providing the
// host side of the memory-mapped serial device and syscon power controller
// the guest kernel talks to.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/smoynes/rv32ima/internal/hart"
	"github.com/smoynes/rv32ima/internal/log"
)

// ErrNoTTY is returned when standard input is not a terminal; the caller
// falls back to headless mode (no raw-terminal console and no Console
// Bridge).
var ErrNoTTY = errors.New("console: not a TTY")

// Console bridges a raw terminal to a guest's UART and syscon registers. It
// implements [hart.Bridge] directly: MMIO loads/stores are synchronous calls
// from the Step loop, while a background goroutine feeds keystrokes into the
// [Keyboard] buffer the Bridge reads from.
type Console struct {
	in    *os.File
	out   *os.File
	fd    int
	state *term.State

	kbd Keyboard

	halted  bool
	restart bool

	log *log.Logger
}

// NewConsole puts the terminal into raw mode and returns a Console reading
// keystrokes from sin and writing UART output to sout. If sin is not a
// terminal, ErrNoTTY is returned and the caller should run headless.
func NewConsole(sin, sout *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	c := &Console{
		fd:    fd,
		in:    sin,
		out:   sout,
		state: saved,
		log:   log.DefaultLogger(),
	}

	if err := c.setTerminalParams(1, 0); err != nil {
		return nil, err
	}

	return c, nil
}

// Context starts the console's background terminal reader and returns a
// context that is cancelled if the terminal read fails. Calling the returned
// CancelFunc restores the terminal.
func (c *Console) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cause := context.WithCancelCause(parent)

	go c.readTerminal(ctx, cause)

	return ctx, func() { cause(nil); c.Restore() }
}

// Press injects a keystroke directly, bypassing the terminal reader. Useful
// for tests and the debug CSR read-char path in other code that already has
// a byte in hand.
func (c *Console) Press(b byte) { c.kbd.Push(b) }

// Restore returns the terminal to its original state.
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

	_ = c.in.SetReadDeadline(time.Time{})

	return nil
}

// readTerminal reads bytes from the terminal into the keyboard buffer until
// the context is cancelled or the read fails.
func (c *Console) readTerminal(ctx context.Context, cancel context.CancelCauseFunc) {
	buf := bufio.NewReader(c.in)

	_ = syscall.SetNonblock(c.fd, false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, err := buf.ReadByte()
		if err != nil {
			cancel(err)
			return
		}

		c.kbd.Push(b)
	}
}

var _ hart.Bridge = (*Console)(nil)

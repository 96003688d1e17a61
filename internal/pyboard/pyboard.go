// Package pyboard drives the raw REPL of a MicroPython board: the only way
// to run code on it over a serial line.
//
// A Board is not safe for concurrent use. Whoever holds it owns the
// transport until the call returns.
package pyboard

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/martinribelotta/uPyIDE/internal/failure"
	"github.com/martinribelotta/uPyIDE/internal/transport"
)

// Control bytes understood by the board.
const (
	CtrlA = 0x01 // enter raw REPL
	CtrlB = 0x02 // exit raw REPL
	CtrlC = 0x03 // interrupt
	CtrlD = 0x04 // execute buffered input; soft reboot in the friendly REPL
)

var (
	// RawPrompt is printed once the board is ready to accept code.
	RawPrompt = []byte("raw REPL; CTRL-B to exit\r\n>")
	// Terminator ends the captured output of a raw REPL execution.
	Terminator = []byte{CtrlD, '>'}

	softRebootBanner = []byte("soft reboot\r\n")
	interrupt        = []byte{'\r', CtrlC, CtrlC}
)

const (
	DefaultEnterTimeout = 2 * time.Second
	writeSlice          = 256
	writePause          = 10 * time.Millisecond
	drainLimit          = time.Second
)

// DeviceError carries the traceback the board printed on stderr.
type DeviceError struct {
	Traceback string
}

func (e *DeviceError) Error() string {
	return "device raised: " + lastLine(e.Traceback)
}

// Board runs code on the device through its raw REPL.
type Board struct {
	t   transport.Transport
	log *zap.Logger

	// EnterTimeout bounds the wait for RawPrompt and the "OK" reply.
	EnterTimeout time.Duration
	// Paced makes ExecNoFollow write code in small paced slices.
	Paced bool

	inRaw bool
}

// New wraps t. The board is assumed to be in an unknown state.
func New(t transport.Transport, log *zap.Logger) *Board {
	if log == nil {
		log = zap.NewNop()
	}
	return &Board{
		t:            t,
		log:          log.Named("pyboard"),
		EnterTimeout: DefaultEnterTimeout,
		Paced:        true,
	}
}

// Transport returns the underlying channel. Callers may only use it
// between ExecNoFollow and Follow.
func (b *Board) Transport() transport.Transport { return b.t }

// InRaw reports whether Enter succeeded and Exit has not been called since.
func (b *Board) InRaw() bool { return b.inRaw }

// Enter interrupts whatever is running and switches the board to raw mode.
// The two interrupts are always sent, whatever state we believe the board is
// in.
func (b *Board) Enter() error {
	b.log.Debug("entering raw REPL")
	if err := b.write("enter", interrupt); err != nil {
		return err
	}
	if err := b.drain(); err != nil {
		return err
	}
	if err := b.write("enter", []byte{'\r', CtrlA}); err != nil {
		return err
	}
	if _, err := b.readUntil(RawPrompt, b.EnterTimeout); err != nil {
		return wrapOp("enter raw REPL", err)
	}
	b.inRaw = true
	return nil
}

// Exit returns the board to the friendly interactive REPL.
func (b *Board) Exit() error {
	b.inRaw = false
	b.log.Debug("leaving raw REPL")
	return b.write("exit", []byte{'\r', CtrlB})
}

// Run executes code and returns what it printed. It gives up after timeout
// and puts the board back in friendly mode before returning a Timeout
// failure.
func (b *Board) Run(code string, timeout time.Duration) ([]byte, error) {
	if err := b.ExecNoFollow(code); err != nil {
		return nil, err
	}
	return b.Follow(timeout)
}

// ExecNoFollow sends code and waits for the board to accept it, without
// waiting for it to finish. The caller owns the transport until Follow.
func (b *Board) ExecNoFollow(code string) error {
	b.log.Debug("exec", zap.Int("bytes", len(code)))

	var err error
	if b.Paced {
		err = transport.WritePaced(b.t, []byte(code), writeSlice, writePause)
	} else {
		_, err = b.t.Write([]byte(code))
	}
	if err != nil {
		return failure.New(failure.Transport, "write code", "", err)
	}
	if err := b.write("exec", []byte{CtrlD}); err != nil {
		return err
	}

	reply, err := b.readN(2, b.EnterTimeout)
	if err != nil {
		return wrapOp("exec", err)
	}
	if !bytes.Equal(reply, []byte("OK")) {
		return failure.Errorf(failure.RemoteCall, "exec", "", "board did not accept code, got %q", reply)
	}
	return nil
}

// Follow collects output until the terminator. A non-empty stderr is
// returned as a RemoteCall failure wrapping a *DeviceError, together with
// whatever reached stdout.
func (b *Board) Follow(timeout time.Duration) ([]byte, error) {
	data, err := b.readUntil(Terminator, timeout)
	if err != nil {
		if failure.Is(err, failure.Timeout) {
			b.log.Warn("no terminator before timeout, forcing friendly mode", zap.Duration("timeout", timeout))
			if exitErr := b.Exit(); exitErr != nil {
				b.log.Warn("exit after timeout failed", zap.Error(exitErr))
			}
		}
		return nil, wrapOp("follow", err)
	}

	body := data[:len(data)-len(Terminator)]
	idx := bytes.LastIndexByte(body, CtrlD)
	if idx < 0 {
		return nil, failure.Errorf(failure.RemoteCall, "follow", "", "malformed reply %q", body)
	}
	stdout, stderr := body[:idx], body[idx+1:]
	if len(stderr) > 0 {
		return stdout, failure.New(failure.RemoteCall, "exec", "", &DeviceError{Traceback: string(stderr)})
	}
	return stdout, nil
}

// SoftReset reboots the interpreter from the friendly REPL.
func (b *Board) SoftReset(timeout time.Duration) error {
	b.log.Info("soft reset")
	if b.inRaw {
		if err := b.Exit(); err != nil {
			return err
		}
	}
	if err := b.write("soft reset", interrupt); err != nil {
		return err
	}
	if err := b.drain(); err != nil {
		return err
	}
	if err := b.write("soft reset", []byte{CtrlD}); err != nil {
		return err
	}
	if _, err := b.readUntil(softRebootBanner, timeout); err != nil {
		return wrapOp("soft reset", err)
	}
	return b.drain()
}

func (b *Board) write(op string, p []byte) error {
	if _, err := b.t.Write(p); err != nil {
		return failure.New(failure.Transport, op, "", err)
	}
	return nil
}

// drain discards input until the line is quiet for one read timeout.
func (b *Board) drain() error {
	buf := make([]byte, 256)
	deadline := time.Now().Add(drainLimit)
	for time.Now().Before(deadline) {
		n, err := b.t.Read(buf)
		if err != nil {
			return failure.New(failure.Transport, "drain", "", err)
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

// readUntil reads one byte at a time so it never consumes anything past the
// suffix.
func (b *Board) readUntil(suffix []byte, timeout time.Duration) ([]byte, error) {
	var data []byte
	one := make([]byte, 1)
	deadline := time.Now().Add(timeout)
	for {
		n, err := b.t.Read(one)
		if err != nil {
			return data, failure.New(failure.Transport, "read", "", err)
		}
		if n == 1 {
			data = append(data, one[0])
			if bytes.HasSuffix(data, suffix) {
				return data, nil
			}
			continue
		}
		if time.Now().After(deadline) {
			return data, failure.Errorf(failure.Timeout, "read", "", "waiting for %q, got %q", suffix, tail(data, 40))
		}
	}
}

func (b *Board) readN(n int, timeout time.Duration) ([]byte, error) {
	data := make([]byte, 0, n)
	buf := make([]byte, n)
	deadline := time.Now().Add(timeout)
	for len(data) < n {
		m, err := b.t.Read(buf[:n-len(data)])
		if err != nil {
			return data, failure.New(failure.Transport, "read", "", err)
		}
		if m > 0 {
			data = append(data, buf[:m]...)
			continue
		}
		if time.Now().After(deadline) {
			return data, failure.Errorf(failure.Timeout, "read", "", "wanted %d bytes, got %q", n, data)
		}
	}
	return data, nil
}

func wrapOp(op string, err error) error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return failure.New(fe.Kind, op, fe.Path, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func tail(p []byte, n int) []byte {
	if len(p) > n {
		return p[len(p)-n:]
	}
	return p
}

func lastLine(s string) string {
	lines := bytes.Split(bytes.TrimSpace([]byte(s)), []byte("\n"))
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}

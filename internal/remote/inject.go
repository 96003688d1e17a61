package remote

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/martinribelotta/uPyIDE/internal/failure"
	"github.com/martinribelotta/uPyIDE/internal/pyboard"
	"github.com/martinribelotta/uPyIDE/internal/pylit"
)

const DefaultTimeout = 10 * time.Second

// Injector implements Caller by textual injection through the raw REPL.
// Calls are serialized.
type Injector struct {
	mu    sync.Mutex
	board *pyboard.Board
	log   *zap.Logger

	// Timeout bounds how long a call may run on the board.
	Timeout time.Duration
	// Echo, if set, receives every script before it is sent.
	Echo io.Writer
}

func NewInjector(b *pyboard.Board, log *zap.Logger) *Injector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Injector{board: b, log: log.Named("remote"), Timeout: DefaultTimeout}
}

// Script returns the code sent to the board for fn(args...).
func Script(fn Func, args ...any) (string, error) {
	lit, err := pylit.EncodeArgs(args...)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(fn.Source)
	b.WriteString("output = " + fn.Name + "(" + lit + ")\n")
	b.WriteString("if output is not None:\n")
	b.WriteString("    print(repr(output))\n")
	return b.String(), nil
}

func (in *Injector) Call(fn Func, args ...any) (any, error) {
	return in.call(fn, nil, args)
}

// CallTransfer starts fn and runs xfer while it executes. A failed xfer is
// reported as a Transfer failure; the board is still returned to friendly
// mode.
func (in *Injector) CallTransfer(fn Func, xfer Transfer, args ...any) (any, error) {
	return in.call(fn, xfer, args)
}

func (in *Injector) call(fn Func, xfer Transfer, args []any) (result any, err error) {
	script, err := Script(fn, args...)
	if err != nil {
		return nil, failure.New(failure.RemoteCall, fn.Name, "", err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.log.Debug("call", zap.String("func", fn.Name), zap.Int("args", len(args)))
	if ce := in.log.Check(zap.DebugLevel, "script"); ce != nil {
		ce.Write(zap.String("func", fn.Name), zap.String("code", script))
	}

	if in.Echo != nil {
		fmt.Fprintf(in.Echo, "----- %s: %d bytes to the board -----\n%s-----\n", fn.Name, len(script), script)
	}

	if err := in.board.Enter(); err != nil {
		return nil, err
	}
	defer func() {
		if exitErr := in.board.Exit(); exitErr != nil && err == nil {
			err = exitErr
		}
	}()

	if err := in.board.ExecNoFollow(script); err != nil {
		return nil, err
	}
	if xfer != nil {
		if err := xfer(in.board.Transport()); err != nil {
			return nil, failure.New(failure.Transfer, fn.Name, "", err)
		}
	}
	out, err := in.board.Follow(in.Timeout)
	if err != nil {
		return nil, err
	}
	return in.decode(fn, out)
}

// decode parses the last printed line. Anything printed before it is noise
// from the function and is only logged.
func (in *Injector) decode(fn Func, out []byte) (any, error) {
	text := bytes.TrimSpace(out)
	if len(text) == 0 {
		return nil, nil
	}
	last := text
	if i := bytes.LastIndexByte(text, '\n'); i >= 0 {
		in.log.Debug("extra output", zap.String("func", fn.Name), zap.ByteString("output", text[:i]))
		last = bytes.TrimSpace(text[i+1:])
	}
	v, err := pylit.Decode(string(last))
	if err != nil {
		return nil, failure.Errorf(failure.RemoteCall, fn.Name, "", "unparseable reply %q: %w", last, err)
	}
	in.log.Debug("result", zap.String("func", fn.Name), zap.ByteString("reply", last))
	return v, nil
}

package watch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/martinribelotta/uPyIDE/internal/failure"
	"github.com/martinribelotta/uPyIDE/internal/pyboard"
	"github.com/martinribelotta/uPyIDE/internal/pylit"
	"github.com/martinribelotta/uPyIDE/internal/remote"
	"github.com/martinribelotta/uPyIDE/internal/transport"
)

// ErrBusy is returned when a request is made while another is outstanding.
var ErrBusy = errors.New("watch: a request is already outstanding")

const DefaultExchangeTimeout = 10 * time.Second

var enterRaw = []byte{'\r', pyboard.CtrlC, pyboard.CtrlC, '\r', pyboard.CtrlA}

// Exchange runs scripts on the board while something else keeps pumping the
// stream into the chain. Replies are picked out of the stream with
// sentinels. At most one request is outstanding.
type Exchange struct {
	chain *Chain
	w     io.Writer
	log   *zap.Logger

	Timeout time.Duration

	mu   sync.Mutex
	busy bool
}

// NewExchange writes requests to w and expects the replies to arrive through
// chain.
func NewExchange(chain *Chain, w io.Writer, log *zap.Logger) *Exchange {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exchange{chain: chain, w: w, log: log.Named("exchange"), Timeout: DefaultExchangeTimeout}
}

// Busy reports whether a request is outstanding. Nothing else may write to
// the board while it is.
func (e *Exchange) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Run executes script in the raw REPL and returns its stdout. A traceback
// is returned as a RemoteCall failure along with the stdout.
func (e *Exchange) Run(ctx context.Context, script string) ([]byte, error) {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.busy = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	ready := NewSentinel(pyboard.RawPrompt)
	reply := NewSentinel(pyboard.Terminator)
	e.chain.Add(ready)
	defer e.chain.Remove(ready)
	defer e.chain.Remove(reply)
	if _, err := e.w.Write(enterRaw); err != nil {
		return nil, failure.New(failure.Transport, "enter raw REPL", "", err)
	}

	captured, err := e.exec(ctx, ready, reply, script)
	// Back to the friendly REPL whatever happened.
	if _, werr := e.w.Write([]byte{'\r', pyboard.CtrlB}); werr != nil && err == nil {
		err = failure.New(failure.Transport, "exit raw REPL", "", werr)
	}
	if err != nil {
		return nil, err
	}
	return splitReply(captured)
}

func (e *Exchange) exec(ctx context.Context, ready, reply *Sentinel, script string) ([]byte, error) {
	if _, err := ready.Wait(ctx); err != nil {
		return nil, failure.New(failure.Timeout, "enter raw REPL", "", err)
	}
	e.chain.Add(reply)
	e.log.Debug("run", zap.Int("bytes", len(script)))
	if err := transport.WritePaced(e.w, []byte(script), 256, 10*time.Millisecond); err != nil {
		return nil, failure.New(failure.Transport, "write code", "", err)
	}
	if _, err := e.w.Write([]byte{pyboard.CtrlD}); err != nil {
		return nil, failure.New(failure.Transport, "exec", "", err)
	}
	captured, err := reply.Wait(ctx)
	if err != nil {
		return nil, failure.New(failure.Timeout, "follow", "", err)
	}
	return captured, nil
}

// splitReply turns "OK<stdout>\x04<stderr>\x04>" into stdout or an error.
func splitReply(captured []byte) ([]byte, error) {
	body := bytes.TrimSuffix(captured, pyboard.Terminator)
	if i := bytes.Index(body, []byte("OK")); i >= 0 {
		body = body[i+2:]
	}
	idx := bytes.LastIndexByte(body, pyboard.CtrlD)
	if idx < 0 {
		return nil, failure.Errorf(failure.RemoteCall, "follow", "", "malformed reply %q", body)
	}
	stdout, stderr := body[:idx], body[idx+1:]
	if len(stderr) > 0 {
		return stdout, failure.New(failure.RemoteCall, "exec", "", &pyboard.DeviceError{Traceback: string(stderr)})
	}
	return stdout, nil
}

// Call runs fn on the board the same way remote.Injector does and decodes
// the printed result.
func (e *Exchange) Call(ctx context.Context, fn remote.Func, args ...any) (any, error) {
	script, err := remote.Script(fn, args...)
	if err != nil {
		return nil, failure.New(failure.RemoteCall, fn.Name, "", err)
	}
	out, err := e.Run(ctx, script)
	if err != nil {
		return nil, err
	}
	text := bytes.TrimSpace(out)
	if len(text) == 0 {
		return nil, nil
	}
	if i := bytes.LastIndexByte(text, '\n'); i >= 0 {
		text = bytes.TrimSpace(text[i+1:])
	}
	v, err := pylit.Decode(string(text))
	if err != nil {
		return nil, failure.Errorf(failure.RemoteCall, fn.Name, "", "unparseable reply %q: %w", text, err)
	}
	return v, nil
}

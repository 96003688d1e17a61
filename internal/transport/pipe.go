package transport

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrClosed is returned by writes on a closed pipe end.
var ErrClosed = errors.New("transport: closed")

// NoTimeout makes Read block until data arrives or the pipe closes.
const NoTimeout time.Duration = -1

type buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
	notify chan struct{}
}

func newBuffer() *buffer {
	return &buffer{notify: make(chan struct{}, 1)}
}

func (b *buffer) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *buffer) write(p []byte) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	b.data = append(b.data, p...)
	b.mu.Unlock()
	b.signal()
	return len(p), nil
}

func (b *buffer) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.signal()
}

func (b *buffer) read(p []byte, timeout time.Duration) (int, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		b.mu.Lock()
		if len(b.data) > 0 {
			n := copy(p, b.data)
			b.data = b.data[n:]
			more := len(b.data) > 0
			b.mu.Unlock()
			if more {
				b.signal()
			}
			return n, nil
		}
		if b.closed {
			b.mu.Unlock()
			return 0, io.EOF
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-expired:
			return 0, nil
		}
	}
}

// PipeEnd is one side of an in-memory duplex link. It behaves like a serial
// port: reads time out with (0, nil).
type PipeEnd struct {
	name string
	in   *buffer
	out  *buffer

	mu      sync.Mutex
	timeout time.Duration
}

// Pipe returns two connected ends. Bytes written to one are read from the
// other. Both ends start with DefaultReadTimeout.
func Pipe() (*PipeEnd, *PipeEnd) {
	ab, ba := newBuffer(), newBuffer()
	host := &PipeEnd{name: "pipe:host", in: ba, out: ab, timeout: DefaultReadTimeout}
	dev := &PipeEnd{name: "pipe:device", in: ab, out: ba, timeout: DefaultReadTimeout}
	return host, dev
}

func (e *PipeEnd) Name() string { return e.name }

func (e *PipeEnd) Read(p []byte) (int, error) {
	e.mu.Lock()
	timeout := e.timeout
	e.mu.Unlock()
	return e.in.read(p, timeout)
}

func (e *PipeEnd) Write(p []byte) (int, error) {
	return e.out.write(p)
}

func (e *PipeEnd) SetReadTimeout(d time.Duration) error {
	e.mu.Lock()
	e.timeout = d
	e.mu.Unlock()
	return nil
}

// Close closes both directions; the peer sees io.EOF once drained.
func (e *PipeEnd) Close() error {
	e.out.close()
	e.in.close()
	return nil
}

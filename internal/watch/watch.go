// Package watch lets several consumers share one continuously read byte
// stream. Each consumer is a Watcher; the Chain feeds every chunk to every
// active watcher in order and drops a watcher once it reports completion.
package watch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// Watcher consumes stream bytes. Update returns true once the watcher is
// complete; it is then removed and sees nothing more.
type Watcher interface {
	Update(p []byte) bool
}

// WatcherFunc adapts a function to Watcher.
type WatcherFunc func(p []byte) bool

func (f WatcherFunc) Update(p []byte) bool { return f(p) }

type entry struct {
	w Watcher
}

// Chain is an ordered list of active watchers. It is safe for concurrent
// use; Add may be called from inside Update.
type Chain struct {
	mu     sync.Mutex
	active []*entry
}

// Add appends w. A watcher added while a chunk is being fed starts with the
// next chunk.
func (c *Chain) Add(w Watcher) {
	c.mu.Lock()
	c.active = append(c.active, &entry{w: w})
	c.mu.Unlock()
}

// Remove drops w if it is still active. w must be of a comparable type.
func (c *Chain) Remove(w Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.active {
		if e.w == w {
			copy(c.active[i:], c.active[i+1:])
			c.active[len(c.active)-1] = nil
			c.active = c.active[:len(c.active)-1]
			return
		}
	}
}

// Len returns the number of active watchers.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Feed hands p to every active watcher in order.
func (c *Chain) Feed(p []byte) {
	c.mu.Lock()
	snapshot := append([]*entry(nil), c.active...)
	c.mu.Unlock()

	var finished map[*entry]bool
	for _, e := range snapshot {
		if e.w.Update(p) {
			if finished == nil {
				finished = map[*entry]bool{}
			}
			finished[e] = true
		}
	}
	if finished == nil {
		return
	}

	c.mu.Lock()
	kept := c.active[:0]
	for _, e := range c.active {
		if !finished[e] {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(c.active); i++ {
		c.active[i] = nil
	}
	c.active = kept
	c.mu.Unlock()
}

// Pump reads r until ctx is done or r fails, feeding each chunk. r is
// expected to return (0, nil) on its read timeout so cancellation is noticed
// promptly. io.EOF ends the pump without error.
func (c *Chain) Pump(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		if n > 0 {
			c.Feed(bytes.Clone(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type sentinelState int

const (
	waiting sentinelState = iota
	matched
)

// Sentinel captures bytes up to and including a suffix. Bytes after the
// suffix in the same chunk are ignored.
type Sentinel struct {
	suffix []byte

	mu    sync.Mutex
	state sentinelState
	buf   []byte
	done  chan struct{}
}

func NewSentinel(suffix []byte) *Sentinel {
	return &Sentinel{suffix: suffix, done: make(chan struct{})}
}

func (s *Sentinel) Update(p []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == matched {
		return true
	}
	for _, c := range p {
		s.buf = append(s.buf, c)
		if bytes.HasSuffix(s.buf, s.suffix) {
			s.state = matched
			close(s.done)
			return true
		}
	}
	return false
}

// Done is closed when the suffix has been seen.
func (s *Sentinel) Done() <-chan struct{} { return s.done }

// Captured returns the bytes seen so far.
func (s *Sentinel) Captured() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf)
}

// Wait blocks until the suffix is seen or ctx is done.
func (s *Sentinel) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-s.done:
		return s.Captured(), nil
	case <-ctx.Done():
		return s.Captured(), ctx.Err()
	}
}

// Renderer passes every byte through to W and never completes.
type Renderer struct {
	W io.Writer
}

func (r *Renderer) Update(p []byte) bool {
	r.W.Write(p)
	return false
}

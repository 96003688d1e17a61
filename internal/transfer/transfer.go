// Package transfer moves file contents over the raw REPL with a
// stop-and-wait protocol: 512 byte chunks, each acknowledged by one 0x06
// byte. Framing relies only on the byte count agreed up front, so payloads
// may contain any byte value, the ack byte included.
package transfer

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/martinribelotta/uPyIDE/internal/failure"
)

const (
	ChunkSize = 512
	Ack       = 0x06

	DefaultStall = 5 * time.Second
)

// Engine runs one transfer at a time over a transport whose reads return
// (0, nil) on timeout.
type Engine struct {
	// Stall is how long a chunk may make no progress before the transfer is
	// abandoned.
	Stall time.Duration
	// Stray receives bytes other than the ack seen while waiting for it.
	Stray io.Writer

	Log *zap.Logger
}

func (e *Engine) stall() time.Duration {
	if e.Stall <= 0 {
		return DefaultStall
	}
	return e.Stall
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// Send copies size bytes from src to the device. Each chunk waits for its
// ack before the next one is written. On failure the destination file on
// the device is left truncated.
func (e *Engine) Send(rw io.ReadWriter, src io.Reader, size int64) error {
	buf := make([]byte, ChunkSize)
	var sent int64
	chunks := 0
	for sent < size {
		n := int(min(size-sent, ChunkSize))
		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			return failure.Errorf(failure.Transfer, "send", "", "reading source at byte %d: %w", sent, err)
		}
		if _, err := rw.Write(buf[:n]); err != nil {
			return failure.New(failure.Transport, "send", "", err)
		}
		if err := e.waitAck(rw); err != nil {
			return err
		}
		sent += int64(n)
		chunks++
	}
	e.logger().Debug("sent", zap.Int64("bytes", sent), zap.Int("chunks", chunks))
	return nil
}

func (e *Engine) waitAck(r io.Reader) error {
	one := make([]byte, 1)
	deadline := time.Now().Add(e.stall())
	for {
		n, err := r.Read(one)
		if err != nil {
			return failure.New(failure.Transport, "wait ack", "", err)
		}
		if n == 1 {
			if one[0] == Ack {
				return nil
			}
			if e.Stray != nil {
				e.Stray.Write(one)
			}
			continue
		}
		if time.Now().After(deadline) {
			return failure.Errorf(failure.Timeout, "wait ack", "", "no ack within %s", e.stall())
		}
	}
}

// Receive copies size bytes from the device to dst, acking each chunk once
// it has been written.
func (e *Engine) Receive(rw io.ReadWriter, dst io.Writer, size int64) error {
	buf := make([]byte, ChunkSize)
	var received int64
	chunks := 0
	for received < size {
		want := int(min(size-received, ChunkSize))
		got := 0
		deadline := time.Now().Add(e.stall())
		for got < want {
			n, err := rw.Read(buf[got:want])
			if err != nil {
				return failure.New(failure.Transport, "receive", "", err)
			}
			if n > 0 {
				got += n
				deadline = time.Now().Add(e.stall())
				continue
			}
			if time.Now().After(deadline) {
				return failure.Errorf(failure.Timeout, "receive", "", "chunk stalled after %d of %d bytes", got, want)
			}
		}
		if _, err := dst.Write(buf[:want]); err != nil {
			return failure.Errorf(failure.Transfer, "receive", "", "writing destination: %w", err)
		}
		if _, err := rw.Write([]byte{Ack}); err != nil {
			return failure.New(failure.Transport, "receive", "", err)
		}
		received += int64(want)
		chunks++
	}
	e.logger().Debug("received", zap.Int64("bytes", received), zap.Int("chunks", chunks))
	return nil
}

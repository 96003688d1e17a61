package transport

import (
	"fmt"
	"io"
	"time"
)

const (
	DefaultBaud = 115200

	// DefaultReadTimeout bounds a single Read. Reads return (0, nil) when it
	// expires so callers can poll quit flags and deadlines.
	DefaultReadTimeout = 100 * time.Millisecond
)

// Handle identifies the duplex channel to open.
type Handle struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
}

func (h Handle) String() string {
	return fmt.Sprintf("%s@%d", h.Port, h.Baud)
}

// Transport is a duplex byte channel exclusively owned by one session.
// Read returns (0, nil) when the read timeout expires without data.
type Transport interface {
	io.ReadWriteCloser
	SetReadTimeout(d time.Duration) error
	Name() string
}

// WritePaced writes p in slices of size bytes, sleeping pause between
// slices. The board's input buffer is small enough that a large script
// written in one go gets truncated.
func WritePaced(w io.Writer, p []byte, size int, pause time.Duration) error {
	for start := 0; start < len(p); start += size {
		end := start + size
		if end > len(p) {
			end = len(p)
		}
		if _, err := w.Write(p[start:end]); err != nil {
			return err
		}
		if end < len(p) && pause > 0 {
			time.Sleep(pause)
		}
	}
	return nil
}

package watch

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/martinribelotta/uPyIDE/internal/devicetest"
	"github.com/martinribelotta/uPyIDE/internal/failure"
	"github.com/martinribelotta/uPyIDE/internal/remote"
	"github.com/martinribelotta/uPyIDE/internal/transport"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSentinelsInOrder(t *testing.T) {
	var c Chain
	a := NewSentinel([]byte("A>"))
	b := NewSentinel([]byte("B>"))
	c.Add(a)
	c.Add(b)

	c.Feed([]byte("xxA>yy"))
	select {
	case <-a.Done():
	default:
		t.Fatal("first sentinel not done")
	}
	if got := string(a.Captured()); got != "xxA>" {
		t.Errorf("first captured %q", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	c.Feed([]byte("B>zz"))
	if got := string(b.Captured()); got != "xxA>yyB>" {
		t.Errorf("second captured %q", got)
	}
	if got := string(a.Captured()); got != "xxA>" {
		t.Errorf("first sentinel saw bytes after removal: %q", got)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestRemovedWatcherSeesNothingMore(t *testing.T) {
	var c Chain
	calls := 0
	c.Add(WatcherFunc(func([]byte) bool {
		calls++
		return true
	}))
	c.Feed([]byte("one"))
	c.Feed([]byte("two"))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWatcherAddedDuringFeedStartsWithNextChunk(t *testing.T) {
	var c Chain
	var seen [][]byte
	recorder := WatcherFunc(func(p []byte) bool {
		seen = append(seen, p)
		return false
	})
	c.Add(WatcherFunc(func([]byte) bool {
		c.Add(recorder)
		return true
	}))

	c.Feed([]byte("first"))
	c.Feed([]byte("second"))
	if want := [][]byte{[]byte("second")}; !reflect.DeepEqual(seen, want) {
		t.Errorf("recorder saw %q, want %q", seen, want)
	}
}

func TestRendererNeverCompletes(t *testing.T) {
	var c Chain
	var out bytes.Buffer
	c.Add(&Renderer{W: &out})
	c.Feed([]byte("abc"))
	c.Feed([]byte("\x04>"))
	if out.String() != "abc\x04>" || c.Len() != 1 {
		t.Errorf("renderer got %q, Len %d", out.String(), c.Len())
	}
}

func TestSentinelWaitCancelled(t *testing.T) {
	s := NewSentinel([]byte("never"))
	s.Update([]byte("partial"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got, err := s.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
	if string(got) != "partial" {
		t.Errorf("captured %q", got)
	}
}

func TestPumpUntilEOF(t *testing.T) {
	host, dev := transport.Pipe()
	host.SetReadTimeout(10 * time.Millisecond)
	var c Chain
	var out syncBuffer
	c.Add(&Renderer{W: &out})

	dev.Write([]byte("hello "))
	dev.Write([]byte("board"))
	dev.Close()

	if err := c.Pump(context.Background(), host); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if out.String() != "hello board" {
		t.Errorf("rendered %q", out.String())
	}
}

func startExchange(t *testing.T, dev *devicetest.Device) (*Exchange, *syncBuffer) {
	t.Helper()
	host := dev.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	var c Chain
	out := &syncBuffer{}
	c.Add(&Renderer{W: out})
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Pump(ctx, host)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return NewExchange(&c, host, nil), out
}

func TestExchangeRun(t *testing.T) {
	dev := devicetest.New(t)
	dev.OnExec = func(script string) (string, string) {
		return "ran " + script + "\r\n", ""
	}
	ex, rendered := startExchange(t, dev)

	out, err := ex.Run(context.Background(), "print(1)")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(out) != "ran print(1)\r\n" {
		t.Errorf("stdout = %q", out)
	}
	if !bytes.Contains([]byte(rendered.String()), []byte("ran print(1)")) {
		t.Errorf("renderer missed the output: %q", rendered.String())
	}
	if ex.Busy() {
		t.Error("still busy after Run returned")
	}
}

func TestExchangeCall(t *testing.T) {
	dev := devicetest.New(t, "flash")
	dev.WriteFile(t, "/flash/main.py", nil, time.Time{})
	ex, _ := startExchange(t, dev)

	v, err := ex.Call(context.Background(), remote.ListDir, "/flash")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !reflect.DeepEqual(v, []any{"main.py"}) {
		t.Errorf("listdir = %#v", v)
	}
}

func TestExchangeTraceback(t *testing.T) {
	dev := devicetest.New(t)
	dev.OnExec = func(string) (string, string) {
		return "", "Traceback (most recent call last):\r\nZeroDivisionError: divide by zero\r\n"
	}
	ex, _ := startExchange(t, dev)

	_, err := ex.Run(context.Background(), "1/0")
	if !failure.Is(err, failure.RemoteCall) {
		t.Fatalf("err = %v, want remote call failure", err)
	}
}

func TestExchangeRejectsSecondRequest(t *testing.T) {
	dev := devicetest.New(t)
	dev.Hang = true
	ex, _ := startExchange(t, dev)
	ex.Timeout = 300 * time.Millisecond

	first := make(chan error, 1)
	go func() {
		_, err := ex.Run(context.Background(), "while True: pass")
		first <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !ex.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := ex.Run(context.Background(), "print(2)"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Run err = %v, want ErrBusy", err)
	}
	if err := <-first; !failure.Is(err, failure.Timeout) {
		t.Errorf("first Run err = %v, want timeout", err)
	}
}

func TestSplitReply(t *testing.T) {
	out, err := splitReply([]byte("OKabc\x04\x04>"))
	if err != nil || string(out) != "abc" {
		t.Errorf("splitReply = %q, %v", out, err)
	}
	if _, err := splitReply([]byte("garbage>")); !failure.Is(err, failure.RemoteCall) {
		t.Errorf("malformed reply err = %v", err)
	}
}

func TestExchangeTimeoutRestoresBoard(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		op    string
	}{
		{"no raw prompt", "", "enter raw REPL"},
		{"no reply", "raw REPL; CTRL-B to exit\r\n>", "follow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Chain
			wire := &syncBuffer{}
			ex := NewExchange(&c, wire, nil)
			ex.Timeout = 100 * time.Millisecond

			done := make(chan error, 1)
			go func() {
				_, err := ex.Run(context.Background(), "x")
				done <- err
			}()
			if tt.reply != "" {
				deadline := time.Now().Add(time.Second)
				for c.Len() == 0 && time.Now().Before(deadline) {
					time.Sleep(time.Millisecond)
				}
				c.Feed([]byte(tt.reply))
			}

			err := <-done
			var ferr *failure.Error
			if !errors.As(err, &ferr) || ferr.Kind != failure.Timeout || ferr.Op != tt.op {
				t.Fatalf("err = %v, want %s timeout", err, tt.op)
			}
			if got := wire.String(); !strings.HasSuffix(got, "\r\x02") {
				t.Errorf("wire = %q, want it to end by leaving raw mode", got)
			}
			if n := c.Len(); n != 0 {
				t.Errorf("%d watchers left in the chain", n)
			}
		})
	}
}

func TestChainRemove(t *testing.T) {
	var c Chain
	a := NewSentinel([]byte("A"))
	b := NewSentinel([]byte("B"))
	c.Add(a)
	c.Add(b)
	c.Remove(a)
	c.Remove(a)
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	c.Feed([]byte("AB"))
	if len(a.Captured()) != 0 {
		t.Errorf("removed watcher saw %q", a.Captured())
	}
	if c.Len() != 0 {
		t.Errorf("remaining watcher not completed")
	}
}

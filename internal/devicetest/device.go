// Package devicetest emulates a MicroPython board on the far end of a
// transport.Pipe. It understands the raw REPL handshake, the call lines the
// remote package injects, and the chunked transfer protocol, and keeps its
// filesystem in a host directory.
package devicetest

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/martinribelotta/uPyIDE/internal/pylit"
	"github.com/martinribelotta/uPyIDE/internal/transport"
)

// EpochOffset is the number of seconds between 1970-01-01 and 2000-01-01.
const EpochOffset = 946684800

const (
	chunkSize = 512
	ack       = 0x06
)

// Handler implements a device function for calls the fake does not know.
type Handler func(args []any) (any, error)

// Device is a fake board. Configure it before calling Start.
type Device struct {
	// Root backs the device filesystem: "/flash/x" lives at Root/flash/x.
	Root string
	// Funcs overrides or adds device functions by name.
	Funcs map[string]Handler
	// OnExec handles scripts that are not a function call.
	OnExec func(script string) (stdout, stderr string)
	// Hang makes the device accept code but never finish running it.
	Hang bool
	// Chatter is printed before every ack while receiving a file.
	Chatter string

	end *transport.PipeEnd

	mu       sync.Mutex
	scripts  []string
	calls    []string
	chunks   []int
	acksOut  int
	acksIn   int
	typed    []byte
	raw      bool
	resets   int
	rtc      pylit.Tuple
	done     chan struct{}
	readErrs []error
}

// New creates a device whose filesystem has the given top level mounts,
// e.g. "flash" and "sd".
func New(t *testing.T, mounts ...string) *Device {
	t.Helper()
	root := t.TempDir()
	for _, m := range mounts {
		if err := os.MkdirAll(filepath.Join(root, m), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return &Device{Root: root, Funcs: map[string]Handler{}}
}

// Start connects the device to a new pipe and returns the host end. The
// device stops when the host end is closed.
func (d *Device) Start(t *testing.T) *transport.PipeEnd {
	t.Helper()
	host, dev := transport.Pipe()
	host.SetReadTimeout(20 * time.Millisecond)
	dev.SetReadTimeout(transport.NoTimeout)
	d.end = dev
	d.done = make(chan struct{})
	go d.loop()
	t.Cleanup(func() {
		host.Close()
		<-d.done
	})
	return host
}

// HostPath maps a device path to the backing host path.
func (d *Device) HostPath(p string) string {
	return filepath.Join(d.Root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

// WriteFile creates a device file with the given content and mtime.
func (d *Device) WriteFile(t *testing.T, p string, data []byte, mtime time.Time) {
	t.Helper()
	hp := d.HostPath(p)
	if err := os.MkdirAll(filepath.Dir(hp), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(hp, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(hp, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

// Scripts returns every script the device executed.
func (d *Device) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.scripts...)
}

// Calls returns the names of the device functions called, in order.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Chunks returns the sizes of the chunks received from the host.
func (d *Device) Chunks() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.chunks...)
}

// Acks returns the acknowledgements sent to and received from the host.
func (d *Device) Acks() (sent, received int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acksOut, d.acksIn
}

// Typed returns the bytes received while in the friendly REPL.
func (d *Device) Typed() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.typed...)
}

// Resets returns how many soft reboots were requested.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// RTC returns the last datetime tuple passed to set_time.
func (d *Device) RTC() pylit.Tuple {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rtc
}

// Say writes unsolicited output, as a running program would.
func (d *Device) Say(s string) {
	d.end.Write([]byte(s))
}

func (d *Device) loop() {
	defer close(d.done)
	var code bytes.Buffer
	one := make([]byte, 1)
	for {
		n, err := d.end.Read(one)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		c := one[0]

		d.mu.Lock()
		raw := d.raw
		d.mu.Unlock()

		if !raw {
			switch c {
			case 0x01:
				d.setRaw(true)
				code.Reset()
				d.Say("raw REPL; CTRL-B to exit\r\n>")
			case 0x03, '\r':
			case 0x04:
				d.mu.Lock()
				d.resets++
				d.mu.Unlock()
				d.Say("MPY: soft reboot\r\nMicroPython v1.22.0\r\n>>> ")
			default:
				d.mu.Lock()
				d.typed = append(d.typed, c)
				d.mu.Unlock()
				d.Say(string(c))
			}
			continue
		}

		switch c {
		case 0x01:
			code.Reset()
			d.Say("\r\nraw REPL; CTRL-B to exit\r\n>")
		case 0x02:
			d.setRaw(false)
			d.Say("\r\n>>> ")
		case 0x03:
			code.Reset()
		case 0x04:
			script := code.String()
			code.Reset()
			d.Say("OK")
			if d.Hang {
				continue
			}
			stdout, stderr := d.execute(script)
			d.Say(stdout + "\x04" + stderr + "\x04>")
		default:
			code.WriteByte(c)
		}
	}
}

func (d *Device) setRaw(v bool) {
	d.mu.Lock()
	d.raw = v
	d.mu.Unlock()
}

func (d *Device) execute(script string) (string, string) {
	d.mu.Lock()
	d.scripts = append(d.scripts, script)
	d.mu.Unlock()

	name, args, ok := parseCall(script)
	if !ok {
		if d.OnExec != nil {
			return d.OnExec(script)
		}
		return "", ""
	}

	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.mu.Unlock()

	h, ok := d.Funcs[name]
	if !ok {
		h, ok = d.builtin(name)
	}
	if !ok {
		return "", traceback("NameError", "name '"+name+"' isn't defined")
	}
	result, err := h(args)
	if err != nil {
		return "", traceback("OSError", err.Error())
	}
	if result == nil {
		return "", ""
	}
	lit, err := pylit.Encode(result)
	if err != nil {
		return "", traceback("TypeError", err.Error())
	}
	return lit + "\r\n", ""
}

// parseCall finds the "output = name(args)" line of an injected call.
func parseCall(script string) (string, []any, bool) {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "output = ") {
			continue
		}
		expr := strings.TrimPrefix(line, "output = ")
		open := strings.IndexByte(expr, '(')
		if open < 0 || !strings.HasSuffix(expr, ")") {
			return "", nil, false
		}
		name := expr[:open]
		inner := strings.TrimSpace(expr[open+1 : len(expr)-1])
		if inner == "" {
			return name, nil, true
		}
		v, err := pylit.Decode("(" + inner + ",)")
		if err != nil {
			return "", nil, false
		}
		return name, []any(v.(pylit.Tuple)), true
	}
	return "", nil, false
}

func traceback(kind, msg string) string {
	return "Traceback (most recent call last):\r\n  File \"<stdin>\", line 1, in <module>\r\n" + kind + ": " + msg + "\r\n"
}

func (d *Device) builtin(name string) (Handler, bool) {
	switch name {
	case "test_buffer":
		return func([]any) (any, error) { return true, nil }, true
	case "listdir":
		return d.listdir, true
	case "listdir_stat":
		return d.listdirStat, true
	case "get_stat":
		return func(args []any) (any, error) { return d.stat(str(args, 0)), nil }, true
	case "get_mode":
		return func(args []any) (any, error) { return d.stat(str(args, 0))[0], nil }, true
	case "get_filesize":
		return func(args []any) (any, error) {
			st := d.stat(str(args, 0))
			if st[0] == int64(0) {
				return int64(-1), nil
			}
			return st[6], nil
		}, true
	case "mkdir":
		return func(args []any) (any, error) {
			return os.Mkdir(d.HostPath(str(args, 0)), 0o755) == nil, nil
		}, true
	case "rm":
		return func(args []any) (any, error) {
			// os.Remove covers both the file and the empty directory case.
			return os.Remove(d.HostPath(str(args, 0))) == nil, nil
		}, true
	case "copy_file":
		return func(args []any) (any, error) {
			data, err := os.ReadFile(d.HostPath(str(args, 0)))
			if err != nil {
				return false, nil
			}
			return os.WriteFile(d.HostPath(str(args, 1)), data, 0o644) == nil, nil
		}, true
	case "recv_file_from_host":
		return d.recvFromHost, true
	case "send_file_to_host":
		return d.sendToHost, true
	case "write_hex":
		return d.writeHex, true
	case "get_time":
		return func([]any) (any, error) { return time.Now().Unix() - EpochOffset, nil }, true
	case "set_time":
		return func(args []any) (any, error) {
			tup, _ := args[0].(pylit.Tuple)
			d.mu.Lock()
			d.rtc = tup
			d.mu.Unlock()
			return nil, nil
		}, true
	}
	return nil, false
}

func str(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	s, _ := pylit.String(args[i])
	return s
}

func (d *Device) stat(p string) pylit.Tuple {
	info, err := os.Stat(d.HostPath(p))
	if err != nil {
		return pylit.Tuple{int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0)}
	}
	mode := int64(0x8000)
	if info.IsDir() {
		mode = 0x4000
	}
	size := info.Size()
	if info.IsDir() {
		size = 0
	}
	mt := info.ModTime().Unix() - EpochOffset
	return pylit.Tuple{mode, int64(0), int64(0), int64(0), int64(0), int64(0), size, mt, mt, mt}
}

func (d *Device) listdir(args []any) (any, error) {
	entries, err := os.ReadDir(d.HostPath(str(args, 0)))
	if err != nil {
		return nil, fmt.Errorf("[Errno 2] ENOENT")
	}
	names := make([]any, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (d *Device) listdirStat(args []any) (any, error) {
	dir := str(args, 0)
	entries, err := os.ReadDir(d.HostPath(dir))
	if err != nil {
		return nil, fmt.Errorf("[Errno 2] ENOENT")
	}
	out := pylit.Tuple{}
	for _, e := range entries {
		out = append(out, pylit.Tuple{e.Name(), d.stat(strings.TrimSuffix(dir, "/") + "/" + e.Name())})
	}
	return out, nil
}

// writeHex mirrors write_hex: the payload arrives hex encoded in the call.
func (d *Device) writeHex(args []any) (any, error) {
	data, err := hex.DecodeString(str(args, 1))
	if err != nil {
		return nil, fmt.Errorf("invalid hex")
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if len(args) > 2 {
		if appending, _ := pylit.Bool(args[2]); appending {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
	}
	f, err := os.OpenFile(d.HostPath(str(args, 0)), flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("[Errno 2] ENOENT")
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return nil, err
	}
	return int64(len(data)), nil
}

// recvFromHost mirrors recv_file_from_host: read chunks, ack each one.
func (d *Device) recvFromHost(args []any) (any, error) {
	dst := str(args, 0)
	size, _ := pylit.Int(args[1])

	var data []byte
	remaining := size
	for remaining > 0 {
		want := int(min(remaining, chunkSize))
		chunk, err := d.readFull(want)
		if err != nil {
			return false, nil
		}
		data = append(data, chunk...)
		remaining -= int64(want)
		d.mu.Lock()
		d.chunks = append(d.chunks, len(chunk))
		d.acksOut++
		d.mu.Unlock()
		d.end.Write(append([]byte(d.Chatter), ack))
	}
	if err := os.WriteFile(d.HostPath(dst), data, 0o644); err != nil {
		return false, nil
	}
	return true, nil
}

// sendToHost mirrors send_file_to_host: send a chunk, wait for the ack.
func (d *Device) sendToHost(args []any) (any, error) {
	data, err := os.ReadFile(d.HostPath(str(args, 0)))
	if err != nil {
		return false, nil
	}
	size, _ := pylit.Int(args[1])
	data = data[:size]
	for len(data) > 0 {
		n := min(len(data), chunkSize)
		d.end.Write(data[:n])
		data = data[n:]
		b, err := d.readFull(1)
		if err != nil {
			return false, nil
		}
		if b[0] == ack {
			d.mu.Lock()
			d.acksIn++
			d.mu.Unlock()
		}
	}
	return true, nil
}

func (d *Device) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(d.end, buf)
	return buf, err
}

package remote

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/martinribelotta/uPyIDE/internal/devicetest"
	"github.com/martinribelotta/uPyIDE/internal/failure"
	"github.com/martinribelotta/uPyIDE/internal/pyboard"
)

var (
	answer  = Func{Name: "answer", Source: "def answer(a, b):\n    return 42\n"}
	nothing = Func{Name: "nothing", Source: "def nothing():\n    pass\n"}
)

func newInjector(t *testing.T, dev *devicetest.Device) *Injector {
	t.Helper()
	return NewInjector(pyboard.New(dev.Start(t), nil), nil)
}

func TestScript(t *testing.T) {
	got, err := Script(answer, 1, "x")
	if err != nil {
		t.Fatal(err)
	}
	want := "def answer(a, b):\n    return 42\n" +
		"output = answer(1, 'x')\n" +
		"if output is not None:\n" +
		"    print(repr(output))\n"
	if got != want {
		t.Errorf("Script =\n%s\nwant\n%s", got, want)
	}
}

func TestDeviceFunctionsLoaded(t *testing.T) {
	for _, fn := range []Func{
		ListDir, ListDirStat, GetStat, GetMode, GetFileSize, Mkdir, Rm,
		CopyFile, RecvFileFromHost, SendFileToHost, TestBuffer, GetTime, SetTime, WriteHex,
	} {
		if !strings.HasPrefix(fn.Source, "def "+fn.Name+"(") {
			t.Errorf("%s source starts with %q", fn.Name, strings.SplitN(fn.Source, "\n", 2)[0])
		}
	}
}

func TestCallReturnsValue(t *testing.T) {
	dev := devicetest.New(t)
	dev.Funcs["answer"] = func(args []any) (any, error) {
		if len(args) != 2 {
			t.Errorf("device got %d args", len(args))
		}
		return int64(42), nil
	}
	in := newInjector(t, dev)

	got, err := in.Call(answer, 1, "x")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != int64(42) {
		t.Errorf("Call = %#v, want 42", got)
	}
}

func TestCallEchoesScript(t *testing.T) {
	dev := devicetest.New(t, "flash")
	in := newInjector(t, dev)
	var echo bytes.Buffer
	in.Echo = &echo

	if _, err := in.Call(ListDir, "/flash"); err != nil {
		t.Fatal(err)
	}
	want, _ := Script(ListDir, "/flash")
	if !strings.Contains(echo.String(), want) || !strings.HasPrefix(echo.String(), "----- listdir:") {
		t.Errorf("echo = %q", echo.String())
	}
	if scripts := dev.Scripts(); len(scripts) != 1 || scripts[0] != want {
		t.Errorf("board got %q", scripts)
	}
}

func TestCallWithoutValue(t *testing.T) {
	dev := devicetest.New(t)
	dev.Funcs["nothing"] = func([]any) (any, error) { return nil, nil }
	in := newInjector(t, dev)

	got, err := in.Call(nothing)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != nil {
		t.Errorf("Call = %#v, want nil", got)
	}
}

func TestCallDeviceException(t *testing.T) {
	dev := devicetest.New(t, "flash")
	in := newInjector(t, dev)

	_, err := in.Call(ListDir, "/flash/missing")
	if !failure.Is(err, failure.RemoteCall) {
		t.Fatalf("err = %v, want remote call failure", err)
	}
}

func TestDecodeReply(t *testing.T) {
	in := NewInjector(nil, nil)

	// A reply the literal grammar rejects.
	_, err := in.decode(answer, []byte("<object at 0x3f>\r\n"))
	if !failure.Is(err, failure.RemoteCall) {
		t.Fatalf("err = %v, want remote call failure", err)
	}
	v, err := in.decode(answer, []byte("debug line\r\n[1]\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if items, ok := v.([]any); !ok || len(items) != 1 {
		t.Errorf("decode = %#v", v)
	}
}

func TestCallTransferFailure(t *testing.T) {
	dev := devicetest.New(t)
	dev.Funcs["answer"] = func([]any) (any, error) { return true, nil }
	in := newInjector(t, dev)

	_, err := in.CallTransfer(answer, func(io.ReadWriter) error {
		return io.ErrUnexpectedEOF
	}, 1, 2)
	if !failure.Is(err, failure.Transfer) {
		t.Fatalf("err = %v, want transfer failure", err)
	}
}

func TestCallsAreRecorded(t *testing.T) {
	dev := devicetest.New(t, "flash")
	in := newInjector(t, dev)

	if _, err := in.Call(TestBuffer); err != nil {
		t.Fatal(err)
	}
	if _, err := in.Call(ListDir, "/"); err != nil {
		t.Fatal(err)
	}
	calls := dev.Calls()
	if len(calls) != 2 || calls[0] != "test_buffer" || calls[1] != "listdir" {
		t.Errorf("calls = %v", calls)
	}
}

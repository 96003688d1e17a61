// Package remote calls Python functions on the board.
//
// The board only speaks a text REPL, so a call is made by sending the
// function's source followed by a line that invokes it and prints the repr of
// the result. The printed literal is parsed back on the host. This is a
// workaround for a target with no structured RPC; the Caller interface is the
// seam where a length-prefixed protocol could replace it.
package remote

import (
	"embed"
	"io"
	"strings"
)

//go:embed device/*.py
var deviceFS embed.FS

// Func is a named Python function and its source.
type Func struct {
	Name   string
	Source string
}

// Transfer runs while the called function is executing and owns the
// transport until it returns.
type Transfer func(rw io.ReadWriter) error

// Caller runs functions on the board. A nil result means the function
// returned None.
type Caller interface {
	Call(fn Func, args ...any) (any, error)
	CallTransfer(fn Func, xfer Transfer, args ...any) (any, error)
}

// Functions installed on the board on demand.
var (
	ListDir          = load("listdir")
	ListDirStat      = load("listdir_stat")
	GetStat          = load("get_stat")
	GetMode          = load("get_mode")
	GetFileSize      = load("get_filesize")
	Mkdir            = load("mkdir")
	Rm               = load("rm")
	CopyFile         = load("copy_file")
	RecvFileFromHost = load("recv_file_from_host")
	SendFileToHost   = load("send_file_to_host")
	TestBuffer       = load("test_buffer")
	GetTime          = load("get_time")
	SetTime          = load("set_time")
	WriteHex         = load("write_hex")
)

func load(name string) Func {
	src, err := deviceFS.ReadFile("device/" + name + ".py")
	if err != nil {
		panic("remote: missing device function " + name)
	}
	return Func{Name: name, Source: strings.TrimRight(string(src), "\n") + "\n"}
}

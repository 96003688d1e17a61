package vfs

import (
	"io"
	"time"

	"github.com/martinribelotta/uPyIDE/internal/failure"
	"github.com/martinribelotta/uPyIDE/internal/pylit"
	"github.com/martinribelotta/uPyIDE/internal/remote"
	"github.com/martinribelotta/uPyIDE/internal/transfer"
)

// RemoteFS is the board filesystem, reached through remote calls.
type RemoteFS struct {
	Caller remote.Caller
	Engine *transfer.Engine
}

// parseStat reads the mode, size and mtime fields of an os.stat tuple.
func parseStat(v any) (FileStat, error) {
	items, err := pylit.Seq(v)
	if err != nil {
		return FileStat{}, err
	}
	if len(items) < 9 {
		return FileStat{}, failure.Errorf(failure.RemoteCall, "stat", "", "short stat record of %d fields", len(items))
	}
	mode, err := pylit.Int(items[0])
	if err != nil {
		return FileStat{}, err
	}
	if mode&ModeExists == 0 {
		return FileStat{}, nil
	}
	size, err := pylit.Int(items[6])
	if err != nil {
		return FileStat{}, err
	}
	mtime, err := pylit.Int(items[8])
	if err != nil {
		return FileStat{}, err
	}
	return FileStat{
		Mode:    uint32(mode),
		Size:    size,
		ModTime: time.Unix(mtime+EpochOffset, 0),
	}, nil
}

func (r *RemoteFS) Stat(path string) (FileStat, error) {
	v, err := r.Caller.Call(remote.GetStat, path)
	if err != nil {
		return FileStat{}, err
	}
	return parseStat(v)
}

func (r *RemoteFS) ListDir(path string) ([]Entry, error) {
	v, err := r.Caller.Call(remote.ListDirStat, path)
	if err != nil {
		return nil, err
	}
	items, err := pylit.Seq(v)
	if err != nil {
		return nil, failure.New(failure.RemoteCall, "list", path, err)
	}
	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		pair, err := pylit.Seq(it)
		if err != nil || len(pair) != 2 {
			return nil, failure.Errorf(failure.RemoteCall, "list", path, "bad entry %v", it)
		}
		name, err := pylit.String(pair[0])
		if err != nil {
			return nil, failure.New(failure.RemoteCall, "list", path, err)
		}
		st, err := parseStat(pair[1])
		if err != nil {
			return nil, failure.New(failure.RemoteCall, "list", path, err)
		}
		entries = append(entries, Entry{Name: name, Stat: st})
	}
	return entries, nil
}

// ok runs a device function that reports success as a bool.
func (r *RemoteFS) ok(op, path string, fn remote.Func, args ...any) error {
	v, err := r.Caller.Call(fn, args...)
	if err != nil {
		return err
	}
	done, err := pylit.Bool(v)
	if err != nil {
		return failure.New(failure.RemoteCall, op, path, err)
	}
	if !done {
		return failure.Errorf(failure.Path, op, path, "failed on the board")
	}
	return nil
}

func (r *RemoteFS) Mkdir(path string) error {
	return r.ok("mkdir", path, remote.Mkdir, path)
}

func (r *RemoteFS) Remove(path string) error {
	return r.ok("rm", path, remote.Rm, path)
}

func (r *RemoteFS) CopyFile(src, dst string) error {
	return r.ok("cp", dst, remote.CopyFile, src, dst)
}

func (r *RemoteFS) Size(path string) (int64, error) {
	v, err := r.Caller.Call(remote.GetFileSize, path)
	if err != nil {
		return 0, err
	}
	n, err := pylit.Int(v)
	if err != nil {
		return 0, failure.New(failure.RemoteCall, "size", path, err)
	}
	if n < 0 {
		return 0, failure.Errorf(failure.Path, "size", path, "no such file")
	}
	return n, nil
}

func (r *RemoteFS) Cat(path string, w io.Writer) error {
	size, err := r.Size(path)
	if err != nil {
		return err
	}
	return r.Download(path, w, size)
}

// Download streams size bytes of the board file src into w.
func (r *RemoteFS) Download(src string, w io.Writer, size int64) error {
	xfer := func(rw io.ReadWriter) error {
		return r.Engine.Receive(rw, w, size)
	}
	return r.transferred("download", src, remote.SendFileToHost, xfer, src, size)
}

// Upload writes size bytes from rd into the board file dst.
func (r *RemoteFS) Upload(rd io.Reader, size int64, dst string) error {
	xfer := func(rw io.ReadWriter) error {
		return r.Engine.Send(rw, rd, size)
	}
	return r.transferred("upload", dst, remote.RecvFileFromHost, xfer, dst, size)
}

func (r *RemoteFS) transferred(op, path string, fn remote.Func, xfer remote.Transfer, args ...any) error {
	v, err := r.Caller.CallTransfer(fn, xfer, args...)
	if err != nil {
		return err
	}
	done, err := pylit.Bool(v)
	if err != nil {
		return failure.New(failure.RemoteCall, op, path, err)
	}
	if !done {
		return failure.Errorf(failure.Path, op, path, "board could not open the file")
	}
	return nil
}

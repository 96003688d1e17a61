package vfs

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/martinribelotta/uPyIDE/internal/failure"
)

// Dispatcher picks the filesystem for a path.
type Dispatcher struct {
	Roots  Roots
	Local  LocalFS
	Remote *RemoteFS
	Log    *zap.Logger

	// OnTransfer, if set, is called after every cross-side copy.
	OnTransfer func(direction, src, dst string, size int64, err error)
}

const (
	Upload   = "upload"
	Download = "download"
)

// For returns the board filesystem for remote paths and the host one
// otherwise.
func (d *Dispatcher) For(path string) FS {
	if d.Remote != nil && d.Roots.IsRemote(path) {
		return d.Remote
	}
	return d.Local
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// Copy copies the file src to the file dst. Both are resolved paths. A
// failed cross-side copy may leave dst truncated.
func (d *Dispatcher) Copy(src, dst string) error {
	srcRemote, dstRemote := d.Roots.IsRemote(src), d.Roots.IsRemote(dst)
	d.logger().Debug("copy", zap.String("src", src), zap.String("dst", dst),
		zap.Bool("src_remote", srcRemote), zap.Bool("dst_remote", dstRemote))

	switch {
	case srcRemote == dstRemote:
		return d.For(src).CopyFile(src, dst)
	case srcRemote:
		size, err := d.download(src, dst)
		d.notify(Download, src, dst, size, err)
		return err
	default:
		size, err := d.upload(src, dst)
		d.notify(Upload, src, dst, size, err)
		return err
	}
}

func (d *Dispatcher) notify(direction, src, dst string, size int64, err error) {
	if d.OnTransfer != nil {
		d.OnTransfer(direction, src, dst, size, err)
	}
}

func (d *Dispatcher) download(src, dst string) (int64, error) {
	size, err := d.Remote.Size(src)
	if err != nil {
		return 0, err
	}
	f, err := os.Create(filepath.FromSlash(dst))
	if err != nil {
		return size, failure.New(failure.Path, "cp", dst, err)
	}
	if err := d.Remote.Download(src, f, size); err != nil {
		f.Close()
		return size, err
	}
	return size, f.Close()
}

func (d *Dispatcher) upload(src, dst string) (int64, error) {
	f, err := os.Open(filepath.FromSlash(src))
	if err != nil {
		return 0, failure.New(failure.Path, "cp", src, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, failure.New(failure.Path, "cp", src, err)
	}
	return info.Size(), d.Remote.Upload(f, info.Size(), dst)
}

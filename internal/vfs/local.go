package vfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/martinribelotta/uPyIDE/internal/failure"
)

// LocalFS is the host filesystem.
type LocalFS struct{}

func localStat(info fs.FileInfo) FileStat {
	st := FileStat{Mode: uint32(info.Mode().Perm()), Size: info.Size(), ModTime: info.ModTime()}
	// Devices and sockets count as files.
	if info.IsDir() {
		st.Mode |= ModeDir
		st.Size = 0
	} else {
		st.Mode |= ModeFile
	}
	return st
}

func (LocalFS) Stat(path string) (FileStat, error) {
	info, err := os.Stat(filepath.FromSlash(path))
	if errors.Is(err, fs.ErrNotExist) {
		return FileStat{}, nil
	}
	if err != nil {
		return FileStat{}, failure.New(failure.Path, "stat", path, err)
	}
	return localStat(info), nil
}

func (LocalFS) ListDir(path string) ([]Entry, error) {
	dirents, err := os.ReadDir(filepath.FromSlash(path))
	if err != nil {
		return nil, failure.New(failure.Path, "list", path, err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: d.Name(), Stat: localStat(info)})
	}
	return entries, nil
}

func (LocalFS) Mkdir(path string) error {
	if err := os.Mkdir(filepath.FromSlash(path), 0o755); err != nil {
		return failure.New(failure.Path, "mkdir", path, err)
	}
	return nil
}

func (LocalFS) Remove(path string) error {
	if err := os.Remove(filepath.FromSlash(path)); err != nil {
		return failure.New(failure.Path, "rm", path, err)
	}
	return nil
}

func (LocalFS) Size(path string) (int64, error) {
	info, err := os.Stat(filepath.FromSlash(path))
	if err != nil {
		return 0, failure.New(failure.Path, "size", path, err)
	}
	return info.Size(), nil
}

func (LocalFS) CopyFile(src, dst string) error {
	in, err := os.Open(filepath.FromSlash(src))
	if err != nil {
		return failure.New(failure.Path, "cp", src, err)
	}
	defer in.Close()
	out, err := os.Create(filepath.FromSlash(dst))
	if err != nil {
		return failure.New(failure.Path, "cp", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return failure.New(failure.Transfer, "cp", dst, err)
	}
	return out.Close()
}

func (LocalFS) Cat(path string, w io.Writer) error {
	f, err := os.Open(filepath.FromSlash(path))
	if err != nil {
		return failure.New(failure.Path, "cat", path, err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

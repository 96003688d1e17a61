// Package vfs gives host and board filesystems one interface. Paths are
// absolute slash separated strings; a path under one of the board's mount
// roots is remote, anything else is local.
package vfs

import (
	"io"
	"strings"
	"time"

	"github.com/martinribelotta/uPyIDE/internal/pylit"
	"github.com/martinribelotta/uPyIDE/internal/remote"
)

// EpochOffset is the number of seconds between 1970-01-01 and 2000-01-01,
// where the board's clock starts counting.
const EpochOffset = 946684800

// Mode bits used in stat records.
const (
	ModeExists = 0xc000
	ModeDir    = 0x4000
	ModeFile   = 0x8000
)

// FileStat is a stat record from either side. A zero FileStat describes a
// path that does not exist.
type FileStat struct {
	Mode    uint32
	Size    int64
	ModTime time.Time
}

func (s FileStat) Exists() bool { return s.Mode&ModeExists != 0 }
func (s FileStat) IsDir() bool  { return s.Mode&ModeDir != 0 }
func (s FileStat) IsFile() bool { return s.Mode&ModeFile != 0 }

// Entry is one directory entry.
type Entry struct {
	Name string
	Stat FileStat
}

// FS is implemented once for the host and once for the board.
type FS interface {
	// Stat returns a zero FileStat and no error for a missing path.
	Stat(path string) (FileStat, error)
	ListDir(path string) ([]Entry, error)
	Mkdir(path string) error
	// Remove deletes a file, or an empty directory if path is not a file.
	Remove(path string) error
	Size(path string) (int64, error)
	// CopyFile copies within this filesystem.
	CopyFile(src, dst string) error
	Cat(path string, w io.Writer) error
}

// Resolve makes path absolute against cwd and normalizes it. Empty and "."
// segments are dropped. ".." removes the previous segment and is ignored at
// the root.
func Resolve(path, cwd string) string {
	if !strings.HasPrefix(path, "/") {
		path = cwd + "/" + path
	}
	var segs []string
	for _, s := range strings.Split(path, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, s)
		}
	}
	return "/" + strings.Join(segs, "/")
}

// Base returns the last segment of a resolved path.
func Base(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Join appends name to dir.
func Join(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// Roots are the board's mount points, each written "/name/".
type Roots []string

// IsRemote reports whether path lives on the board. A root always wins over
// a host directory with the same name.
func (r Roots) IsRemote(path string) bool {
	p := path + "/"
	for _, root := range r {
		if strings.HasPrefix(p, root) {
			return true
		}
	}
	return false
}

// DiscoverRoots lists the board's top level directory.
func DiscoverRoots(c remote.Caller) (Roots, error) {
	v, err := c.Call(remote.ListDir, "/")
	if err != nil {
		return nil, err
	}
	items, err := pylit.Seq(v)
	if err != nil {
		return nil, err
	}
	roots := make(Roots, 0, len(items))
	for _, it := range items {
		name, err := pylit.String(it)
		if err != nil {
			return nil, err
		}
		roots = append(roots, "/"+name+"/")
	}
	return roots, nil
}

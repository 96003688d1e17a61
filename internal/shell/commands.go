package shell

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/martinribelotta/uPyIDE/internal/failure"
	"github.com/martinribelotta/uPyIDE/internal/pylit"
	"github.com/martinribelotta/uPyIDE/internal/remote"
	"github.com/martinribelotta/uPyIDE/internal/vfs"
)

func commandTable() map[string]*command {
	quit := &command{run: (*Shell).cmdQuit, usage: "quit", help: "Leave the shell. Control-D does the same."}
	return map[string]*command{
		"args":       {run: (*Shell).cmdArgs, usage: "args [ARG...]", help: "Print the arguments as the shell splits them."},
		"cat":        {run: (*Shell).cmdCat, usage: "cat FILE...", help: "Write the contents of each file."},
		"cd":         {run: (*Shell).cmdCd, usage: "cd [DIR]", help: "Change the current directory. Defaults to /."},
		"cp":         {run: (*Shell).cmdCp, usage: "cp SOURCE DEST | cp SOURCE... DIR", help: "Copy files between host and board or within either."},
		"echo":       {run: (*Shell).cmdEcho, usage: "echo [WORD...]", help: "Write the words separated by spaces."},
		"help":       {run: (*Shell).cmdHelp, usage: "help [COMMAND]", help: "List commands, or describe one."},
		"ls":         {run: (*Shell).cmdLs, usage: "ls [-a] [-l] [PATH...]", help: "List directory contents. -a shows hidden files, -l shows size and time."},
		"mkdir":      {run: (*Shell).cmdMkdir, usage: "mkdir DIR...", help: "Create each directory."},
		"repl":       {run: (*Shell).cmdRepl, usage: "repl", help: "Talk to the board's REPL directly. Control-X returns to the shell."},
		"rm":         {run: (*Shell).cmdRm, usage: "rm PATH...", help: "Remove files and empty directories."},
		"soft_reset": {run: (*Shell).cmdSoftReset, usage: "soft_reset", help: "Soft reboot the board."},
		"get_time":   {run: (*Shell).cmdGetTime, usage: "get_time", help: "Print the board's clock."},
		"set_time":   {run: (*Shell).cmdSetTime, usage: "set_time [YYYY MM DD HH MM SS]", help: "Set the board's clock, to the host clock by default."},
		"EOF":        {run: (*Shell).cmdEOF, usage: "EOF", help: "Leave the shell."},
		"quit":       quit,
		"exit":       quit,
	}
}

func (s *Shell) cmdArgs(args []string) error {
	for i, a := range args {
		fmt.Fprintf(s.out, "arg[%d] = '%s'\n", i, a)
	}
	return nil
}

func (s *Shell) cmdEcho(args []string) error {
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(s.out, " ")
		}
		fmt.Fprint(s.out, a)
	}
	fmt.Fprintln(s.out)
	return nil
}

func (s *Shell) cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Commands (help COMMAND for details):")
		PrintColumns(s.out, s.commandNames(), s.Session.Columns)
		return nil
	}
	for _, name := range args {
		cmd, ok := s.commands[name]
		if !ok {
			s.warn(fmt.Errorf("no help for %q", name))
			continue
		}
		fmt.Fprintf(s.out, "%s\n    %s\n", cmd.usage, cmd.help)
	}
	return nil
}

func (s *Shell) cmdEOF([]string) error {
	fmt.Fprintln(s.out)
	return errStop
}

func (s *Shell) cmdQuit([]string) error {
	return errStop
}

func (s *Shell) cmdCd(args []string) error {
	dir := "/"
	if len(args) > 0 {
		dir = s.resolve(args[0])
	}
	st, err := s.FS.For(dir).Stat(dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return failure.Errorf(failure.Path, "cd", dir, "no such directory")
	}
	s.Session.Cwd = dir
	return nil
}

func (s *Shell) cmdLs(args []string) error {
	showHidden, long := false, false
	for len(args) > 0 && len(args[0]) > 1 && args[0][0] == '-' {
		for _, c := range args[0][1:] {
			switch c {
			case 'a':
				showHidden = true
			case 'l':
				long = true
			default:
				return fmt.Errorf("ls: unrecognized option '%s'", args[0])
			}
		}
		args = args[1:]
	}
	if len(args) == 0 {
		args = []string{"."}
	}

	for i, arg := range args {
		dir := s.resolve(arg)
		st, err := s.FS.For(dir).Stat(dir)
		if err != nil {
			s.warn(err)
			continue
		}
		if !st.Exists() {
			s.warn(failure.Errorf(failure.Path, "ls", dir, "no such file or directory"))
			continue
		}
		if !st.IsDir() {
			fmt.Fprintln(s.out, dir)
			continue
		}
		if len(args) > 1 {
			if i > 0 {
				fmt.Fprintln(s.out)
			}
			fmt.Fprintf(s.out, "%s:\n", dir)
		}
		entries, err := s.listDir(dir)
		if err != nil {
			s.warn(err)
			continue
		}

		var words []string
		for _, e := range entries {
			if hidden(e.Name) && !showHidden {
				continue
			}
			if long {
				s.printLong(s.out, e)
			} else {
				words = append(words, s.decorate(e))
			}
		}
		PrintColumns(s.out, words, s.Session.Columns)
	}
	return nil
}

// listDir returns the entries of dir sorted by name. The host root also
// shows the board's mount points.
func (s *Shell) listDir(dir string) ([]vfs.Entry, error) {
	entries, err := s.FS.For(dir).ListDir(dir)
	if err != nil {
		return nil, err
	}
	if dir == "/" {
		seen := map[string]bool{}
		for _, e := range entries {
			seen[e.Name] = true
		}
		for _, root := range s.Session.Roots {
			name := vfs.Base(root[:len(root)-1])
			if !seen[name] {
				entries = append(entries, vfs.Entry{Name: name, Stat: vfs.FileStat{Mode: vfs.ModeDir}})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *Shell) cmdCat(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", s.commands["cat"].usage)
	}
	for _, arg := range args {
		path := s.resolve(arg)
		fs := s.FS.For(path)
		st, err := fs.Stat(path)
		if err != nil {
			s.warn(err)
			continue
		}
		switch {
		case !st.Exists():
			s.warn(failure.Errorf(failure.Path, "cat", path, "no such file"))
		case !st.IsFile():
			s.warn(failure.Errorf(failure.Path, "cat", path, "not a file"))
		default:
			if err := fs.Cat(path, s.out); err != nil {
				s.warn(err)
			}
		}
	}
	return nil
}

func (s *Shell) cmdCp(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", s.commands["cp"].usage)
	}
	dst := s.resolve(args[len(args)-1])
	srcs := args[:len(args)-1]
	dstStat, err := s.FS.For(dst).Stat(dst)
	if err != nil {
		return err
	}
	if len(srcs) > 1 && !dstStat.IsDir() {
		return failure.Errorf(failure.Path, "cp", dst, "copying several files needs a directory")
	}

	for _, arg := range srcs {
		src := s.resolve(arg)
		st, err := s.FS.For(src).Stat(src)
		if err != nil {
			return err
		}
		if !st.Exists() {
			return failure.Errorf(failure.Path, "cp", src, "no such file")
		}
		if st.IsDir() {
			return failure.Errorf(failure.Path, "cp", src, "is a directory")
		}
		target := dst
		if dstStat.IsDir() {
			target = vfs.Join(dst, vfs.Base(src))
		}
		if err := s.FS.Copy(src, target); err != nil {
			return fmt.Errorf("unable to copy '%s' to '%s': %w", src, target, err)
		}
	}
	return nil
}

func (s *Shell) cmdRm(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", s.commands["rm"].usage)
	}
	for _, arg := range args {
		path := s.resolve(arg)
		if err := s.FS.For(path).Remove(path); err != nil {
			s.warn(err)
		}
	}
	return nil
}

func (s *Shell) cmdMkdir(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", s.commands["mkdir"].usage)
	}
	for _, arg := range args {
		path := s.resolve(arg)
		fs := s.FS.For(path)
		st, err := fs.Stat(path)
		if err != nil {
			s.warn(err)
			continue
		}
		if st.Exists() {
			s.warn(failure.Errorf(failure.Path, "mkdir", path, "already exists"))
			continue
		}
		if err := fs.Mkdir(path); err != nil {
			s.warn(err)
		}
	}
	return nil
}

func (s *Shell) cmdSoftReset([]string) error {
	if s.Board == nil {
		return fmt.Errorf("soft_reset: no board connected")
	}
	return s.Board.SoftReset(s.Timeout)
}

func (s *Shell) cmdGetTime([]string) error {
	v, err := s.Caller.Call(remote.GetTime)
	if err != nil {
		return err
	}
	secs, err := pylit.Int(v)
	if err != nil {
		return failure.New(failure.RemoteCall, "get_time", "", err)
	}
	fmt.Fprintln(s.out, ctime(time.Unix(secs+vfs.EpochOffset, 0).Local()))
	return nil
}

func (s *Shell) cmdSetTime(args []string) error {
	t := time.Now()
	switch len(args) {
	case 0:
	case 6:
		var f [6]int
		for i, a := range args {
			n, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("set_time: expecting numeric arguments, got %q", a)
			}
			f[i] = n
		}
		// time.Date normalizes out of range fields.
		t = time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, time.Local)
	default:
		return fmt.Errorf("usage: %s", s.commands["set_time"].usage)
	}

	if _, err := s.Caller.Call(remote.SetTime, rtcTuple(t)); err != nil {
		return err
	}
	fmt.Fprintln(s.out, ctime(t))
	return nil
}

// rtcTuple is the board RTC datetime layout; weekday runs 1 (Monday) to 7.
func rtcTuple(t time.Time) pylit.Tuple {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return pylit.Tuple{t.Year(), int(t.Month()), t.Day(), wd, t.Hour(), t.Minute(), t.Second(), 0}
}

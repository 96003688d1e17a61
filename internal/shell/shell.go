// Package shell is the command interpreter. Every filesystem command works
// on host and board paths alike; the vfs.Dispatcher picks the side.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinribelotta/uPyIDE/internal/failure"
	"github.com/martinribelotta/uPyIDE/internal/pyboard"
	"github.com/martinribelotta/uPyIDE/internal/remote"
	"github.com/martinribelotta/uPyIDE/internal/vfs"
)

// Session holds everything the commands share. The roots never change
// after discovery; Cwd changes only through cd.
type Session struct {
	ID      string
	Port    string
	Roots   vfs.Roots
	Cwd     string
	Color   bool
	Columns int
}

// NewSession starts in the host working directory.
func NewSession(port string, roots vfs.Roots) *Session {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}
	return &Session{
		ID:      uuid.NewString(),
		Port:    port,
		Roots:   roots,
		Cwd:     vfs.Resolve(filepath.ToSlash(cwd), "/"),
		Color:   true,
		Columns: DefaultColumns,
	}
}

// Recorder persists executed command lines.
type Recorder interface {
	RecordCommand(sessionID, port, line string, ok bool) error
}

type command struct {
	run   func(s *Shell, args []string) error
	usage string
	help  string
}

// Shell runs command lines against a Session.
type Shell struct {
	Session *Session
	FS      *vfs.Dispatcher
	Caller  remote.Caller
	Board   *pyboard.Board

	// In supplies keystrokes for repl.
	In  io.Reader
	Out io.Writer
	Err io.Writer

	History Recorder
	Timeout time.Duration

	log      *zap.Logger
	out      io.Writer
	failed   bool
	commands map[string]*command
}

func New(sess *Session, fs *vfs.Dispatcher, caller remote.Caller, board *pyboard.Board, log *zap.Logger) *Shell {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Shell{
		Session: sess,
		FS:      fs,
		Caller:  caller,
		Board:   board,
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
		Timeout: 10 * time.Second,
		log:     log.Named("shell").With(zap.String("session", sess.ID)),
	}
	s.commands = commandTable()
	if fs != nil && fs.Remote != nil && fs.Remote.Engine != nil && fs.Remote.Engine.Stray == nil {
		fs.Remote.Engine.Stray = commandOutput{s}
	}
	return s
}

// commandOutput writes to wherever the running command's output goes,
// redirection included.
type commandOutput struct {
	s *Shell
}

func (c commandOutput) Write(p []byte) (int, error) {
	if c.s.out == nil {
		return c.s.Out.Write(p)
	}
	return c.s.out.Write(p)
}

// Prompt is the current directory followed by "> ".
func (s *Shell) Prompt() string {
	if s.Session.Color {
		return promptStyle.Render(s.Session.Cwd) + "> "
	}
	return s.Session.Cwd + "> "
}

// Loop reads command lines from in until EOF or a quit command. The prompt
// is only printed when interactive is set.
func (s *Shell) Loop(in io.Reader, interactive bool) error {
	sc := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(s.Out, s.Prompt())
		}
		if !sc.Scan() {
			if interactive {
				fmt.Fprintln(s.Out)
			}
			return sc.Err()
		}
		if s.Exec(sc.Text()) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the shell should stop.
// Failures are printed; they never stop the shell.
func (s *Shell) Exec(line string) (stop bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}
	name, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		name, rest = line[:i], line[i+1:]
	}
	s.failed = false
	s.out = s.Out

	err := s.dispatch(name, rest)
	if errors.Is(err, errStop) {
		return true
	}
	if err != nil {
		s.warn(err)
	}
	ok := !s.failed
	s.log.Debug("command", zap.String("line", line), zap.Bool("ok", ok))
	if s.History != nil {
		if herr := s.History.RecordCommand(s.Session.ID, s.Session.Port, line, ok); herr != nil {
			s.log.Warn("recording history failed", zap.Error(herr))
		}
	}
	return false
}

var errStop = errors.New("stop")

func (s *Shell) dispatch(name, rest string) error {
	cmd, ok := s.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", name)
	}
	args, target, appending := redirection(SplitLine(rest))
	if target != "" {
		restore, err := s.redirect(target, appending)
		if err != nil {
			return err
		}
		defer restore()
	}
	return cmd.run(s, args)
}

// redirect points the command output at a host file for one command.
func (s *Shell) redirect(target string, appending bool) (func(), error) {
	path := s.resolve(target)
	if s.Session.Roots.IsRemote(path) {
		return nil, failure.Errorf(failure.Path, "redirect", path, "output can only go to a host file")
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appending {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(filepath.FromSlash(path), flags, 0o644)
	if err != nil {
		return nil, failure.New(failure.Path, "redirect", path, err)
	}
	prev := s.out
	s.out = f
	return func() {
		s.out = prev
		if err := f.Close(); err != nil {
			s.warn(err)
		}
	}, nil
}

func (s *Shell) resolve(p string) string {
	return vfs.Resolve(p, s.Session.Cwd)
}

// warn prints a failure and marks the command as failed.
func (s *Shell) warn(err error) {
	s.failed = true
	fmt.Fprintln(s.Err, err)
	s.log.Debug("failure", zap.Stringer("kind", failure.KindOf(err)), zap.Error(err))
}

func (s *Shell) commandNames() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

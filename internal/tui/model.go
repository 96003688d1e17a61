package tui

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/martinribelotta/uPyIDE/internal/pylit"
	"github.com/martinribelotta/uPyIDE/internal/remote"
	"github.com/martinribelotta/uPyIDE/internal/shell"
	"github.com/martinribelotta/uPyIDE/internal/vfs"
	"github.com/martinribelotta/uPyIDE/internal/watch"
)

// uploadChunk is the number of file bytes sent per write_hex call.
const uploadChunk = 512

type promptKind int

const (
	promptNone promptKind = iota
	promptRun
	promptUpload
)

type outputMsg []byte

type runDoneMsg struct {
	Path string
	Out  []byte
	Err  error
}

type listDoneMsg struct {
	Dir   string
	Names []string
	Err   error
}

type uploadDoneMsg struct {
	Dst  string
	Size int
	Err  error
}

// Model is the terminal UI: the board's output in a scrolling view, with
// keystrokes forwarded to the board and a few shortcuts that run requests
// through an Exchange.
type Model struct {
	screen   *Screen
	viewport viewport.Model
	input    textinput.Model
	prompt   promptKind

	board    io.Writer
	exchange *watch.Exchange
	log      *zap.Logger

	// Dir is the board directory listed and uploaded into.
	Dir string

	status        string
	err           error
	width, height int
	quitting      bool
}

func NewModel(board io.Writer, ex *watch.Exchange, dir string, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 1024
	ti.Width = 60

	return Model{
		screen:   NewScreen(),
		viewport: viewport.New(80, 20),
		input:    ti,
		board:    board,
		exchange: ex,
		log:      log.Named("tui"),
		Dir:      dir,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case outputMsg:
		m.screen.Write(msg)
		m.refresh()
		return m, nil

	case runDoneMsg:
		m.screen.Write(msg.Out)
		m.setResult(msg.Err, "ran "+msg.Path)
		m.refresh()
		return m, nil

	case listDoneMsg:
		if msg.Err == nil {
			fmt.Fprintf(m.screen, "\r\n%s:\r\n", msg.Dir)
			shell.PrintColumns(m.screen, msg.Names, max(m.width, 20))
		}
		m.setResult(msg.Err, fmt.Sprintf("%d entries in %s", len(msg.Names), msg.Dir))
		m.refresh()
		return m, nil

	case uploadDoneMsg:
		m.setResult(msg.Err, fmt.Sprintf("uploaded %d bytes to %s", msg.Size, msg.Dst))
		return m, nil

	case error:
		m.err = msg
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-3, 1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) setResult(err error, ok string) {
	if err != nil {
		m.err = err
		m.status = ""
		m.log.Warn("request failed", zap.Error(err))
		return
	}
	m.err = nil
	m.status = ok
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.screen.String())
	m.viewport.GotoBottom()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}

	if m.prompt != promptNone {
		return m.handlePromptKey(msg)
	}

	switch {
	case key.Matches(msg, keys.Run):
		return m.openPrompt(promptRun, "local script to run")
	case key.Matches(msg, keys.Upload):
		return m.openPrompt(promptUpload, "local file to upload to "+m.Dir)
	case key.Matches(msg, keys.List):
		return m, m.listCmd(m.Dir)
	case key.Matches(msg, keys.Clear):
		m.screen.Reset()
		m.refresh()
		return m, nil
	}

	// The board belongs to the exchange while a request is outstanding.
	if m.exchange != nil && m.exchange.Busy() {
		return m, nil
	}
	if p := keyBytes(msg); p != nil {
		if _, err := m.board.Write(p); err != nil {
			m.err = err
		}
	}
	return m, nil
}

func (m Model) openPrompt(kind promptKind, placeholder string) (tea.Model, tea.Cmd) {
	m.prompt = kind
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	return m, m.input.Focus()
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		m.prompt = promptNone
		m.input.Blur()
		return m, nil
	case key.Matches(msg, keys.Enter):
		path := m.input.Value()
		kind := m.prompt
		m.prompt = promptNone
		m.input.Blur()
		if path == "" {
			return m, nil
		}
		if kind == promptRun {
			return m, m.runCmd(path)
		}
		return m, m.uploadCmd(path, m.Dir)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) runCmd(path string) tea.Cmd {
	ex := m.exchange
	return func() tea.Msg {
		code, err := os.ReadFile(path)
		if err != nil {
			return runDoneMsg{Path: path, Err: err}
		}
		out, err := ex.Run(context.Background(), string(code))
		return runDoneMsg{Path: path, Out: out, Err: err}
	}
}

func (m Model) listCmd(dir string) tea.Cmd {
	ex := m.exchange
	return func() tea.Msg {
		v, err := ex.Call(context.Background(), remote.ListDir, dir)
		if err != nil {
			return listDoneMsg{Dir: dir, Err: err}
		}
		items, err := pylit.Seq(v)
		if err != nil {
			return listDoneMsg{Dir: dir, Err: err}
		}
		names := make([]string, 0, len(items))
		for _, item := range items {
			name, err := pylit.String(item)
			if err != nil {
				return listDoneMsg{Dir: dir, Err: err}
			}
			names = append(names, name)
		}
		return listDoneMsg{Dir: dir, Names: names}
	}
}

func (m Model) uploadCmd(path, dir string) tea.Cmd {
	ex := m.exchange
	log := m.log
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		dst := vfs.Join(dir, filepath.Base(path))
		if err != nil {
			return uploadDoneMsg{Dst: dst, Err: err}
		}
		for off := 0; off == 0 || off < len(data); off += uploadChunk {
			end := min(off+uploadChunk, len(data))
			chunk := hex.EncodeToString(data[off:end])
			if _, err := ex.Call(context.Background(), remote.WriteHex, dst, chunk, off > 0); err != nil {
				return uploadDoneMsg{Dst: dst, Size: off, Err: err}
			}
			log.Debug("uploaded chunk", zap.String("dst", dst), zap.Int("offset", off))
		}
		return uploadDoneMsg{Dst: dst, Size: len(data)}
	}
}

// sender forwards stream chunks into a running program.
type sender struct {
	p *tea.Program
}

func (s sender) Write(p []byte) (int, error) {
	s.p.Send(outputMsg(bytes.Clone(p)))
	return len(p), nil
}

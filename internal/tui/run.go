package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/martinribelotta/uPyIDE/internal/watch"
)

// quietWhileBusy drops stream bytes while an exchange request owns the
// board, so raw REPL traffic stays off the screen.
type quietWhileBusy struct {
	ex *watch.Exchange
	w  io.Writer
}

func (q quietWhileBusy) Write(p []byte) (int, error) {
	if q.ex.Busy() {
		return len(p), nil
	}
	return q.w.Write(p)
}

// Run shows the UI for the board on port until the user quits or reading
// the port fails. Reads from port must return (0, nil) on timeout.
func Run(ctx context.Context, port io.ReadWriter, dir string, log *zap.Logger, opts ...tea.ProgramOption) error {
	if log == nil {
		log = zap.NewNop()
	}
	var chain watch.Chain
	ex := watch.NewExchange(&chain, port, log)
	p := tea.NewProgram(NewModel(port, ex, dir, log), append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	chain.Add(&watch.Renderer{W: quietWhileBusy{ex: ex, w: sender{p: p}}})

	// Wake the board so its prompt shows up.
	if _, err := port.Write([]byte{'\r'}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer p.Quit()
		err := chain.Pump(ctx, port)
		if err != nil {
			log.Warn("pump stopped", zap.Error(err))
		}
		return err
	})
	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		return err
	})
	return g.Wait()
}

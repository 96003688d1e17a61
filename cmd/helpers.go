package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martinribelotta/uPyIDE/internal/config"
	"github.com/martinribelotta/uPyIDE/internal/logging"
	"github.com/martinribelotta/uPyIDE/internal/pyboard"
	"github.com/martinribelotta/uPyIDE/internal/pylit"
	"github.com/martinribelotta/uPyIDE/internal/remote"
	"github.com/martinribelotta/uPyIDE/internal/state"
	"github.com/martinribelotta/uPyIDE/internal/transfer"
	"github.com/martinribelotta/uPyIDE/internal/transport"
	"github.com/martinribelotta/uPyIDE/internal/vfs"
)

// loadConfig reads --config, or the default config file, and applies the
// global flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port = flags.port
	}
	if f.Changed("baud") {
		cfg.Baud = flags.baud
	}
	if f.Changed("timeout") {
		cfg.Timeout = flags.timeout
	}
	if flags.noColor {
		cfg.NoColor = true
	}
	switch {
	case flags.debug:
		cfg.Log.Level = "debug"
	case flags.verbose:
		cfg.Log.Level = "info"
	}
	return cfg, nil
}

// setup loads the config and installs the logger.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, log, nil
}

// openStore opens the history database named by the config. A store that
// cannot be opened only costs the history, so the error is logged.
func openStore(cfg *config.Config, log *zap.Logger) *state.Store {
	var store *state.Store
	var err error
	if cfg.StatePath != "" {
		store, err = state.OpenPath(cfg.StatePath)
	} else {
		store, err = state.Open()
	}
	if err != nil {
		log.Warn("history disabled", zap.Error(err))
		return nil
	}
	return store
}

// link is an open connection to one board.
type link struct {
	cfg   *config.Config
	log   *zap.Logger
	port  string
	t     transport.Transport
	board *pyboard.Board
	inj   *remote.Injector
}

// dial opens the configured port. The port is resolved through the device
// nicknames first.
func dial(cfg *config.Config, log *zap.Logger) (*link, error) {
	port, baud := cfg.ResolvePort(cfg.Port)
	t, err := transport.Open(transport.Handle{Port: port, Baud: baud})
	if err != nil {
		return nil, err
	}
	log.Info("connected", zap.String("port", port), zap.Int("baud", baud))

	board := pyboard.New(t, log)
	inj := remote.NewInjector(board, log)
	inj.Timeout = cfg.Timeout
	if flags.debug {
		inj.Echo = os.Stderr
	}
	return &link{cfg: cfg, log: log, port: port, t: t, board: board, inj: inj}, nil
}

func (l *link) Close() error {
	if l.board.InRaw() {
		l.board.Exit()
	}
	return l.t.Close()
}

var errNoBuffer = errors.New("board firmware lacks sys.stdin.buffer; file transfers are not possible")

// filesystem checks the firmware and discovers the board's mount points.
func (l *link) filesystem(store *state.Store) (*vfs.Dispatcher, error) {
	v, err := l.inj.Call(remote.TestBuffer)
	if err != nil {
		return nil, err
	}
	if ok, _ := pylit.Bool(v); !ok {
		return nil, errNoBuffer
	}

	roots, err := vfs.DiscoverRoots(l.inj)
	if err != nil {
		return nil, fmt.Errorf("failed to list board root: %w", err)
	}
	l.log.Info("board roots", zap.Strings("roots", roots))

	d := &vfs.Dispatcher{
		Roots:  roots,
		Remote: &vfs.RemoteFS{Caller: l.inj, Engine: &transfer.Engine{Log: l.log}},
		Log:    l.log,
	}
	if store != nil {
		port := l.port
		d.OnTransfer = func(direction, src, dst string, size int64, err error) {
			rec := state.Transfer{Port: port, Direction: direction, Src: src, Dst: dst, Bytes: size, OK: err == nil}
			if serr := store.RecordTransfer(rec); serr != nil {
				l.log.Warn("failed to record transfer", zap.Error(serr))
			}
		}
	}
	return d, nil
}

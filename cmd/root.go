package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/martinribelotta/uPyIDE/internal/config"
	"github.com/martinribelotta/uPyIDE/internal/shell"
)

var flags struct {
	port       string
	baud       int
	file       string
	debug      bool
	noColor    bool
	verbose    bool
	timeout    time.Duration
	configPath string
}

func SetVersionInfo(version, commit string) {
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

var rootCmd = &cobra.Command{
	Use:   "upyide [command words...]",
	Short: "Shell for the files and REPL of a MicroPython board",
	Long: `Opens a shell on a MicroPython board attached to a serial port.

Paths under the board's mount points (for example /flash or /sd) refer to
files on the board; every other path is a host path. With command words the
shell runs that one command and exits; with -f it runs a batch file.`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		l, err := dial(cfg, log)
		if err != nil {
			return err
		}
		defer l.Close()

		store := openStore(cfg, log)
		if store != nil {
			defer store.Close()
		}
		fs, err := l.filesystem(store)
		if err != nil {
			return err
		}

		sess := shell.NewSession(l.port, fs.Roots)
		sess.Color = !cfg.NoColor
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			sess.Columns = w
		}
		sh := shell.New(sess, fs, l.inj, l.board, log)
		sh.Timeout = cfg.Timeout
		if store != nil {
			sh.History = store
		}
		log.Info("session started", zap.String("session", sess.ID), zap.String("cwd", sess.Cwd))

		switch {
		case flags.file != "":
			f, err := os.Open(flags.file)
			if err != nil {
				return fmt.Errorf("failed to open batch file: %w", err)
			}
			defer f.Close()
			return sh.Loop(f, false)
		case len(args) > 0:
			sh.Exec(strings.Join(args, " "))
			return nil
		default:
			return sh.Loop(os.Stdin, term.IsTerminal(int(os.Stdin.Fd())))
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.port, "port", "p", config.DefaultPort, "Serial port or configured device name (env "+config.PortEnv+")")
	pf.IntVarP(&flags.baud, "baud", "b", config.DefaultBaud, "Baud rate")
	pf.BoolVarP(&flags.debug, "debug", "d", false, "Log wire traffic")
	pf.BoolVarP(&flags.noColor, "nocolor", "n", false, "Turn off colorized output")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log session events")
	pf.DurationVarP(&flags.timeout, "timeout", "t", config.DefaultTimeout, "Timeout for commands run on the board")
	pf.StringVar(&flags.configPath, "config", "", "Config file (default ~/.config/upyide/config.yaml)")
	rootCmd.Flags().StringVarP(&flags.file, "file", "f", "", "Run commands from a file")
	// Command words may themselves start with a dash, as in "ls -l".
	rootCmd.Flags().SetInterspersed(false)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

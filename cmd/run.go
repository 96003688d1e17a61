package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/martinribelotta/uPyIDE/internal/pyboard"
)

var runCmd = &cobra.Command{
	Use:   "run <file> | run -c <code>",
	Short: "Run a local script on the board and print its output",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, _ := cmd.Flags().GetString("command")
		if (code == "") == (len(args) == 0) {
			return fmt.Errorf("specify a file or -c CODE")
		}
		if len(args) == 1 {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}
			code = string(data)
		}

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

		if err := l.board.Enter(); err != nil {
			return err
		}
		out, err := l.board.Run(code, cfg.Timeout)
		os.Stdout.Write(out)
		var dev *pyboard.DeviceError
		if errors.As(err, &dev) {
			fmt.Fprint(os.Stderr, dev.Traceback)
			return fmt.Errorf("script failed: %s", dev.Error())
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringP("command", "c", "", "Code to run instead of a file")
	rootCmd.AddCommand(runCmd)
}

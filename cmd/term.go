package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/martinribelotta/uPyIDE/internal/tui"
)

var termCmd = &cobra.Command{
	Use:   "term",
	Short: "Open a full screen terminal on the board's REPL",
	Long: `Opens a full screen terminal on the board's REPL.

ctrl+r runs a local script, ctrl+l lists the board directory, ctrl+u uploads
a local file into it and ctrl+q quits. Every other key goes to the board.`,
	Args: cobra.NoArgs,
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

		dir, _ := cmd.Flags().GetString("dir")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := tui.Run(ctx, l.t, dir, log); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	},
}

func init() {
	termCmd.Flags().String("dir", "/flash", "Board directory for listing and uploads")
	rootCmd.AddCommand(termCmd)
}

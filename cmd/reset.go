package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Soft reset the board",
	Long:  `Interrupts whatever the board is running and soft reboots the interpreter.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		port, _ := cfg.ResolvePort(cfg.Port)
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			fmt.Printf("Soft reset the board on %s? [y/N] ", port)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		l, err := dial(cfg, log)
		if err != nil {
			return err
		}
		defer l.Close()

		if err := l.board.SoftReset(cfg.Timeout); err != nil {
			return fmt.Errorf("failed to reset board: %w", err)
		}

		fmt.Printf("Reset board on %s\n", port)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolP("force", "f", false, "Skip confirmation")
	rootCmd.AddCommand(resetCmd)
}

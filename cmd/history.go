package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent shell commands and file transfers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		store := openStore(cfg, log)
		if store == nil {
			return fmt.Errorf("failed to open state db")
		}
		defer store.Close()

		n, _ := cmd.Flags().GetInt("lines")
		all, _ := cmd.Flags().GetBool("all")
		port := ""
		if !all {
			port, _ = cfg.ResolvePort(cfg.Port)
		}

		lines, err := store.RecentCommands(port, n)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		for _, h := range lines {
			mark := " "
			if !h.OK {
				mark = "!"
			}
			fmt.Printf("%s %s %s\n", h.At.Local().Format("2006-01-02 15:04"), mark, h.Line)
		}

		transfers, _ := cmd.Flags().GetBool("transfers")
		if !transfers {
			return nil
		}
		recent, err := store.RecentTransfers(n)
		if err != nil {
			return fmt.Errorf("failed to read transfers: %w", err)
		}
		if len(recent) > 0 {
			fmt.Println()
		}
		for _, t := range recent {
			status := "ok"
			if !t.OK {
				status = "failed"
			}
			fmt.Printf("%s %-8s %8d %s -> %s (%s)\n", t.At.Local().Format("2006-01-02 15:04"), t.Direction, t.Bytes, t.Src, t.Dst, status)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("lines", "l", 20, "Number of entries to show")
	historyCmd.Flags().BoolP("all", "a", false, "Show commands for every port")
	historyCmd.Flags().Bool("transfers", false, "Also show the file transfer log")
	rootCmd.AddCommand(historyCmd)
}

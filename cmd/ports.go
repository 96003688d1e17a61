package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/martinribelotta/uPyIDE/internal/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List the serial ports on this host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found.")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

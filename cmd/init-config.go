package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/martinribelotta/uPyIDE/internal/config"
)

var embeddedDefaultConfig []byte

func SetDefaultConfig(content []byte) {
	embeddedDefaultConfig = content
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write an example config file",
	Long:  `Writes a commented example config to ~/.config/upyide/config.yaml, or to --config.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(embeddedDefaultConfig) == 0 {
			return fmt.Errorf("default config not embedded")
		}

		path := flags.configPath
		if path == "" {
			var err error
			if path, err = config.Path(); err != nil {
				return fmt.Errorf("failed to get config path: %w", err)
			}
		}

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, embeddedDefaultConfig, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	initConfigCmd.Flags().Bool("force", false, "Overwrite an existing file")
	rootCmd.AddCommand(initConfigCmd)
}

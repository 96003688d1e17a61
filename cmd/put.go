package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/martinribelotta/uPyIDE/internal/vfs"
)

var putCmd = &cobra.Command{
	Use:   "put <local> [remote]",
	Short: "Copy a host file onto the board",
	Long: `Copies a host file onto the board. The destination defaults to the
file's name in the first mount point of the board. A destination that is an
existing board directory receives the file under its own name.`,
	Args: cobra.RangeArgs(1, 2),
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
		if len(fs.Roots) == 0 {
			return fmt.Errorf("board has no mounted filesystem")
		}

		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		src := vfs.Resolve(filepath.ToSlash(abs), "/")
		name := vfs.Base(src)

		dst := vfs.Join(fs.Roots[0], name)
		if len(args) == 2 {
			dst = vfs.Resolve(args[1], fs.Roots[0])
			if !fs.Roots.IsRemote(dst) {
				return fmt.Errorf("%s is not on the board", dst)
			}
			st, err := fs.Remote.Stat(dst)
			if err != nil {
				return err
			}
			if st.IsDir() {
				dst = vfs.Join(dst, name)
			}
		}

		if err := fs.Copy(src, dst); err != nil {
			return err
		}
		fmt.Printf("Copied %s to %s\n", src, dst)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}

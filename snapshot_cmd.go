package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dgnsrekt/animcache/internal/inspect"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export FILE",
	Short:   "Write every cached clip to a compressed snapshot",
	Example: paragraph("animcache export clips.snap\nanimcache export - > clips.snap"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInspector(func(in *inspect.Inspector) error {
			var w io.Writer = cmd.OutOrStdout()
			if args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("unable to create snapshot: %w", err)
				}
				defer f.Close() //nolint:errcheck
				w = f
			}

			n, err := in.Export(cmd.Context(), w)
			if err != nil {
				return err
			}
			if args[0] != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d clips to %s\n", n, args[0]) //nolint:errcheck
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import FILE",
	Short:   "Load clips from a snapshot written by export",
	Example: paragraph("animcache import clips.snap\nanimcache import - < clips.snap"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("unable to open snapshot: %w", err)
			}
			defer f.Close() //nolint:errcheck
			r = f
		}

		n, err := inspect.Import(cmd.Context(), store, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d clips\n", n) //nolint:errcheck
		return nil
	},
}

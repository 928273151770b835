package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dgnsrekt/animcache/internal/loader"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var fetchOutput string

var fetchCmd = &cobra.Command{
	Use:   "fetch URL",
	Short: "Return a clip from the cache, downloading it on a miss",
	Long: paragraph(fmt.Sprintf("\n%s a clip. Cached clips are returned without touching the network; "+
		"missing clips are downloaded and stored for next time.", keyword("Fetch"))),
	Example: paragraph("animcache fetch https://cdn.example.com/motions/idle.vrma -o idle.vrma"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		ld, err := newLoader(store)
		if err != nil {
			return err
		}

		isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
		return runFetch(cmd.Context(), ld, args[0], fetchOutput, isTerminal, cmd.OutOrStdout())
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "write the clip to this file")
}

// runFetch writes the clip to output, or to w. Binary data is not written
// to a terminal; a short description is printed instead.
func runFetch(ctx context.Context, ld *loader.Loader, url, output string, isTerminal bool, w io.Writer) error {
	data, err := ld.GetOrFetch(ctx, url)
	if err != nil {
		return err
	}

	switch {
	case output != "":
		if err := os.WriteFile(output, data, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("unable to write clip: %w", err)
		}
		_, err = fmt.Fprintf(w, "Wrote %s to %s\n", humanize.Bytes(uint64(len(data))), output)
	case isTerminal:
		_, err = fmt.Fprintf(w, "%s %s (%s)\n", keyword("fetched"), url, humanize.Bytes(uint64(len(data))))
	default:
		_, err = w.Write(data)
	}
	if err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/animcache/internal/manifest"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	prefetchWatch       bool
	prefetchConcurrency int
)

var prefetchCmd = &cobra.Command{
	Use:   "prefetch MANIFEST",
	Short: "Warm the cache with every clip listed in a manifest",
	Long: paragraph(fmt.Sprintf("\n%s the cache from a YAML manifest with a %s list and an optional %s. "+
		"With --watch the manifest is reloaded and prefetched again whenever it changes.",
		keyword("Warm"), keyword("clips"), keyword("base_url"))),
	Example: paragraph("animcache prefetch motions.yml\nanimcache prefetch motions.yml --watch"),
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

		concurrency := viper.GetInt("prefetch.concurrency")
		if cmd.Flags().Changed("concurrency") {
			concurrency = prefetchConcurrency
		}

		m, err := manifest.Load(args[0])
		if err != nil {
			return err
		}
		if err := runPrefetch(cmd.Context(), ld, m, concurrency, cmd.OutOrStdout()); err != nil && !prefetchWatch {
			return err
		}
		if !prefetchWatch {
			return nil
		}

		w, err := manifest.NewWatcher(args[0], log.Default())
		if err != nil {
			return err
		}
		defer w.Close() //nolint:errcheck

		err = w.Run(cmd.Context(), func(m *manifest.Manifest) {
			if err := runPrefetch(cmd.Context(), ld, m, concurrency, cmd.OutOrStdout()); err != nil {
				log.Warn("prefetch incomplete", "error", err)
			}
		})
		if cmd.Context().Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	prefetchCmd.Flags().BoolVarP(&prefetchWatch, "watch", "w", false, "prefetch again whenever the manifest changes")
	prefetchCmd.Flags().IntVarP(&prefetchConcurrency, "concurrency", "c", 4, "parallel downloads")
}

// runPrefetch fetches every clip in m and prints one line per clip. It
// returns an error when any clip failed.
func runPrefetch(ctx context.Context, f manifest.Fetcher, m *manifest.Manifest, concurrency int, w io.Writer) error {
	urls, err := m.URLs()
	if err != nil {
		return err
	}

	results := manifest.Prefetch(ctx, f, urls, concurrency)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s %s: %v\n", failure("✗"), r.URL, r.Err) //nolint:errcheck
			continue
		}
		fmt.Fprintf(w, "%s %s (%s)\n", keyword("✓"), r.URL, humanize.Bytes(uint64(r.Bytes))) //nolint:errcheck,gosec
	}

	if failed := manifest.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d clips failed", len(failed), len(results))
	}
	return nil
}

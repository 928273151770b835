package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dgnsrekt/animcache/internal/inspect"
	"github.com/spf13/cobra"
)

var (
	statsKey   string
	clearForce bool

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInspector(func(in *inspect.Inspector) error {
				s, err := in.Summary(cmd.Context(), statsKey)
				if err != nil {
					return err
				}
				return inspect.Render(cmd.OutOrStdout(), s, time.Now())
			})
		},
	}

	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "List cached clips, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInspector(func(in *inspect.Inspector) error {
				infos, err := in.List(cmd.Context())
				if err != nil {
					return err
				}
				return inspect.RenderList(cmd.OutOrStdout(), infos, time.Now())
			})
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached clip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInspector(func(in *inspect.Inspector) error {
				return runClear(cmd.Context(), in, clearForce, cmd.OutOrStdout())
			})
		},
	}
)

func init() {
	statsCmd.Flags().StringVarP(&statsKey, "key", "k", "", "report whether this clip URL is cached")
	clearCmd.Flags().BoolVarP(&clearForce, "yes", "y", false, "do not ask for confirmation")
}

func withInspector(fn func(*inspect.Inspector) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck
	return fn(inspect.New(store))
}

func runClear(ctx context.Context, in *inspect.Inspector, force bool, w io.Writer) error {
	n, err := in.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 && !force {
		return fmt.Errorf("refusing to remove %d clips without --yes", n)
	}
	if err := in.Clear(ctx); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Removed %d clips\n", n); err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	return nil
}

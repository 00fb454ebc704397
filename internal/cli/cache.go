package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiwina/gules/internal/cache"
	"github.com/kiwina/gules/internal/core"
	"github.com/kiwina/gules/internal/output"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the activity cache",
	}

	cmd.AddCommand(
		newCacheStatsCmd(root),
		newCacheListCmd(root),
		newCacheClearCmd(root),
		newCacheDeleteCmd(root),
		newCacheRefreshCmd(root),
	)
	return cmd
}

func newCacheStatsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.wireApp(noSource)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.store.Stats()
			if err != nil {
				return err
			}
			if asJSON {
				return output.PrintJSON(cmd.OutOrStdout(), stats)
			}
			for _, s := range stats.Sessions {
				if s.Err != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to load cache for session %s: %s\n", s.SessionID, s.Err)
				}
			}
			return output.PrintStats(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statistics as JSON")
	return cmd
}

func newCacheListCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached sessions, least recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.wireApp(noSource)
			if err != nil {
				return err
			}
			defer a.close()

			ids, err := a.store.ListCachedSessionIDs()
			if err != nil {
				return err
			}
			if asJSON {
				if ids == nil {
					ids = []string{}
				}
				return output.PrintJSON(cmd.OutOrStdout(), ids)
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached sessions.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print session IDs as a JSON array")
	return cmd
}

func newCacheClearCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.wireApp(noSource)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.store.Stats()
			if err != nil {
				return err
			}
			if stats.TotalSessions == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is already empty.")
				return nil
			}
			if err := a.store.ClearAll(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared cache (%d sessions, %d activities)\n",
				stats.TotalSessions, stats.TotalActivities)
			return nil
		},
	}
}

func newCacheDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SESSION_ID",
		Short: "Remove one session from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]

			a, err := root.wireApp(noSource)
			if err != nil {
				return err
			}
			defer a.close()

			cached, err := a.store.LoadSession(sessionID)
			if err != nil {
				return err
			}
			if cached == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No cache found for session: %s\n", sessionID)
				return nil
			}
			if err := a.store.Delete(sessionID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted cache for session: %s\n", sessionID)
			return nil
		},
	}
}

func newCacheRefreshCmd(root *rootOptions) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "refresh [SESSION_ID...]",
		Short: "Fetch new activities for cached sessions",
		Long: `Refresh the given sessions, or every cached session when none are given.
Sessions not yet cached are fetched in full.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.wireApp(requireSource)
			if err != nil {
				return err
			}
			defer a.close()

			ids := args
			if len(ids) == 0 {
				if ids, err = a.store.ListCachedSessionIDs(); err != nil {
					return err
				}
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached sessions.")
				return nil
			}

			var results []cache.RefreshResult
			refresh := func(ctx context.Context) error {
				results = a.store.RefreshAll(ctx, ids, parallel)
				return nil
			}
			label := fmt.Sprintf("Refreshing %d sessions...", len(ids))
			if root.quiet || root.verbose {
				_ = refresh(cmd.Context())
			} else if err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), label, refresh); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: error: %v\n", r.SessionID, r.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d activities\n", r.SessionID, r.Activities)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sessions failed to refresh", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", core.RefreshMaxWorkers, "Max sessions to refresh in parallel")
	return cmd
}

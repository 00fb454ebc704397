package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiwina/gules/internal/api"
	"github.com/kiwina/gules/internal/output"
)

type activityOptions struct {
	noCache bool
	format  string
}

func newActivityCmd(root *rootOptions) *cobra.Command {
	opts := &activityOptions{}

	cmd := &cobra.Command{
		Use:   "activity SESSION_ID ACTIVITY_ID",
		Short: "Show a single activity of a session",
		Long: `Show one activity of a Jules session.

A cached copy is used when the session is cached; otherwise the activity is
fetched from the API without being written to the cache.`,
		Example: `  gules activity 1234567890 a1b2c3
  gules activity 1234567890 a1b2c3 --format full`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivity(cmd, root, opts, args[0], args[1])
		},
	}

	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Fetch from the API without reading the cache")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(output.FormatJSON), "Output format: json, table, full or content")

	return cmd
}

func runActivity(cmd *cobra.Command, root *rootOptions, opts *activityOptions, sessionID, activityID string) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	a, err := root.wireApp(optionalSource)
	if err != nil {
		return err
	}
	defer a.close()

	var activity *api.Activity
	fetch := func(ctx context.Context) error {
		var err error
		activity, err = a.store.Activity(ctx, sessionID, activityID, opts.noCache)
		return err
	}

	label := fmt.Sprintf("Fetching activity %s...", activityID)
	if root.quiet || root.verbose {
		err = fetch(cmd.Context())
	} else {
		err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), label, fetch)
	}
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), activity)
	}
	return output.PrintActivities(cmd.OutOrStdout(), []api.Activity{*activity}, format)
}

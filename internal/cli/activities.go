package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiwina/gules/internal/api"
	"github.com/kiwina/gules/internal/core"
	"github.com/kiwina/gules/internal/output"
)

type activitiesOptions struct {
	last          int
	types         string
	hasBashOutput bool
	noCache       bool
	format        string
}

func newActivitiesCmd(root *rootOptions) *cobra.Command {
	opts := &activitiesOptions{}

	cmd := &cobra.Command{
		Use:     "activities SESSION_ID",
		Aliases: []string{"filter-activities"},
		Short:   "List and filter the activities of a session",
		Long: `List the activities of a Jules session, newest first.

The first query for a session fetches up to the most recent 100 activities;
later queries fetch only the next page after what is already cached.`,
		Example: `  gules activities 1234567890 --last 5 --format table
  gules activities 1234567890 --type agent,progress --has-bash-output
  gules activities 1234567890 --no-cache --format content`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivities(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.last, "last", "n", 0, "Only show the N most recent matching activities")
	cmd.Flags().StringVarP(&opts.types, "type", "t", "", "Comma separated activity types (agent-message, user-message, plan, plan-approved, progress, completed, failed)")
	cmd.Flags().BoolVar(&opts.hasBashOutput, "has-bash-output", false, "Only show activities that ran a bash command")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Fetch from the API without reading or writing the cache")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(output.FormatJSON), "Output format: json, table, full or content")

	return cmd
}

func runActivities(cmd *cobra.Command, root *rootOptions, opts *activitiesOptions, sessionID string) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	types, err := api.ParseTypeFilters(opts.types)
	if err != nil {
		return err
	}
	if opts.last < 0 {
		return fmt.Errorf("--last must not be negative")
	}

	a, err := root.wireApp(requireSource)
	if err != nil {
		return err
	}
	defer a.close()

	var activities []api.Activity
	fetch := func(ctx context.Context) error {
		var err error
		activities, err = a.store.Activities(ctx, sessionID, opts.noCache)
		return err
	}

	label := fmt.Sprintf("Fetching activities for %s...", sessionID)
	if root.quiet || root.verbose {
		err = fetch(cmd.Context())
	} else {
		err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), label, fetch)
	}
	if err != nil {
		return err
	}

	filtered := api.Filter(activities, api.FilterOptions{
		Types:         types,
		HasBashOutput: opts.hasBashOutput,
		Last:          opts.last,
	})
	core.Eprint(fmt.Sprintf("[Filter] %d of %d activities match", len(filtered), len(activities)), root.verbose)

	return output.PrintActivities(cmd.OutOrStdout(), filtered, format)
}

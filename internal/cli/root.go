// Package cli implements the command-line interface for gules.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiwina/gules/internal/core"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	verbose    bool
	quiet      bool
	apiKey     string
	configPath string
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   core.AppName,
		Short: "gules – read and cache Jules session activities",
		Long: `A command-line utility for reading the activities of Jules sessions.

Activities are cached locally and refreshed incrementally, so repeated
queries against the same session only fetch what is new.`,
		Version:       core.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "Suppress progress messages")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", fmt.Sprintf("Jules API key (default: $%s or config)", core.APIKeyEnvVar))
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: "+core.ConfigPath()+")")

	rootCmd.AddCommand(
		newActivitiesCmd(opts),
		newActivityCmd(opts),
		newCacheCmd(opts),
		newConfigCmd(opts),
		newMCPCmd(opts),
	)

	return rootCmd
}

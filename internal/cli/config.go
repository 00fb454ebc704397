package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/kiwina/gules/internal/core"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit the gules configuration",
	}

	cmd.AddCommand(
		newConfigShowCmd(root),
		newConfigInitCmd(root),
		newConfigSetCmd(root),
		newConfigPathCmd(root),
	)
	return cmd
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			shown := *cfg
			shown.APIKey = core.MaskSecret(cfg.APIKey)
			data, err := toml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", root.resolvedConfigPath(), data)
			fmt.Fprintf(cmd.OutOrStdout(), "# effective cache dir: %s\n", cfg.CacheDir())
			return nil
		},
	}
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := root.resolvedConfigPath()

			_, err := os.Stat(path)
			switch {
			case err == nil && !force:
				fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s (use --force to overwrite)\n", path)
				return nil
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return fmt.Errorf("stat config file: %w", err)
			}

			if err := core.SaveConfig(path, core.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigSetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "set KEY VALUE",
		Short:     "Set one configuration value",
		Args:      cobra.ExactArgs(2),
		ValidArgs: core.ConfigKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := core.SetConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := core.SaveConfig(root.resolvedConfigPath(), cfg); err != nil {
				return err
			}

			if key == "api_key" {
				value = core.MaskSecret(value)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

func newConfigPathCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), root.resolvedConfigPath())
			return nil
		},
	}
}

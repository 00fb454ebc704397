package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kiwina/gules/internal/mcptools"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI integration",
		Long: `Serve the activity cache over the Model Context Protocol on stdio.

Tools: list_activities, cache_stats, cache_list, cache_delete, cache_clear.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.wireApp(optionalSource)
			if err != nil {
				return err
			}
			defer a.close()

			return server.ServeStdio(mcptools.NewServer(a.store))
		},
	}
}

package mcptools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/kiwina/gules/internal/cache"
	"github.com/kiwina/gules/internal/core"
)

const instructions = `gules gives read access to Jules session activities.

Use list_activities to read what the agent did in a session; repeated calls
are cheap because results are cached locally and refreshed incrementally.
Use get_activity to read a single activity by id.
Use the cache_* tools to inspect or reset that cache.`

// NewServer creates an MCP server with every gules tool registered.
func NewServer(store *cache.Store) *server.MCPServer {
	s := server.NewMCPServer(
		core.AppName,
		core.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	listTool := NewListActivitiesTool(store)
	s.AddTool(listTool.Definition(), listTool.Handle)

	getTool := NewGetActivityTool(store)
	s.AddTool(getTool.Definition(), getTool.Handle)

	statsTool := NewCacheStatsTool(store)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	cacheListTool := NewCacheListTool(store)
	s.AddTool(cacheListTool.Definition(), cacheListTool.Handle)

	deleteTool := NewCacheDeleteTool(store)
	s.AddTool(deleteTool.Definition(), deleteTool.Handle)

	clearTool := NewCacheClearTool(store)
	s.AddTool(clearTool.Definition(), clearTool.Handle)

	return s
}

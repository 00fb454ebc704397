package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kiwina/gules/internal/cache"
)

// CacheStatsTool handles the cache_stats MCP tool.
type CacheStatsTool struct {
	store *cache.Store
}

func NewCacheStatsTool(store *cache.Store) *CacheStatsTool {
	return &CacheStatsTool{store: store}
}

func (t *CacheStatsTool) Definition() mcp.Tool {
	return mcp.NewTool("cache_stats",
		mcp.WithDescription("Report activity cache statistics: status, location, session count against the limit, total activities and disk usage."),
	)
}

func (t *CacheStatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read cache stats: %v", err)), nil
	}
	return jsonResult(stats), nil
}

// CacheListTool handles the cache_list MCP tool.
type CacheListTool struct {
	store *cache.Store
}

func NewCacheListTool(store *cache.Store) *CacheListTool {
	return &CacheListTool{store: store}
}

func (t *CacheListTool) Definition() mcp.Tool {
	return mcp.NewTool("cache_list",
		mcp.WithDescription("List cached session IDs from least to most recently used."),
	)
}

func (t *CacheListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := t.store.ListCachedSessionIDs()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list cached sessions: %v", err)), nil
	}
	if ids == nil {
		ids = []string{}
	}
	return jsonResult(ids), nil
}

// CacheDeleteTool handles the cache_delete MCP tool.
type CacheDeleteTool struct {
	store *cache.Store
}

func NewCacheDeleteTool(store *cache.Store) *CacheDeleteTool {
	return &CacheDeleteTool{store: store}
}

func (t *CacheDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("cache_delete",
		mcp.WithDescription("Remove one session from the activity cache. Deleting a session that is not cached succeeds."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The Jules session ID to forget"),
		),
	)
}

func (t *CacheDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil || sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	if err := t.store.Delete(sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete cache for %s: %v", sessionID, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted cache for session: %s", sessionID)), nil
}

// CacheClearTool handles the cache_clear MCP tool.
type CacheClearTool struct {
	store *cache.Store
}

func NewCacheClearTool(store *cache.Store) *CacheClearTool {
	return &CacheClearTool{store: store}
}

func (t *CacheClearTool) Definition() mcp.Tool {
	return mcp.NewTool("cache_clear",
		mcp.WithDescription("Remove every cached session. The cache configuration is kept."),
	)
}

func (t *CacheClearTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read cache stats: %v", err)), nil
	}
	if err := t.store.ClearAll(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear cache: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cleared cache (%d sessions, %d activities)",
		stats.TotalSessions, stats.TotalActivities)), nil
}

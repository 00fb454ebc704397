package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kiwina/gules/internal/api"
	"github.com/kiwina/gules/internal/cache"
)

// ListActivitiesTool handles the list_activities MCP tool.
type ListActivitiesTool struct {
	store *cache.Store
}

// NewListActivitiesTool creates a ListActivitiesTool reading through store.
func NewListActivitiesTool(store *cache.Store) *ListActivitiesTool {
	return &ListActivitiesTool{store: store}
}

// Definition returns the MCP tool definition for list_activities.
func (t *ListActivitiesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_activities",
		mcp.WithDescription(
			"List the activities of a Jules session, newest first. "+
				"Results come from the local cache, refreshed incrementally from the API. "+
				"Returns a JSON array of activities.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The Jules session ID"),
		),
		mcp.WithNumber("last_n",
			mcp.Description("Only return the N most recent matching activities (default: all)"),
		),
		mcp.WithString("types",
			mcp.Description("Comma separated activity types: agent-message, user-message, plan, plan-approved, progress, completed, failed"),
		),
		mcp.WithBoolean("has_bash_output",
			mcp.Description("Only return activities that ran a bash command"),
		),
		mcp.WithBoolean("no_cache",
			mcp.Description("Fetch directly from the API without reading or writing the cache"),
		),
	)
}

// Handle processes the list_activities tool call.
func (t *ListActivitiesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil || sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	types, err := api.ParseTypeFilters(req.GetString("types", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	lastN := req.GetInt("last_n", 0)
	if lastN < 0 {
		return mcp.NewToolResultError("'last_n' must not be negative"), nil
	}

	activities, err := t.store.Activities(ctx, sessionID, req.GetBool("no_cache", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list activities: %v", err)), nil
	}

	return jsonResult(api.Filter(activities, api.FilterOptions{
		Types:         types,
		HasBashOutput: req.GetBool("has_bash_output", false),
		Last:          lastN,
	})), nil
}

// GetActivityTool handles the get_activity MCP tool.
type GetActivityTool struct {
	store *cache.Store
}

// NewGetActivityTool creates a GetActivityTool reading through store.
func NewGetActivityTool(store *cache.Store) *GetActivityTool {
	return &GetActivityTool{store: store}
}

// Definition returns the MCP tool definition for get_activity.
func (t *GetActivityTool) Definition() mcp.Tool {
	return mcp.NewTool("get_activity",
		mcp.WithDescription(
			"Get one activity of a Jules session by id. "+
				"A cached copy is returned when the session is cached; otherwise the API is asked. "+
				"Returns the activity as a JSON object.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The Jules session ID"),
		),
		mcp.WithString("activity_id",
			mcp.Required(),
			mcp.Description("The activity ID within the session"),
		),
		mcp.WithBoolean("no_cache",
			mcp.Description("Fetch directly from the API without reading the cache"),
		),
	)
}

// Handle processes the get_activity tool call.
func (t *GetActivityTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil || sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	activityID, err := req.RequireString("activity_id")
	if err != nil || activityID == "" {
		return mcp.NewToolResultError("'activity_id' is required"), nil
	}

	activity, err := t.store.Activity(ctx, sessionID, activityID, req.GetBool("no_cache", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get activity: %v", err)), nil
	}
	return jsonResult(activity), nil
}

// Package mcptools exposes the activity cache as MCP tools.
//
// Each tool is a struct holding its dependencies with two methods:
// Definition returns the mcp.Tool schema and Handle serves a call.
// Failures are reported as error results so the calling agent can read
// them, never as protocol errors.
package mcptools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// jsonResult renders v as indented JSON text.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

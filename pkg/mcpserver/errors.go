package mcpserver

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gomcpgo/superfetch/pkg/apperrors"
)

// toolError converts any error into the structured MCP tool result shape
// spec.md §7 mandates: a text content block plus a structuredContent
// {error, code} and isError:true, rather than a transport-level failure.
func toolError(err error) (*mcp.CallToolResult, any, error) {
	ae, ok := apperrors.As(err)
	if !ok {
		ae = apperrors.Internal(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: ae.Error()}},
		IsError: true,
	}, map[string]interface{}{
		"error": ae.Message,
		"code":  ae.Code,
	}, nil
}

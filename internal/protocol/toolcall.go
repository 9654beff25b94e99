package protocol

import "encoding/json"

// ContentItem is one element of a CallToolResult's content array. It mirrors
// the MCP content shapes (text/image/resource) closely enough to round-trip
// through mark3labs/mcp-go's mcp.Content without this package importing it
// directly — mcpfleet.Client.CallTool does that conversion.
type ContentItem struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Data     string          `json:"data,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// CallToolResult is the wire-compatible tool-call result shape required by
// spec §6: "The Computer MUST NOT return a result/error-wrapper shape... "
// callers rely on IsError + Content.
type CallToolResult struct {
	Content           []ContentItem  `json:"content"`
	IsError           bool           `json:"isError"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	Meta              map[string]any `json:"meta,omitempty"`
}

// TextResult builds a single-text-content, non-error CallToolResult.
func TextResult(text string) CallToolResult {
	return CallToolResult{Content: []ContentItem{{Type: "text", Text: text}}, IsError: false}
}

// ErrorResult builds a single-text-content, IsError=true CallToolResult. This
// is the shape used for every error in the taxonomy table that surfaces as
// "CallToolResult{isError:true}": tool_forbidden, tool_unknown,
// shutting_down, call_timeout, call_cancelled, and uncaught adapter panics.
func ErrorResult(reason string) CallToolResult {
	return CallToolResult{Content: []ContentItem{{Type: "text", Text: reason}}, IsError: true}
}

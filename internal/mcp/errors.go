// errors.go — Structured error envelopes for MCP tool results. Adapted
// from the teacher's internal/mcp/errors.go snake_case StructuredError
// pattern, closed over the §7 Kind enum (internal/debugerr) instead of an
// open string constant set, and carrying the context object (call id,
// frame index, request id) §7 requires.
package mcp

import (
	"encoding/json"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
)

// StructuredError is embedded in MCP tool error results. Every field is
// self-describing so a client can act on it without a lookup table (§7).
type StructuredError struct {
	Kind        debugerr.Kind  `json:"kind"`
	Message     string         `json:"message"`
	Context     map[string]any `json:"context,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// ToolErrorResult constructs an MCP tool result for a failed tool call,
// carrying the §7 error envelope as JSON text content.
func ToolErrorResult(err error) MCPToolResult {
	se := StructuredError{Kind: debugerr.Internal}
	if de, ok := debugerr.As(err); ok {
		se.Kind = de.Kind
		se.Message = de.Message
		se.Context = de.Context
		se.Suggestions = de.Suggestions
	} else if err != nil {
		se.Message = err.Error()
	}

	body, marshalErr := json.Marshal(se)
	if marshalErr != nil {
		body = []byte(`{"kind":"internal","message":"failed to marshal error"}`)
	}
	return MCPToolResult{
		Content: []MCPContentBlock{{Type: "text", Text: string(body)}},
		IsError: true,
	}
}

// ToolOKResult constructs an MCP tool result for a successful call. value
// is marshaled as the text content; elapsedMs and cacheStatus are carried
// in Metadata per §7 ("successful responses include an elapsed_ms field
// and a cache tag").
func ToolOKResult(value any, elapsedMs int64, cacheStatus string) (MCPToolResult, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return MCPToolResult{}, err
	}
	return MCPToolResult{
		Content: []MCPContentBlock{{Type: "text", Text: string(body)}},
		Metadata: map[string]any{
			"elapsed_ms": elapsedMs,
			"cache":      cacheStatus,
		},
	}, nil
}

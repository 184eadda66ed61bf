// deps.go — Composable dependency interfaces for MCP tool packages.
// No type in this module implements them and no package embeds them at
// present.
package mcp

import "encoding/json"

// DiagnosticProvider supplies system state snapshots for error messages.
type DiagnosticProvider interface {
	DiagnosticHintString() string
}

// AsyncCommandDispatcher manages synchronous-by-default command execution.
type AsyncCommandDispatcher interface {
	MaybeWaitForCommand(req JSONRPCRequest, correlationID string, args json.RawMessage, queuedSummary string) JSONRPCResponse
}

// server.go — the MCP tool channel (§6): a line-delimited JSON-RPC 2.0
// loop over stdio (or optionally a TCP listener, per MCP_PORT) that
// serves initialize, tools/list, tools/call, and resources/read against
// a dispatcher.Dispatcher.
//
// Adapted from the teacher's cmd/gasoline-cmd stdio read loop and request
// routing switch, generalized from the teacher's fixed tool set to one
// driven by dispatcher.ToolSchemas and carrying this system's §7 error
// envelope instead of the teacher's.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// ResourceProvider supplies the read-only connection-health and
// budget-compliance snapshots exposed under resources/read (§12).
type ResourceProvider interface {
	ConnectionHealthJSON() ([]byte, error)
	BudgetComplianceJSON() ([]byte, error)
}

// ToolDispatcher is the minimal surface server.go calls against
// dispatcher.Dispatcher, expressed with dispatcher's own types to avoid
// an import cycle while staying faithful to its real method signature.
type ToolDispatcher interface {
	Call(ctx context.Context, name model.ToolName, rawArgs json.RawMessage, deadlineOverride time.Duration) model.ToolResult
}

// Server serves the MCP tool channel against a dispatcher and a schema
// catalog, one line-delimited JSON-RPC message at a time.
type Server struct {
	dispatcher  ToolDispatcher
	schemas     map[model.ToolName]map[string]any
	toolOrder   []model.ToolName
	resources   ResourceProvider
	logger      zerolog.Logger
	serverName  string
	serverVersion string

	writeMu sync.Mutex
}

// NewServer constructs a Server. schemas is typically
// dispatcher.ToolSchemas()'s result.
func NewServer(disp ToolDispatcher, schemas map[model.ToolName]map[string]any, resources ResourceProvider, logger zerolog.Logger) *Server {
	order := make([]model.ToolName, 0, len(schemas))
	for name := range schemas {
		order = append(order, name)
	}
	return &Server{
		dispatcher:    disp,
		schemas:       schemas,
		toolOrder:     order,
		resources:     resources,
		logger:        logger,
		serverName:    "bevy-debugger-mcp",
		serverVersion: "0.1.0",
	}
}

// ServeStdio runs the JSON-RPC loop over r/w until r is exhausted, ctx is
// cancelled, or a fatal write error occurs. Each message may be a bare
// JSON line or an MCP Content-Length framed block; readFramedMessage
// accepts either on the same stream.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReaderSize(r, 64*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line, err := readFramedMessage(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if len(line) == 0 {
			continue
		}
		resp := s.handleLine(ctx, line)
		if resp == nil {
			continue // notification: no response per JSON-RPC 2.0
		}
		if err := s.writeResponse(w, *resp); err != nil {
			return err
		}
	}
}

// ServeTCP accepts a single connection on ln and serves it as a
// line-delimited JSON-RPC stream, per §6's optional MCP_PORT transport.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()
	return s.ServeStdio(ctx, conn, conn)
}

func (s *Server) writeResponse(w io.Writer, resp JSONRPCResponse) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	body = append(body, '\n')
	_, err = w.Write(body)
	return err
}

func (s *Server) handleLine(ctx context.Context, line []byte) *JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		resp := JSONRPCResponse{JSONRPC: "2.0", Error: &JSONRPCError{Code: -32700, Message: "parse error: " + err.Error()}}
		return &resp
	}
	if req.HasInvalidID() {
		resp := JSONRPCResponse{JSONRPC: "2.0", Error: &JSONRPCError{Code: -32600, Message: "invalid request id"}}
		return &resp
	}
	if !req.HasID() {
		s.handleNotification(req)
		return nil
	}

	result, rpcErr := s.dispatch(ctx, req)
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
		return &resp
	}
	resp.Result = result
	return &resp
}

func (s *Server) handleNotification(req JSONRPCRequest) {
	s.logger.Debug().Str("method", req.Method).Msg("received notification")
}

func (s *Server) dispatch(ctx context.Context, req JSONRPCRequest) (json.RawMessage, *JSONRPCError) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize()
	case "tools/list":
		return s.handleToolsList()
	case "tools/call":
		return s.handleToolsCall(ctx, req.Params)
	case "resources/list":
		return s.handleResourcesList()
	case "resources/read":
		return s.handleResourcesRead(req.Params)
	default:
		return nil, &JSONRPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

func (s *Server) handleInitialize() (json.RawMessage, *JSONRPCError) {
	result := MCPInitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      MCPServerInfo{Name: s.serverName, Version: s.serverVersion},
		Capabilities:    MCPCapabilities{Tools: MCPToolsCapability{}, Resources: MCPResourcesCapability{}},
	}
	return marshalOrErr(result)
}

var toolDescriptions = map[model.ToolName]string{
	model.ToolObserve:       "Inspect live entities, components, or resources in the running game, optionally as a diff against the last observation of the same query.",
	model.ToolExperiment:    "Apply a mutation to the game, sample metrics over a duration, and report the before/after effect.",
	model.ToolStressTest:    "Ramp load against the game until a configured safety limit trips, reporting the breaking point.",
	model.ToolDetectAnomaly: "Run a sample/baseline/score/alert pipeline over a live game metric.",
	model.ToolHypothesis:    "Run an A/B or parameter-sweep experiment workflow and evaluate a hypothesis against the collected evidence.",
	model.ToolReplay:        "Record, play back, seek, checkpoint, branch, and compare recorded debugging sessions.",
}

func (s *Server) handleToolsList() (json.RawMessage, *JSONRPCError) {
	tools := make([]MCPTool, 0, len(s.schemas))
	for _, name := range s.toolOrder {
		tools = append(tools, MCPTool{
			Name:        string(name),
			Description: toolDescriptions[name],
			InputSchema: s.schemas[name],
		})
	}
	return marshalOrErr(MCPToolsListResult{Tools: tools})
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, raw json.RawMessage) (json.RawMessage, *JSONRPCError) {
	var p toolCallParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &JSONRPCError{Code: -32602, Message: "invalid params: " + err.Error()}
	}
	if _, ok := s.schemas[model.ToolName(p.Name)]; !ok {
		result := ToolErrorResult(debugerr.New(debugerr.Unsupported, fmt.Sprintf("unknown tool %q", p.Name)))
		return marshalOrErr(result)
	}

	deadline := toolCallDeadline(model.ToolName(p.Name), p.Arguments)
	toolResult := s.dispatcher.Call(ctx, model.ToolName(p.Name), p.Arguments, deadline)
	return marshalToolResult(toolResult)
}

func marshalToolResult(tr model.ToolResult) (json.RawMessage, *JSONRPCError) {
	if tr.Outcome == model.OutcomeError {
		err := debugerr.New(debugerr.Kind(tr.ErrKind), tr.ErrMessage, tr.Suggestions...)
		result := ToolErrorResult(err)
		return marshalOrErr(result)
	}
	result, err := ToolOKResult(tr.Value, tr.Elapsed.Milliseconds(), string(tr.Cache))
	if err != nil {
		return nil, &JSONRPCError{Code: -32603, Message: "failed to marshal tool result: " + err.Error()}
	}
	return marshalOrErr(result)
}

const (
	resourceConnectionHealth = "debugger://connection-health"
	resourceBudgetCompliance = "debugger://budget-compliance"
)

func (s *Server) handleResourcesList() (json.RawMessage, *JSONRPCError) {
	return marshalOrErr(MCPResourcesListResult{Resources: []MCPResource{
		{URI: resourceConnectionHealth, Name: "Connection health", MimeType: "application/json"},
		{URI: resourceBudgetCompliance, Name: "Budget compliance", MimeType: "application/json"},
	}})
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourcesRead(raw json.RawMessage) (json.RawMessage, *JSONRPCError) {
	var p resourceReadParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &JSONRPCError{Code: -32602, Message: "invalid params: " + err.Error()}
	}
	if s.resources == nil {
		return nil, &JSONRPCError{Code: -32601, Message: "resources are not available"}
	}

	var body []byte
	var err error
	switch p.URI {
	case resourceConnectionHealth:
		body, err = s.resources.ConnectionHealthJSON()
	case resourceBudgetCompliance:
		body, err = s.resources.BudgetComplianceJSON()
	default:
		return nil, &JSONRPCError{Code: -32602, Message: fmt.Sprintf("unknown resource uri %q", p.URI)}
	}
	if err != nil {
		return nil, &JSONRPCError{Code: -32603, Message: err.Error()}
	}
	return marshalOrErr(MCPResourcesReadResult{Contents: []MCPResourceContent{
		{URI: p.URI, MimeType: "application/json", Text: string(body)},
	}})
}

func marshalOrErr(v any) (json.RawMessage, *JSONRPCError) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, &JSONRPCError{Code: -32603, Message: "failed to marshal result: " + err.Error()}
	}
	return body, nil
}

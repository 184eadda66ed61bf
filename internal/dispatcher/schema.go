// schema.go — per-tool JSON Schema argument contracts (§6), compiled once
// at startup with santhosh-tekuri/jsonschema/v5. Adapted from the teacher's
// internal/schema package, which validated MCP tool arguments the same
// way: a static schema string per tool name, compiled into an in-memory
// resource so no file I/O is needed at request time.
package dispatcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// toolSchemas holds the raw JSON Schema text for each tool's arguments,
// transcribed from §6.
var toolSchemas = map[model.ToolName]string{
	model.ToolObserve: `{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"diff": {"type": "boolean"},
			"reflection": {"type": "boolean"}
		},
		"required": ["query"]
	}`,
	model.ToolExperiment: `{
		"type": "object",
		"properties": {
			"experiment_type": {"type": "string"},
			"params": {"type": "object"},
			"duration_seconds": {"type": "integer", "minimum": 0},
			"revert": {"type": "boolean"}
		},
		"required": ["experiment_type", "params"]
	}`,
	model.ToolStressTest: `{
		"type": "object",
		"properties": {
			"test_type": {"type": "string", "enum": ["entity_spawn", "system_overload", "draw_call_flood", "memory_pressure", "network_saturation"]},
			"intensity": {"type": "number"},
			"duration": {"type": "integer", "minimum": 0},
			"incremental": {"type": "boolean"},
			"safety_limits": {
				"type": "object",
				"properties": {
					"min_fps": {"type": "integer"},
					"max_memory_percent": {"type": "integer"},
					"max_cpu_percent": {"type": "integer"}
				}
			}
		},
		"required": ["test_type"]
	}`,
	model.ToolDetectAnomaly: `{
		"type": "object",
		"properties": {
			"detection_type": {"type": "string"},
			"sensitivity": {"type": "number"},
			"window_size": {"type": "integer", "minimum": 1},
			"baseline_period": {"type": "integer", "minimum": 1},
			"params": {"type": "object"}
		},
		"required": ["detection_type"]
	}`,
	model.ToolReplay: `{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["record", "stop", "replay", "step", "seek", "checkpoint", "branch", "compare", "analyze"]},
			"params": {"type": "object"}
		},
		"required": ["action"]
	}`,
	model.ToolHypothesis: `{
		"type": "object",
		"properties": {
			"hypothesis": {"type": "string"},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1},
			"test_duration": {"type": "integer", "minimum": 0},
			"sample_size": {"type": "integer", "minimum": 0}
		},
		"required": ["hypothesis"]
	}`,
}

// ToolSchemas returns every tool's argument schema as a decoded JSON
// object, suitable for an MCP `tools/list` response's inputSchema field.
func ToolSchemas() (map[model.ToolName]map[string]any, error) {
	out := make(map[model.ToolName]map[string]any, len(toolSchemas))
	for tool, raw := range toolSchemas {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("decode schema for %s: %w", tool, err)
		}
		out[tool] = decoded
	}
	return out, nil
}

// compileSchemas compiles every tool's schema text into a jsonschema.Schema,
// keyed by tool name. Called once from New.
func compileSchemas() (map[model.ToolName]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	out := make(map[model.ToolName]*jsonschema.Schema, len(toolSchemas))
	for tool, raw := range toolSchemas {
		resource := fmt.Sprintf("mem://%s.json", tool)
		if err := compiler.AddResource(resource, strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema resource for %s: %w", tool, err)
		}
		schema, err := compiler.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", tool, err)
		}
		out[tool] = schema
	}
	return out, nil
}

// stress.go — the stress_test handler (§4.D.3): a monotonic load ramp
// with a circuit breaker over the configured safety limits, guaranteed
// cleanup on every exit path, and breaking-point reporting.
package handlers

import (
	"context"
	"encoding/json"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// SafetyLimits bounds a stress test's load ramp (§6).
type SafetyLimits struct {
	MinFPS           int `json:"min_fps"`
	MaxMemoryPercent int `json:"max_memory_percent"`
	MaxCPUPercent    int `json:"max_cpu_percent"`
}

// StressArgs is stress_test's argument contract (§6).
type StressArgs struct {
	TestType     string       `json:"test_type"`
	Intensity    float64      `json:"intensity"`
	Duration     int          `json:"duration"`
	Incremental  bool         `json:"incremental"`
	SafetyLimits SafetyLimits `json:"safety_limits"`
}

// StepMetrics is one ramp step's recorded load measurement (§4.D.3).
type StepMetrics struct {
	Step          int     `json:"step"`
	Load          float64 `json:"load"`
	FrameTimeMS   float64 `json:"frame_time_ms"`
	FPS           float64 `json:"fps"`
	MemoryPercent float64 `json:"memory_percent"`
	CPUPercent    float64 `json:"cpu_percent"`
	EntityCount   int     `json:"entity_count"`
	DrawCalls     float64 `json:"draw_calls"`
}

// StressResult is stress_test's result shape (§4.D.3).
type StressResult struct {
	Steps         []StepMetrics `json:"steps"`
	BreakingPoint *int          `json:"breaking_point,omitempty"`
	AbortedBy     string        `json:"aborted_by,omitempty"`
}

// StressHandler implements dispatcher.Handler for the stress_test tool.
type StressHandler struct {
	game *GameClient
}

// NewStressHandler constructs a StressHandler.
func NewStressHandler(game *GameClient) *StressHandler {
	return &StressHandler{game: game}
}

const defaultStressSteps = 10

// Execute implements dispatcher.Handler.
func (h *StressHandler) Execute(ctx context.Context, raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var args StressArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid stress_test arguments")
	}
	switch args.TestType {
	case "entity_spawn", "system_overload", "draw_call_flood", "memory_pressure", "network_saturation":
	default:
		return nil, nil, debugerr.New(debugerr.InvalidArgument, "unknown test_type").WithContext("test_type", args.TestType)
	}
	if args.Intensity <= 0 {
		args.Intensity = 1
	}

	steps := defaultStressSteps
	if args.Duration > 0 {
		steps = args.Duration
	}

	var spawned []model.EntityRef
	baseline, err := h.game.ListEntities(ctx)
	if err != nil {
		return nil, nil, err
	}
	baselineCount := len(baseline)

	// Cleanup runs on every exit path: normal completion, circuit-breaker
	// abort, or handler cancellation.
	defer func() {
		for i := len(spawned) - 1; i >= 0; i-- {
			_ = h.game.Despawn(context.Background(), spawned[i])
		}
	}()

	result := StressResult{Steps: make([]StepMetrics, 0, steps)}

	for step := 1; step <= steps; step++ {
		select {
		case <-ctx.Done():
			result.AbortedBy = "cancelled"
			bp := step - 2
			result.BreakingPoint = &bp
			return Output{Data: result, Status: model.CacheBypass}, nil, ctx.Err()
		default:
		}

		load := args.Intensity * float64(step)
		if args.TestType == "entity_spawn" {
			entity, err := h.game.Spawn(ctx, map[string]model.ComponentValue{
				"StressMarker": {"test_type": args.TestType, "step": step},
			})
			if err != nil {
				return nil, nil, err
			}
			spawned = append(spawned, entity)
		}

		metrics, err := h.sampleStep(ctx, step, load, baselineCount+len(spawned))
		if err != nil {
			return nil, nil, err
		}
		result.Steps = append(result.Steps, metrics)

		if violated, limit := h.checkSafetyLimits(metrics, args.SafetyLimits); violated {
			bp := step - 1
			result.BreakingPoint = &bp
			result.AbortedBy = limit
			return Output{Data: result, Status: model.CacheBypass}, map[model.CacheTag]struct{}{model.TagEntities: {}}, nil
		}

		if !args.Incremental {
			break
		}
	}

	return Output{Data: result, Status: model.CacheBypass}, map[model.CacheTag]struct{}{model.TagEntities: {}}, nil
}

// sampleStep reads the game's diagnostics resource for one ramp step. A
// missing diagnostics resource yields zero-valued metrics rather than
// failing the test: the exact instrumentation surface is game-specific
// and not part of this core's contract.
func (h *StressHandler) sampleStep(ctx context.Context, step int, load float64, entityCount int) (StepMetrics, error) {
	metrics := StepMetrics{Step: step, Load: load, EntityCount: entityCount}
	value, err := h.game.GetResource(ctx, "diagnostics")
	if err != nil {
		return metrics, nil
	}
	metrics.FPS = asFloatOr(value["fps"], 0)
	metrics.FrameTimeMS = asFloatOr(value["frame_time_ms"], 0)
	metrics.MemoryPercent = asFloatOr(value["memory_percent"], 0)
	metrics.CPUPercent = asFloatOr(value["cpu_percent"], 0)
	metrics.DrawCalls = asFloatOr(value["draw_calls"], 0)
	return metrics, nil
}

func asFloatOr(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

// checkSafetyLimits reports whether a step's metrics breached any
// configured safety limit, and which one tripped first.
func (h *StressHandler) checkSafetyLimits(m StepMetrics, limits SafetyLimits) (bool, string) {
	if limits.MinFPS > 0 && m.FPS > 0 && m.FPS < float64(limits.MinFPS) {
		return true, "min_fps"
	}
	if limits.MaxMemoryPercent > 0 && m.MemoryPercent > float64(limits.MaxMemoryPercent) {
		return true, "max_memory_percent"
	}
	if limits.MaxCPUPercent > 0 && m.CPUPercent > float64(limits.MaxCPUPercent) {
		return true, "max_cpu_percent"
	}
	return false, ""
}

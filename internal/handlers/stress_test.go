package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/gameconn"
)

func TestStressHandler_UnknownTestTypeRejected(t *testing.T) {
	game := newTestGameClient(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		t.Fatalf("should not reach the game")
		return nil, nil
	})
	h := NewStressHandler(game)
	_, _, err := h.Execute(context.Background(), mustMarshalJSON(t, StressArgs{TestType: "not_a_real_type"}))
	assert.Error(t, err)
}

func TestStressHandler_TripsMinFPSAndCleansUpSpawnedEntities(t *testing.T) {
	var spawnCount, despawnCount int
	fps := 100.0
	game := newTestGameClient(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		switch method {
		case gameconn.MethodListEntities:
			return mustMarshalJSON(t, []map[string]any{}), nil
		case gameconn.MethodSpawn:
			spawnCount++
			return mustMarshalJSON(t, map[string]any{"entity": spawnCount}), nil
		case gameconn.MethodDespawn:
			despawnCount++
			return mustMarshalJSON(t, map[string]any{}), nil
		case gameconn.MethodGetResource:
			fps -= 10
			return mustMarshalJSON(t, map[string]any{"fps": fps}), nil
		}
		t.Fatalf("unexpected method %q", method)
		return nil, nil
	})

	h := NewStressHandler(game)
	args := StressArgs{
		TestType:    "entity_spawn",
		Intensity:   1,
		Incremental: true,
		SafetyLimits: SafetyLimits{MinFPS: 50},
	}
	out, _, err := h.Execute(context.Background(), mustMarshalJSON(t, args))
	require.NoError(t, err)

	result := out.(Output).Data.(StressResult)
	require.NotNil(t, result.BreakingPoint)
	assert.Equal(t, "min_fps", result.AbortedBy)
	// fps drops by 10 each step starting at 90; trips below 50 on step 5 (fps=50, not <50) -> step 6 (fps=40).
	assert.Equal(t, 5, *result.BreakingPoint)
	assert.Equal(t, spawnCount, despawnCount, "every spawned entity must be despawned during cleanup")
}

func TestStressHandler_NonIncrementalRunsOnlyOneStep(t *testing.T) {
	game := newTestGameClient(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		switch method {
		case gameconn.MethodListEntities:
			return mustMarshalJSON(t, []map[string]any{}), nil
		case gameconn.MethodGetResource:
			return mustMarshalJSON(t, map[string]any{"fps": 144.0}), nil
		}
		t.Fatalf("unexpected method %q", method)
		return nil, nil
	})

	h := NewStressHandler(game)
	args := StressArgs{TestType: "system_overload", Intensity: 2, Incremental: false}
	out, _, err := h.Execute(context.Background(), mustMarshalJSON(t, args))
	require.NoError(t, err)

	result := out.(Output).Data.(StressResult)
	assert.Len(t, result.Steps, 1)
	assert.Nil(t, result.BreakingPoint)
}

func TestAsFloatOr(t *testing.T) {
	assert.Equal(t, 1.5, asFloatOr(1.5, 0))
	assert.Equal(t, float64(3), asFloatOr(3, 0))
	assert.Equal(t, float64(0), asFloatOr("not a number", 0))
}

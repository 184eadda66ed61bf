package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/gameconn"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

func TestExperimentHandler_SpawnMutationAndRevert(t *testing.T) {
	var spawned, despawned bool
	game := newTestGameClient(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		switch method {
		case gameconn.MethodListEntities:
			return mustMarshalJSON(t, []map[string]any{}), nil
		case gameconn.MethodSpawn:
			spawned = true
			return mustMarshalJSON(t, map[string]any{"entity": 7}), nil
		case gameconn.MethodDespawn:
			despawned = true
			return mustMarshalJSON(t, map[string]any{}), nil
		}
		t.Fatalf("unexpected method %q", method)
		return nil, nil
	})

	h := NewExperimentHandler(game)
	args := ExperimentArgs{
		ExperimentType: "entity_spawn",
		Params:         mustMarshalJSON(t, experimentParams{Mutations: []Mutation{{Op: "spawn", Components: map[string]model.ComponentValue{"Health": {"hp": 10.0}}}}}),
		Revert:         true,
	}
	out, tags, err := h.Execute(context.Background(), mustMarshalJSON(t, args))
	require.NoError(t, err)
	assert.True(t, spawned)
	assert.True(t, despawned)

	result := out.(Output).Data.(ExperimentResult)
	assert.True(t, result.Reverted)
	_, hasTag := tags[model.ComponentTag("Health")]
	assert.True(t, hasTag)
}

func TestExperimentHandler_RequiresExperimentType(t *testing.T) {
	game := newTestGameClient(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		t.Fatalf("should not reach the game")
		return nil, nil
	})
	h := NewExperimentHandler(game)
	_, _, err := h.Execute(context.Background(), mustMarshalJSON(t, ExperimentArgs{}))
	assert.Error(t, err)
}

func TestExperimentHandler_MutationFailureRevertsAppliedSoFar(t *testing.T) {
	var despawnedEntities []float64
	game := newTestGameClient(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		switch method {
		case gameconn.MethodListEntities:
			return mustMarshalJSON(t, []map[string]any{}), nil
		case gameconn.MethodSpawn:
			return mustMarshalJSON(t, map[string]any{"entity": 3}), nil
		case gameconn.MethodDespawn:
			var p struct {
				Entity float64 `json:"entity"`
			}
			_ = json.Unmarshal(params, &p)
			despawnedEntities = append(despawnedEntities, p.Entity)
			return mustMarshalJSON(t, map[string]any{}), nil
		}
		t.Fatalf("unexpected method %q", method)
		return nil, nil
	})

	h := NewExperimentHandler(game)
	args := ExperimentArgs{
		ExperimentType: "entity_spawn",
		Params: mustMarshalJSON(t, experimentParams{Mutations: []Mutation{
			{Op: "spawn"},
			{Op: "not_a_real_op"},
		}}),
	}
	_, _, err := h.Execute(context.Background(), mustMarshalJSON(t, args))
	require.Error(t, err)
	assert.Equal(t, []float64{3}, despawnedEntities)
}

func TestExperimentHandler_SampleMetrics_ZeroDurationReturnsNil(t *testing.T) {
	h := &ExperimentHandler{}
	samples := h.sampleMetrics(context.Background(), "diagnostics", 10, 0)
	assert.Nil(t, samples)
}

func TestExperimentHandler_SampleMetrics_CollectsAtLeastOneSample(t *testing.T) {
	game := newTestGameClient(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		require.Equal(t, gameconn.MethodGetResource, method)
		return mustMarshalJSON(t, model.ComponentValue{"fps": 60.0}), nil
	})
	h := NewExperimentHandler(game)
	samples := h.sampleMetrics(context.Background(), "diagnostics", 100, 50*time.Millisecond)
	assert.NotEmpty(t, samples)
}

package replay

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

func snapshot(frame int64, entities ...model.EntitySnapshot) model.WorldSnapshot {
	return model.NewWorldSnapshot(frame, time.Unix(frame, 0), entities)
}

func entity(id int64, components map[string]model.ComponentValue) model.EntitySnapshot {
	return model.EntitySnapshot{Entity: model.EntityRef(id), Components: components}
}

func TestReconstruct_KeyframeOnly(t *testing.T) {
	world := snapshot(0, entity(1, map[string]model.ComponentValue{"Health": {"hp": 100.0}}))
	frames := []Frame{{Index: 0, Keyframe: true, Snapshot: &world}}

	got, err := Reconstruct(frames, 0)
	require.NoError(t, err)
	assert.Equal(t, world, got)
}

func TestReconstruct_AppliesDeltasAfterKeyframe(t *testing.T) {
	world := snapshot(0, entity(1, map[string]model.ComponentValue{"Health": {"hp": 100.0}}))
	frames := []Frame{
		{Index: 0, Keyframe: true, Snapshot: &world},
		{Index: 1, Delta: Delta{Changed: []ComponentChange{
			{Entity: 1, Component: "Health", Before: model.ComponentValue{"hp": 100.0}, After: model.ComponentValue{"hp": 90.0}},
		}}},
		{Index: 2, Delta: Delta{Added: []model.EntitySnapshot{entity(2, map[string]model.ComponentValue{"Health": {"hp": 50.0}})}}},
	}

	got, err := Reconstruct(frames, 2)
	require.NoError(t, err)
	require.Len(t, got.Entities, 2)

	e1, ok := got.EntityByRef(1)
	require.True(t, ok)
	assert.Equal(t, 90.0, e1.Components["Health"]["hp"])

	e2, ok := got.EntityByRef(2)
	require.True(t, ok)
	assert.Equal(t, 50.0, e2.Components["Health"]["hp"])
}

func TestReconstruct_RemovalDelta(t *testing.T) {
	world := snapshot(0, entity(1, nil), entity(2, nil))
	frames := []Frame{
		{Index: 0, Keyframe: true, Snapshot: &world},
		{Index: 1, Delta: Delta{Removed: []model.EntityRef{2}}},
	}

	got, err := Reconstruct(frames, 1)
	require.NoError(t, err)
	require.Len(t, got.Entities, 1)
	_, ok := got.EntityByRef(2)
	assert.False(t, ok)
}

func TestReconstruct_NoKeyframeBeforeTargetReturnsNotFound(t *testing.T) {
	frames := []Frame{
		{Index: 5, Delta: Delta{}},
	}
	_, err := Reconstruct(frames, 5)
	assert.Error(t, err)
}

func TestReconstruct_IsDeterministic(t *testing.T) {
	world := snapshot(0, entity(1, map[string]model.ComponentValue{"Pos": {"x": 1.0}}))
	frames := []Frame{
		{Index: 0, Keyframe: true, Snapshot: &world},
		{Index: 1, Delta: Delta{Changed: []ComponentChange{{Entity: 1, Component: "Pos", After: model.ComponentValue{"x": 2.0}}}}},
	}

	a, err := Reconstruct(frames, 1)
	require.NoError(t, err)
	b, err := Reconstruct(frames, 1)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("repeated reconstruction diverged (-first +second):\n%s", diff)
	}
}

func TestReconstruct_MutatingResultDoesNotAffectKeyframe(t *testing.T) {
	world := snapshot(0, entity(1, map[string]model.ComponentValue{"Pos": {"x": 1.0}}))
	frames := []Frame{{Index: 0, Keyframe: true, Snapshot: &world}}

	got, err := Reconstruct(frames, 0)
	require.NoError(t, err)
	got.Entities[0].Components["Pos"]["x"] = 999.0

	again, err := Reconstruct(frames, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Entities[0].Components["Pos"]["x"])
}

func TestDiffWorlds_DetectsAddedRemovedChanged(t *testing.T) {
	prev := snapshot(0,
		entity(1, map[string]model.ComponentValue{"Health": {"hp": 100.0}}),
		entity(2, map[string]model.ComponentValue{"Health": {"hp": 50.0}}),
	)
	next := snapshot(1,
		entity(1, map[string]model.ComponentValue{"Health": {"hp": 80.0}}),
		entity(3, map[string]model.ComponentValue{"Health": {"hp": 10.0}}),
	)

	d := DiffWorlds(prev, next)
	require.Len(t, d.Added, 1)
	assert.Equal(t, model.EntityRef(3), d.Added[0].Entity)
	require.Len(t, d.Removed, 1)
	assert.Equal(t, model.EntityRef(2), d.Removed[0])
	require.Len(t, d.Changed, 1)
	assert.Equal(t, "Health", d.Changed[0].Component)
}

func TestDiffWorlds_NoChangesIsEmptyDelta(t *testing.T) {
	world := snapshot(0, entity(1, map[string]model.ComponentValue{"Health": {"hp": 100.0}}))
	d := DiffWorlds(world, world)
	assert.True(t, d.IsEmpty())
}

package replay

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

func TestRecorder_CapturesKeyframeEveryInterval(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.Create("run-1"))

	rec := NewRecording("run-1", Header{Quality: QualityFull})
	src := make(chan SourceFrame, 8)
	for i := 0; i < 4; i++ {
		src <- SourceFrame{World: snapshot(int64(i), entity(1, map[string]model.ComponentValue{"Health": {"hp": float64(100 - i)}}))}
	}
	close(src)

	r := NewRecorder(RecorderConfig{KeyframeInterval: 2}, storage, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx, rec, src)

	frames := rec.Frames()
	require.Len(t, frames, 4)
	assert.True(t, frames[0].Keyframe)
	assert.False(t, frames[1].Keyframe)
	assert.True(t, frames[2].Keyframe)
	assert.False(t, frames[3].Keyframe)
	assert.False(t, rec.IsRecording())
}

func TestRecorder_ConditionalCheckpointFiresOnce(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.Create("run-2"))

	rec := NewRecording("run-2", Header{Quality: QualityFull})
	rec.AddConditionalCheckpoint("low-health", func(w model.WorldSnapshot) bool {
		e, ok := w.EntityByRef(1)
		if !ok {
			return false
		}
		hp, _ := e.Components["Health"]["hp"].(float64)
		return hp < 50
	})

	src := make(chan SourceFrame, 8)
	for i := 0; i < 3; i++ {
		src <- SourceFrame{World: snapshot(int64(i), entity(1, map[string]model.ComponentValue{"Health": {"hp": float64(60 - i*20)}}))}
	}
	close(src)

	r := NewRecorder(RecorderConfig{KeyframeInterval: 60}, storage, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx, rec, src)

	checkpoints := rec.Checkpoints()
	require.Len(t, checkpoints, 1)
	assert.Equal(t, "low-health", checkpoints[0].Name)
	assert.True(t, checkpoints[0].Automatic)
}

func TestRecorder_SelectiveFilterDropsExcludedComponents(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.Create("run-3"))

	header := Header{Quality: QualityFull, SelectiveFilter: &Filter{Components: []string{"Health"}}}
	rec := NewRecording("run-3", header)

	src := make(chan SourceFrame, 2)
	src <- SourceFrame{World: snapshot(0, entity(1, map[string]model.ComponentValue{
		"Health":    {"hp": 100.0},
		"Transform": {"x": 1.0},
	}))}
	close(src)

	r := NewRecorder(RecorderConfig{KeyframeInterval: 60}, storage, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx, rec, src)

	world, err := rec.Reconstruct(0)
	require.NoError(t, err)
	e, ok := world.EntityByRef(1)
	require.True(t, ok)
	_, hasHealth := e.Components["Health"]
	_, hasTransform := e.Components["Transform"]
	assert.True(t, hasHealth)
	assert.False(t, hasTransform)
}

func TestRecorder_CoalescesUnderBackpressure(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.Create("run-4"))
	rec := NewRecording("run-4", Header{Quality: QualityFull})

	src := make(chan SourceFrame, 16)
	src <- SourceFrame{World: snapshot(0, entity(1, map[string]model.ComponentValue{"Health": {"hp": 100.0}}))}
	for i := 1; i <= 10; i++ {
		src <- SourceFrame{World: snapshot(int64(i), entity(1, map[string]model.ComponentValue{"Health": {"hp": float64(100 - i)}}))}
	}
	close(src)

	r := NewRecorder(RecorderConfig{KeyframeInterval: 60, HighWaterMark: 2, CoalesceOnBackpressure: true}, storage, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx, rec, src)

	frames := rec.Frames()
	assert.Less(t, len(frames), 11, "coalescing should produce fewer committed frames than source samples")

	final, err := rec.Reconstruct(frames[len(frames)-1].Index)
	require.NoError(t, err)
	e, ok := final.EntityByRef(1)
	require.True(t, ok)
	assert.Equal(t, 90.0, e.Components["Health"]["hp"])
}

func TestRecorder_DowngradesQualityUnderBackpressureWithoutCoalesce(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.Create("run-5"))
	rec := NewRecording("run-5", Header{Quality: QualityFull})

	src := make(chan SourceFrame, 16)
	for i := 0; i <= 5; i++ {
		src <- SourceFrame{World: snapshot(int64(i), entity(1, map[string]model.ComponentValue{"Health": {"hp": float64(100 - i)}}))}
	}
	close(src)

	r := NewRecorder(RecorderConfig{KeyframeInterval: 60, HighWaterMark: 1, CoalesceOnBackpressure: false}, storage, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx, rec, src)

	assert.Equal(t, QualityMinimal, rec.Header().Quality)
}

func TestStartRecording_StopsOnceSourceCloses(t *testing.T) {
	storage := newTestStorage(t)
	r := NewRecorder(RecorderConfig{KeyframeInterval: 60}, storage, zerolog.Nop())

	src := make(chan SourceFrame, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	rec, err := r.StartRecording(ctx, "run-6", Header{Quality: QualityFull}, src)
	require.NoError(t, err)
	src <- SourceFrame{World: snapshot(0, entity(1, nil))}
	close(src)

	require.Eventually(t, func() bool { return !rec.IsRecording() }, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.Frames(), 1)
}

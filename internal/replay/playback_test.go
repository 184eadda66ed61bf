package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

func threeFrameRecording() *Recording {
	rec := NewRecording("pb-1", Header{Quality: QualityFull})
	world0 := snapshot(0, entity(1, map[string]model.ComponentValue{"Health": {"hp": 100.0}}))
	rec.AppendFrame(Frame{Index: 0, Keyframe: true, Snapshot: &world0}, world0)

	world1 := snapshot(1, entity(1, map[string]model.ComponentValue{"Health": {"hp": 90.0}}))
	rec.AppendFrame(Frame{Index: 1, Delta: Delta{Changed: []ComponentChange{
		{Entity: 1, Component: "Health", Before: model.ComponentValue{"hp": 100.0}, After: model.ComponentValue{"hp": 90.0}},
	}}}, world1)

	world2 := snapshot(2, entity(1, map[string]model.ComponentValue{"Health": {"hp": 80.0}}))
	rec.AppendFrame(Frame{Index: 2, Delta: Delta{Changed: []ComponentChange{
		{Entity: 1, Component: "Health", Before: model.ComponentValue{"hp": 90.0}, After: model.ComponentValue{"hp": 80.0}},
	}}}, world2)

	return rec
}

func TestPlayback_ReplayOnlyValidFromIdlePausedStopped(t *testing.T) {
	rec := threeFrameRecording()
	pb := NewPlayback(rec, DefaultSpeedBounds())

	require.NoError(t, pb.Replay(0))
	assert.Equal(t, StatePlaying, pb.State())

	err := pb.Replay(0)
	assert.Error(t, err, "replay is not valid while already playing")
}

func TestPlayback_StepOnlyValidWhilePaused(t *testing.T) {
	rec := threeFrameRecording()
	pb := NewPlayback(rec, DefaultSpeedBounds())

	_, _, err := pb.Step(1, "forward")
	assert.Error(t, err)

	require.NoError(t, pb.Replay(0))
	pb.Pause()

	world, frame, err := pb.Step(1, "forward")
	require.NoError(t, err)
	assert.Equal(t, int64(1), frame)
	e, _ := world.EntityByRef(1)
	assert.Equal(t, 90.0, e.Components["Health"]["hp"])
	assert.Equal(t, StatePaused, pb.State())
}

func TestPlayback_StepZeroIsNoOp(t *testing.T) {
	rec := threeFrameRecording()
	pb := NewPlayback(rec, DefaultSpeedBounds())
	require.NoError(t, pb.Replay(1))
	pb.Pause()

	world, frame, err := pb.Step(0, "forward")
	require.NoError(t, err)
	assert.Equal(t, int64(1), frame)
	e, _ := world.EntityByRef(1)
	assert.Equal(t, 90.0, e.Components["Health"]["hp"])
}

func TestPlayback_StepBackward(t *testing.T) {
	rec := threeFrameRecording()
	pb := NewPlayback(rec, DefaultSpeedBounds())
	require.NoError(t, pb.Replay(2))
	pb.Pause()

	world, frame, err := pb.Step(1, "backward")
	require.NoError(t, err)
	assert.Equal(t, int64(1), frame)
	e, _ := world.EntityByRef(1)
	assert.Equal(t, 90.0, e.Components["Health"]["hp"])
}

func TestPlayback_StepPastBoundsReturnsErrorAndStaysAtPriorFrame(t *testing.T) {
	rec := threeFrameRecording()
	pb := NewPlayback(rec, DefaultSpeedBounds())
	require.NoError(t, pb.Replay(2))
	pb.Pause()

	_, _, err := pb.Step(5, "forward")
	assert.Error(t, err)
	assert.Equal(t, int64(2), pb.CurrentFrame())
}

func TestPlayback_SeekAbsoluteAndRelative(t *testing.T) {
	rec := threeFrameRecording()
	pb := NewPlayback(rec, DefaultSpeedBounds())
	require.NoError(t, pb.Replay(0))

	_, frame, err := pb.Seek(2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), frame)
	assert.Equal(t, StatePlaying, pb.State(), "seek restores the pre-seek state")

	_, frame, err = pb.Seek(-1, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), frame)
}

func TestPlayback_SeekOutOfRangeRevertsState(t *testing.T) {
	rec := threeFrameRecording()
	pb := NewPlayback(rec, DefaultSpeedBounds())
	require.NoError(t, pb.Replay(0))
	pb.Pause()

	_, _, err := pb.Seek(99, false)
	assert.Error(t, err)
	assert.Equal(t, StatePaused, pb.State())
}

func TestPlayback_SetSpeedRejectsZeroAndOutOfBounds(t *testing.T) {
	pb := NewPlayback(threeFrameRecording(), DefaultSpeedBounds())

	assert.Error(t, pb.SetSpeed(0))
	assert.Error(t, pb.SetSpeed(5.0))
	assert.NoError(t, pb.SetSpeed(1.5))
	assert.Equal(t, 1.5, pb.Speed())
}

func TestPlayback_StopTransitionsToStopped(t *testing.T) {
	pb := NewPlayback(threeFrameRecording(), DefaultSpeedBounds())
	require.NoError(t, pb.Replay(0))
	pb.Stop()
	assert.Equal(t, StateStopped, pb.State())
	require.NoError(t, pb.Replay(0), "replay is valid again from stopped")
}

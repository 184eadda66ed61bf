package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

func TestAlignByFrame_IdenticalRecordingsHaveZeroDivergence(t *testing.T) {
	a := threeFrameRecording()
	b := threeFrameRecording()

	cmp, err := AlignByFrame(a, b, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, cmp.FramesCompared)
	for _, d := range cmp.TopDivergent {
		assert.Zero(t, d.Score)
	}
}

func TestAlignByFrame_DetectsDivergentFrame(t *testing.T) {
	a := threeFrameRecording()
	b := NewRecording("pb-2", Header{Quality: QualityFull})

	world0 := snapshot(0, entity(1, map[string]model.ComponentValue{"Health": {"hp": 100.0}}))
	b.AppendFrame(Frame{Index: 0, Keyframe: true, Snapshot: &world0}, world0)
	world1 := snapshot(1, entity(1, map[string]model.ComponentValue{"Health": {"hp": 10.0}}))
	b.AppendFrame(Frame{Index: 1, Delta: Delta{Changed: []ComponentChange{
		{Entity: 1, Component: "Health", Before: model.ComponentValue{"hp": 100.0}, After: model.ComponentValue{"hp": 10.0}},
	}}}, world1)
	world2 := snapshot(2, entity(1, map[string]model.ComponentValue{"Health": {"hp": 80.0}}))
	b.AppendFrame(Frame{Index: 2, Delta: Delta{Changed: []ComponentChange{
		{Entity: 1, Component: "Health", Before: model.ComponentValue{"hp": 10.0}, After: model.ComponentValue{"hp": 80.0}},
	}}}, world2)

	cmp, err := AlignByFrame(a, b, 1)
	require.NoError(t, err)
	require.Len(t, cmp.TopDivergent, 1)
	assert.Equal(t, int64(1), cmp.TopDivergent[0].FrameIndex)

	require.Len(t, cmp.Metrics, 1)
	assert.Equal(t, "Health", cmp.Metrics[0].Metric)
	assert.InDelta(t, 80.0, cmp.Metrics[0].Mean, 0.001)
}

func TestAlignByCheckpoint_AlignsDifferentFrameOffsets(t *testing.T) {
	a := threeFrameRecording()
	a.AddCheckpoint("mark", 1, "")

	b := threeFrameRecording()
	b.AddCheckpoint("mark", 2, "")

	cmp, err := AlignByCheckpoint(a, b, "mark", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp.FramesCompared)
}

func TestAlignByCheckpoint_UnknownCheckpointReturnsNotFound(t *testing.T) {
	a := threeFrameRecording()
	b := threeFrameRecording()
	_, err := AlignByCheckpoint(a, b, "missing", 0, 5)
	assert.Error(t, err)
}

func TestAlignByFrame_EmptyRecordingReturnsInvalidArgument(t *testing.T) {
	a := NewRecording("empty", Header{})
	b := threeFrameRecording()
	_, err := AlignByFrame(a, b, 5)
	assert.Error(t, err)
}

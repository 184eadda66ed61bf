// compare.go — recording comparison (§4.E "compare two recordings frame
// by frame or checkpoint by checkpoint, producing per-metric statistics
// and the most divergent frames").
package replay

import (
	"math"
	"sort"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// FrameDivergence is one frame's component-level divergence between two
// aligned recordings.
type FrameDivergence struct {
	FrameIndex int64    `json:"frame_index"`
	Score      float64  `json:"score"`
	Changed    []string `json:"changed_components"`
}

// MetricStats is the mean/stddev/percentile summary of the absolute
// numeric field differences of one component across an aligned
// comparison window.
type MetricStats struct {
	Metric  string  `json:"metric"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	Samples int     `json:"samples"`
}

// Comparison is the result of comparing two recordings.
type Comparison struct {
	Metrics          []MetricStats     `json:"metrics"`
	TopDivergent     []FrameDivergence `json:"top_divergent_frames"`
	FramesCompared   int               `json:"frames_compared"`
}

// AlignByFrame compares a and b frame-index by frame-index over
// [0, min(lastA, lastB)], returning per-frame divergence and aggregate
// metric statistics over every numeric scalar field found in both worlds.
func AlignByFrame(a, b *Recording, topN int) (Comparison, error) {
	lastA, lastB := a.LastFrameIndex(), b.LastFrameIndex()
	last := lastA
	if lastB < last {
		last = lastB
	}
	if last < 0 {
		return Comparison{}, debugerr.New(debugerr.InvalidArgument, "cannot compare empty recordings")
	}
	return compareRange(a, b, 0, last, topN)
}

// AlignByCheckpoint compares a and b starting at the named checkpoint in
// each (which may be at different frame indices in either recording) for
// span frames.
func AlignByCheckpoint(a, b *Recording, checkpointName string, span int64, topN int) (Comparison, error) {
	startA, ok := a.CheckpointFrame(checkpointName)
	if !ok {
		return Comparison{}, debugerr.New(debugerr.NotFound, "checkpoint not found in first recording").WithContext("checkpoint", checkpointName)
	}
	startB, ok := b.CheckpointFrame(checkpointName)
	if !ok {
		return Comparison{}, debugerr.New(debugerr.NotFound, "checkpoint not found in second recording").WithContext("checkpoint", checkpointName)
	}

	var divergences []FrameDivergence
	metricSamples := map[string][]float64{}
	compared := 0

	for offset := int64(0); offset <= span; offset++ {
		ta, tb := startA+offset, startB+offset
		if ta > a.LastFrameIndex() || tb > b.LastFrameIndex() {
			break
		}
		wa, err := a.Reconstruct(ta)
		if err != nil {
			break
		}
		wb, err := b.Reconstruct(tb)
		if err != nil {
			break
		}
		div := divergeWorlds(offset, wa, wb, metricSamples)
		divergences = append(divergences, div)
		compared++
	}

	return finishComparison(divergences, metricSamples, compared, topN), nil
}

func compareRange(a, b *Recording, from, to int64, topN int) (Comparison, error) {
	var divergences []FrameDivergence
	metricSamples := map[string][]float64{}
	compared := 0

	for i := from; i <= to; i++ {
		wa, err := a.Reconstruct(i)
		if err != nil {
			continue
		}
		wb, err := b.Reconstruct(i)
		if err != nil {
			continue
		}
		div := divergeWorlds(i, wa, wb, metricSamples)
		divergences = append(divergences, div)
		compared++
	}

	return finishComparison(divergences, metricSamples, compared, topN), nil
}

func divergeWorlds(frameIndex int64, a, b model.WorldSnapshot, metricSamples map[string][]float64) FrameDivergence {
	d := DiffWorlds(a, b)
	changed := make([]string, 0, len(d.Changed))
	score := float64(len(d.Added) + len(d.Removed))

	for _, c := range d.Changed {
		changed = append(changed, c.Component)
		score++

		for field, after := range c.After {
			numAfter, ok := asFloat(after)
			if !ok {
				continue
			}
			if numBefore, ok2 := asFloat(c.Before[field]); ok2 {
				metricSamples[c.Component] = append(metricSamples[c.Component], math.Abs(numAfter-numBefore))
			}
		}
	}
	return FrameDivergence{FrameIndex: frameIndex, Score: score, Changed: changed}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func finishComparison(divergences []FrameDivergence, metricSamples map[string][]float64, compared, topN int) Comparison {
	sort.Slice(divergences, func(i, j int) bool { return divergences[i].Score > divergences[j].Score })
	top := divergences
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}

	metrics := make([]MetricStats, 0, len(metricSamples))
	for name, samples := range metricSamples {
		metrics = append(metrics, statsFor(name, samples))
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Metric < metrics[j].Metric })

	return Comparison{Metrics: metrics, TopDivergent: top, FramesCompared: compared}
}

func statsFor(name string, samples []float64) MetricStats {
	sorted := append([]float64{}, samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	n := len(sorted)
	mean := sum / float64(n)

	var variance float64
	for _, s := range sorted {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(n)

	return MetricStats{
		Metric:  name,
		Mean:    mean,
		StdDev:  math.Sqrt(variance),
		P50:     percentileOf(sorted, 0.50),
		P95:     percentileOf(sorted, 0.95),
		Samples: n,
	}
}

func percentileOf(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// anomaly.go — the detect_anomaly handler (§4.D.4): a pipeline of sample
// collection, baseline estimation, scoring, and dwell-gated alerting.
// The scoring function itself is pluggable (external statistical
// collaborator); this core only guarantees pacing, bounded memory, and
// alert serialization.
package handlers

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// AnomalyArgs is detect_anomaly's argument contract (§6).
type AnomalyArgs struct {
	DetectionType string          `json:"detection_type"`
	Sensitivity   float64         `json:"sensitivity"`
	WindowSize    int             `json:"window_size"`
	BaselinePeriod int            `json:"baseline_period"`
	Params        json.RawMessage `json:"params"`
}

type anomalyParams struct {
	Metric        string  `json:"metric"`
	DwellSamples  int     `json:"dwell_samples"`
	SampleSeconds float64 `json:"sample_interval_seconds"`
}

// Detector scores a sample against an estimated baseline. Swappable so
// the numerics behind a detection_type can evolve independently of the
// pipeline that drives them.
type Detector interface {
	Score(baselineMean, baselineStdDev, sample float64) float64
}

// zScoreDetector is the default Detector: absolute standard-score
// distance from the baseline mean.
type zScoreDetector struct{}

func (zScoreDetector) Score(mean, stdDev, sample float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return math.Abs((sample - mean) / stdDev)
}

// BaselineStats summarizes the estimation window (§4.D.4).
type BaselineStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// Alert is one dwell-confirmed anomaly (§4.D.4).
type Alert struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
	Score float64 `json:"score"`
}

// AnomalyResult is detect_anomaly's result shape.
type AnomalyResult struct {
	Baseline BaselineStats `json:"baseline"`
	Scores   []float64     `json:"scores"`
	Alerts   []Alert       `json:"alerts"`
}

// AnomalyHandler implements dispatcher.Handler for the detect_anomaly tool.
type AnomalyHandler struct {
	game     *GameClient
	detector Detector
}

// NewAnomalyHandler constructs an AnomalyHandler using the default detector.
func NewAnomalyHandler(game *GameClient) *AnomalyHandler {
	return &AnomalyHandler{game: game, detector: zScoreDetector{}}
}

// WithDetector swaps the pluggable scoring function.
func (h *AnomalyHandler) WithDetector(d Detector) *AnomalyHandler {
	h.detector = d
	return h
}

const (
	defaultWindowSize     = 30
	defaultBaselinePeriod = 10
	defaultSampleInterval = 200 * time.Millisecond
)

// Execute implements dispatcher.Handler.
func (h *AnomalyHandler) Execute(ctx context.Context, raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var args AnomalyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid detect_anomaly arguments")
	}
	if args.DetectionType == "" {
		return nil, nil, debugerr.New(debugerr.InvalidArgument, "detection_type is required")
	}
	if args.Sensitivity <= 0 {
		args.Sensitivity = 2.0
	}
	windowSize := args.WindowSize
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	baselinePeriod := args.BaselinePeriod
	if baselinePeriod <= 0 {
		baselinePeriod = defaultBaselinePeriod
	}
	if baselinePeriod >= windowSize {
		baselinePeriod = windowSize - 1
	}
	if baselinePeriod < 1 {
		return nil, nil, debugerr.New(debugerr.InvalidArgument, "window_size must exceed baseline_period")
	}

	var params anomalyParams
	if len(args.Params) > 0 {
		if err := json.Unmarshal(args.Params, &params); err != nil {
			return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid detect_anomaly params")
		}
	}
	if params.Metric == "" {
		params.Metric = "fps"
	}
	if params.DwellSamples <= 0 {
		params.DwellSamples = 1
	}
	interval := defaultSampleInterval
	if params.SampleSeconds > 0 {
		interval = time.Duration(params.SampleSeconds * float64(time.Second))
	}

	samples, err := h.collect(ctx, windowSize, interval, params.Metric)
	if err != nil {
		return nil, nil, err
	}

	baseline := estimateBaseline(samples[:baselinePeriod])
	threshold := args.Sensitivity

	scores := make([]float64, 0, len(samples)-baselinePeriod)
	var alerts []Alert
	dwell := 0
	for i := baselinePeriod; i < len(samples); i++ {
		score := h.detector.Score(baseline.Mean, baseline.StdDev, samples[i])
		scores = append(scores, score)
		if score > threshold {
			dwell++
			if dwell >= params.DwellSamples {
				alerts = append(alerts, Alert{Index: i, Value: samples[i], Score: score})
			}
		} else {
			dwell = 0
		}
	}

	return Output{Data: AnomalyResult{Baseline: baseline, Scores: scores, Alerts: alerts}, Status: model.CacheBypass}, nil, nil
}

// collect samples the named diagnostics metric at a fixed pace, bounded
// to exactly n samples, so the pipeline's memory footprint never exceeds
// the configured window.
func (h *AnomalyHandler) collect(ctx context.Context, n int, interval time.Duration, metric string) ([]float64, error) {
	samples := make([]float64, 0, n)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for len(samples) < n {
		value, err := h.game.GetResource(ctx, "diagnostics")
		if err == nil {
			samples = append(samples, asFloatOr(value[metric], 0))
		} else {
			samples = append(samples, 0)
		}
		if len(samples) >= n {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return samples, nil
}

func estimateBaseline(samples []float64) BaselineStats {
	if len(samples) == 0 {
		return BaselineStats{}
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))

	return BaselineStats{Mean: mean, StdDev: math.Sqrt(variance), Count: len(samples)}
}

// hypothesis.go — the hypothesis handler (§4.D.5): composes a
// parameter-sweep / A-B workflow out of repeated experiment runs,
// accumulates observations, and hands them to a pluggable statistical
// collaborator for a supported/refuted/inconclusive verdict.
package handlers

import (
	"context"
	"encoding/json"
	"math"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// HypothesisArgs is hypothesis's argument contract (§6).
type HypothesisArgs struct {
	Hypothesis   string          `json:"hypothesis"`
	Confidence   float64         `json:"confidence"`
	TestDuration int             `json:"test_duration"`
	SampleSize   int             `json:"sample_size"`
	Params       json.RawMessage `json:"params"`
}

type hypothesisParams struct {
	ExperimentType string          `json:"experiment_type"`
	Metric         string          `json:"metric"`
	ControlParams  json.RawMessage `json:"control_params"`
	TreatmentParams json.RawMessage `json:"treatment_params"`
}

// Verdict is hypothesis's conclusion (§4.D.5).
type Verdict string

const (
	VerdictSupported   Verdict = "supported"
	VerdictRefuted     Verdict = "refuted"
	VerdictInconclusive Verdict = "inconclusive"
)

// Evidence is the accumulated observation summary backing a Verdict.
type Evidence struct {
	ControlMean    float64 `json:"control_mean"`
	TreatmentMean  float64 `json:"treatment_mean"`
	ControlSamples int     `json:"control_samples"`
	TreatmentSamples int   `json:"treatment_samples"`
}

// HypothesisResult is hypothesis's result shape.
type HypothesisResult struct {
	Verdict     Verdict  `json:"verdict"`
	Evidence    Evidence `json:"evidence"`
	Recommendation string `json:"recommendation,omitempty"`
}

// StatisticalCollaborator turns accumulated evidence into a verdict. The
// exact numerics are pluggable and out of this core's scope; the default
// implementation compares the relative difference of the two means with
// 1 - confidence.
type StatisticalCollaborator interface {
	Evaluate(evidence Evidence, confidence float64) Verdict
}

type meanDifferenceCollaborator struct{}

func (meanDifferenceCollaborator) Evaluate(e Evidence, confidence float64) Verdict {
	if e.ControlMean == 0 && e.TreatmentMean == 0 {
		return VerdictInconclusive
	}
	scale := math.Max(math.Abs(e.ControlMean), 1e-9)
	relativeDelta := math.Abs(e.TreatmentMean-e.ControlMean) / scale
	threshold := 1 - confidence
	if relativeDelta > threshold {
		return VerdictSupported
	}
	return VerdictRefuted
}

const minHypothesisSampleSize = 5

// HypothesisHandler implements dispatcher.Handler for the hypothesis tool.
type HypothesisHandler struct {
	experiment   *ExperimentHandler
	collaborator StatisticalCollaborator
}

// NewHypothesisHandler constructs a HypothesisHandler composing experiment
// runs through the given ExperimentHandler.
func NewHypothesisHandler(experiment *ExperimentHandler) *HypothesisHandler {
	return &HypothesisHandler{experiment: experiment, collaborator: meanDifferenceCollaborator{}}
}

// WithCollaborator swaps the pluggable statistical evaluator.
func (h *HypothesisHandler) WithCollaborator(c StatisticalCollaborator) *HypothesisHandler {
	h.collaborator = c
	return h
}

// Execute implements dispatcher.Handler.
func (h *HypothesisHandler) Execute(ctx context.Context, raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var args HypothesisArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid hypothesis arguments")
	}
	if args.Hypothesis == "" {
		return nil, nil, debugerr.New(debugerr.InvalidArgument, "hypothesis is required")
	}
	if args.Confidence <= 0 || args.Confidence >= 1 {
		args.Confidence = 0.95
	}
	sampleSize := args.SampleSize
	if sampleSize <= 0 {
		sampleSize = minHypothesisSampleSize
	}

	var params hypothesisParams
	if len(args.Params) > 0 {
		if err := json.Unmarshal(args.Params, &params); err != nil {
			return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid hypothesis params")
		}
	}
	if params.ExperimentType == "" {
		return nil, nil, debugerr.New(debugerr.InvalidArgument, "params.experiment_type is required")
	}
	if params.Metric == "" {
		params.Metric = "fps"
	}

	controlMeans, err := h.runGroup(ctx, params.ExperimentType, params.ControlParams, params.Metric, args.TestDuration, sampleSize)
	if err != nil {
		return nil, nil, err
	}
	treatmentMeans, err := h.runGroup(ctx, params.ExperimentType, params.TreatmentParams, params.Metric, args.TestDuration, sampleSize)
	if err != nil {
		return nil, nil, err
	}

	evidence := Evidence{
		ControlMean:      mean(controlMeans),
		TreatmentMean:    mean(treatmentMeans),
		ControlSamples:   len(controlMeans),
		TreatmentSamples: len(treatmentMeans),
	}

	if evidence.ControlSamples < sampleSize || evidence.TreatmentSamples < sampleSize {
		return Output{Data: HypothesisResult{
			Verdict:        VerdictInconclusive,
			Evidence:       evidence,
			Recommendation: "collect more data",
		}, Status: model.CacheBypass}, nil, nil
	}

	verdict := h.collaborator.Evaluate(evidence, args.Confidence)
	return Output{Data: HypothesisResult{Verdict: verdict, Evidence: evidence}, Status: model.CacheBypass}, nil, nil
}

// runGroup runs one arm of the A/B workflow sampleSize times, returning
// each run's mean of the sampled metric series.
func (h *HypothesisHandler) runGroup(ctx context.Context, experimentType string, params json.RawMessage, metric string, durationSeconds, count int) ([]float64, error) {
	means := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		args := ExperimentArgs{
			ExperimentType:  experimentType,
			Params:          params,
			DurationSeconds: durationSeconds,
			Revert:          true,
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, debugerr.Wrap(debugerr.Internal, err, "failed to encode nested experiment arguments")
		}
		result, _, err := h.experiment.Execute(ctx, raw)
		if err != nil {
			return nil, err
		}
		out, ok := result.(Output)
		if !ok {
			return nil, debugerr.New(debugerr.Internal, "experiment handler returned an unexpected result type")
		}
		expResult, ok := out.Data.(ExperimentResult)
		if !ok {
			return nil, debugerr.New(debugerr.Internal, "experiment handler returned an unexpected data type")
		}
		means = append(means, meanMetric(expResult.Metrics, metric))
	}
	return means, nil
}

func meanMetric(samples []MetricSample, metric string) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, s := range samples {
		if v, ok := s.Values[metric]; ok {
			sum += asFloatOr(v, 0)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

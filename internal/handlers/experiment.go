// experiment.go — the experiment handler (§4.D.2): baseline capture,
// mutation application, rate-limited metric sampling over the requested
// duration, final capture, and optional revert.
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// ExperimentArgs is experiment's argument contract (§6).
type ExperimentArgs struct {
	ExperimentType  string          `json:"experiment_type"`
	Params          json.RawMessage `json:"params"`
	DurationSeconds int             `json:"duration_seconds"`
	Revert          bool            `json:"revert"`
}

// Mutation is one spawn/despawn/insert/remove step an experiment applies.
type Mutation struct {
	Op         string                           `json:"op"` // spawn, despawn, insert, remove
	Entity     model.EntityRef                  `json:"entity,omitempty"`
	Component  string                           `json:"component,omitempty"`
	Value      model.ComponentValue             `json:"value,omitempty"`
	Components map[string]model.ComponentValue  `json:"components,omitempty"` // spawn only
}

type experimentParams struct {
	Mutations       []Mutation `json:"mutations"`
	SamplesPerSecond float64   `json:"samples_per_second"`
	MetricResource   string    `json:"metric_resource"`
}

// MetricSample is one point in an experiment's sampled metric series.
type MetricSample struct {
	At     time.Time            `json:"at"`
	Values model.ComponentValue `json:"values,omitempty"`
}

// ExperimentResult is experiment's result shape (§4.D.2).
type ExperimentResult struct {
	Baseline model.WorldSnapshot `json:"baseline"`
	Final    model.WorldSnapshot `json:"final"`
	Metrics  []MetricSample      `json:"metrics"`
	Reverted bool                `json:"reverted"`
}

// ExperimentHandler implements dispatcher.Handler for the experiment tool.
type ExperimentHandler struct {
	game *GameClient
}

// NewExperimentHandler constructs an ExperimentHandler.
func NewExperimentHandler(game *GameClient) *ExperimentHandler {
	return &ExperimentHandler{game: game}
}

// Execute implements dispatcher.Handler.
func (h *ExperimentHandler) Execute(ctx context.Context, raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var args ExperimentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid experiment arguments")
	}
	if args.ExperimentType == "" {
		return nil, nil, debugerr.New(debugerr.InvalidArgument, "experiment_type is required")
	}

	var params experimentParams
	if len(args.Params) > 0 {
		if err := json.Unmarshal(args.Params, &params); err != nil {
			return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid experiment params")
		}
	}
	if params.SamplesPerSecond <= 0 {
		params.SamplesPerSecond = 10
	}
	if params.MetricResource == "" {
		params.MetricResource = "diagnostics"
	}

	baseline, err := h.game.Snapshot(ctx, 0)
	if err != nil {
		return nil, nil, err
	}

	applied, err := h.applyMutations(ctx, params.Mutations)
	if err != nil {
		h.revertMutations(ctx, applied)
		return nil, nil, err
	}

	metrics := h.sampleMetrics(ctx, params.MetricResource, params.SamplesPerSecond, time.Duration(args.DurationSeconds)*time.Second)

	final, err := h.game.Snapshot(ctx, 0)
	if err != nil {
		return nil, nil, err
	}

	reverted := false
	if args.Revert {
		h.revertMutations(ctx, applied)
		reverted = true
	}

	tags := map[model.CacheTag]struct{}{model.TagEntities: {}}
	for _, m := range applied {
		if m.Component != "" {
			tags[model.ComponentTag(m.Component)] = struct{}{}
		}
		for comp := range m.Components {
			tags[model.ComponentTag(comp)] = struct{}{}
		}
	}

	return Output{Data: ExperimentResult{Baseline: baseline, Final: final, Metrics: metrics, Reverted: reverted}, Status: model.CacheBypass}, tags, nil
}

// applyMutations applies each mutation in order, returning the ones that
// succeeded (for revert) and stopping at the first failure.
func (h *ExperimentHandler) applyMutations(ctx context.Context, mutations []Mutation) ([]Mutation, error) {
	applied := make([]Mutation, 0, len(mutations))
	for _, m := range mutations {
		var err error
		switch m.Op {
		case "spawn":
			var entity model.EntityRef
			entity, err = h.game.Spawn(ctx, m.Components)
			m.Entity = entity
		case "despawn":
			err = h.game.Despawn(ctx, m.Entity)
		case "insert":
			err = h.game.Insert(ctx, m.Entity, m.Component, m.Value)
		case "remove":
			err = h.game.Remove(ctx, m.Entity, m.Component)
		default:
			err = debugerr.New(debugerr.InvalidArgument, "unknown mutation op").WithContext("op", m.Op)
		}
		if err != nil {
			return applied, err
		}
		applied = append(applied, m)
	}
	return applied, nil
}

// revertMutations undoes each applied mutation in reverse order: spawned
// entities are despawned, despawned/inserted/removed components are left
// as-is (the original value is not known without a pre-mutation
// snapshot; full restoration is experiment_type-specific and out of this
// core's scope, per §1 non-goals on game-side semantics).
func (h *ExperimentHandler) revertMutations(ctx context.Context, applied []Mutation) {
	for i := len(applied) - 1; i >= 0; i-- {
		m := applied[i]
		switch m.Op {
		case "spawn":
			_ = h.game.Despawn(ctx, m.Entity)
		}
	}
}

// sampleMetrics samples the named resource at the configured rate for the
// given duration, using golang.org/x/time/rate to pace requests without
// busy-looping. Sampling errors are non-fatal: a missing metric resource
// still lets the experiment complete.
func (h *ExperimentHandler) sampleMetrics(ctx context.Context, resource string, perSecond float64, duration time.Duration) []MetricSample {
	if duration <= 0 {
		return nil
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
	deadline := time.Now().Add(duration)
	var samples []MetricSample

	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			return samples
		}
		select {
		case <-ctx.Done():
			return samples
		default:
		}
		value, err := h.game.GetResource(ctx, resource)
		sample := MetricSample{At: time.Now()}
		if err == nil {
			sample.Values = value
		}
		samples = append(samples, sample)
	}
	return samples
}

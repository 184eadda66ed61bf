// recorder.go — the recording pipeline (§4.E): subscribes to a world
// source, computes per-frame deltas, inserts periodic keyframes, applies
// selective-recording filters and quality-level field schemas, and
// applies backpressure (coalesce or quality-drop) without ever blocking
// the game connection.
//
// Adapted from the teacher's internal/capture/recording_manager.go
// goroutine-owned capture loop and internal/capture/rate_limit.go
// high-water-mark behavior, generalized from "buffer browser events" to
// "buffer world deltas with keyframe-anchored reconstruction."
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/util"
)

// SourceFrame is one sample pulled from the game, either pushed by the
// game's frame/event stream or produced by polling it at a configured
// rate (§4.E).
type SourceFrame struct {
	World  model.WorldSnapshot
	Inputs CapturedInputs
	Seed   int64
}

// Source is whatever feeds the recorder: a live game stream, or a
// fixture channel in tests.
type Source <-chan SourceFrame

// RecorderConfig controls keyframe cadence and backpressure policy.
type RecorderConfig struct {
	KeyframeInterval int           // default 60 (§3)
	HighWaterMark    int           // inbox depth that triggers backpressure
	CoalesceOnBackpressure bool    // true = coalesce deltas; false = drop quality
	SampleInterval   time.Duration // used only by a polling Source, informational
}

// Recorder drives one active recording's capture loop. A fresh Recorder
// is used per `record` action; it does not outlive the recording.
type Recorder struct {
	cfg     RecorderConfig
	storage *Storage
	logger  zerolog.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(cfg RecorderConfig, storage *Storage, logger zerolog.Logger) *Recorder {
	if cfg.KeyframeInterval <= 0 {
		cfg.KeyframeInterval = 60
	}
	return &Recorder{cfg: cfg, storage: storage, logger: logger}
}

// Run owns frame ingestion for `rec` until ctx is cancelled or src is
// closed. It is meant to be launched with util.SafeGo by the caller, which
// retains the *Recording for concurrent reads (LastFrameIndex, Reconstruct)
// while this loop is the sole writer (§5 "one owner task per pipeline").
func (r *Recorder) Run(ctx context.Context, rec *Recording, src Source) {
	var frameIndex int64
	var pendingCoalesce *Frame

	flushPending := func() {
		if pendingCoalesce == nil {
			return
		}
		r.commitFrame(rec, *pendingCoalesce)
		pendingCoalesce = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			rec.Stop(false)
			return
		case sf, ok := <-src:
			if !ok {
				flushPending()
				rec.Stop(false)
				return
			}

			if err := r.storage.DiskUsable(); err != nil {
				flushPending()
				rec.Stop(true)
				r.logger.Error().Err(err).Msg("storage full, recording stopped")
				return
			}

			filtered := applyFilter(sf.World, rec.Header().SelectiveFilter)
			isKeyframe := frameIndex%int64(r.cfg.KeyframeInterval) == 0

			var frame Frame
			if isKeyframe {
				flushPending()
				snap := filtered
				frame = Frame{Index: frameIndex, Timestamp: time.Now(), Keyframe: true, Snapshot: &snap, Seed: sf.Seed, Inputs: sf.Inputs}
			} else {
				delta := DiffWorlds(rec.lastWorldSnapshot(), filtered)
				frame = Frame{Index: frameIndex, Timestamp: time.Now(), Keyframe: false, Delta: delta, Seed: sf.Seed, Inputs: sf.Inputs}
			}

			backlogged := len(src) > r.cfg.HighWaterMark && r.cfg.HighWaterMark > 0
			switch {
			case !backlogged:
				flushPending()
				r.commitFrame(rec, frame)
			case r.cfg.CoalesceOnBackpressure && !frame.Keyframe:
				pendingCoalesce = coalesce(pendingCoalesce, &frame)
			default:
				r.downgradeQuality(rec)
				flushPending()
				r.commitFrame(rec, frame)
			}

			frameIndex++
		}
	}
}

func (r *Recorder) commitFrame(rec *Recording, f Frame) {
	world, err := worldAfterFrame(rec, f)
	if err != nil {
		r.logger.Warn().Err(err).Int64("frame", f.Index).Msg("failed to reconstruct world for conditional checkpoint evaluation")
		world = rec.lastWorldSnapshot()
	}
	rec.AppendFrame(f, world)
	if err := r.storage.AppendFrame(rec.ID(), f); err != nil {
		r.logger.Warn().Err(err).Int64("frame", f.Index).Msg("failed to mirror frame to disk")
	}
}

func worldAfterFrame(rec *Recording, f Frame) (model.WorldSnapshot, error) {
	if f.Keyframe {
		return *f.Snapshot, nil
	}
	return applyDelta(rec.lastWorldSnapshot(), f), nil
}

func (r *Recording) lastWorldSnapshot() model.WorldSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastWorld
}

// coalesce merges next's delta into pending's, keeping pending's frame
// index and timestamp — this is what "coalesces consecutive non-keyframes
// by merging deltas" (§4.E) means concretely.
func coalesce(pending, next *Frame) *Frame {
	if pending == nil {
		return next
	}
	merged := *pending
	merged.Delta = mergeDeltas(pending.Delta, next.Delta)
	merged.Timestamp = next.Timestamp
	merged.Inputs = mergeInputs(pending.Inputs, next.Inputs)
	return &merged
}

func mergeDeltas(a, b Delta) Delta {
	removedSet := make(map[model.EntityRef]struct{}, len(a.Removed)+len(b.Removed))
	for _, r := range a.Removed {
		removedSet[r] = struct{}{}
	}
	for _, r := range b.Removed {
		removedSet[r] = struct{}{}
	}
	addedByEntity := make(map[model.EntityRef]model.EntitySnapshot)
	for _, e := range a.Added {
		addedByEntity[e.Entity] = e
	}
	for _, e := range b.Added {
		addedByEntity[e.Entity] = e
	}
	var removed []model.EntityRef
	for e := range removedSet {
		removed = append(removed, e)
	}
	var added []model.EntitySnapshot
	for _, e := range addedByEntity {
		added = append(added, e)
	}

	changedByKey := make(map[string]ComponentChange)
	for _, c := range a.Changed {
		changedByKey[changeKey(c)] = c
	}
	for _, c := range b.Changed {
		if prior, ok := changedByKey[changeKey(c)]; ok {
			c.Before = prior.Before
		}
		changedByKey[changeKey(c)] = c
	}
	var changed []ComponentChange
	for _, c := range changedByKey {
		changed = append(changed, c)
	}
	return Delta{Added: added, Removed: removed, Changed: changed}
}

func changeKey(c ComponentChange) string {
	return fmt.Sprintf("%d\x00%s", c.Entity, c.Component)
}

func mergeInputs(a, b CapturedInputs) CapturedInputs {
	return CapturedInputs{
		Keyboard: append(append([]string{}, a.Keyboard...), b.Keyboard...),
		Mouse:    append(append([]MouseDelta{}, a.Mouse...), b.Mouse...),
		Network:  append(append([]NetworkDelta{}, a.Network...), b.Network...),
	}
}

func (r *Recorder) downgradeQuality(rec *Recording) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	switch rec.header.Quality {
	case QualityFull:
		rec.header.Quality = QualityPerformance
	case QualityPerformance:
		rec.header.Quality = QualityMinimal
	}
}

// applyFilter keeps only the entities/components a selective-recording
// filter permits (§4.E). Filtered frames still carry their frame index
// and timestamp (enforced by the caller, which always sets those).
func applyFilter(world model.WorldSnapshot, filter *Filter) model.WorldSnapshot {
	if filter == nil {
		return world
	}
	entitySet := map[model.EntityRef]bool{}
	hasEntityFilter := len(filter.Entities) > 0
	for _, e := range filter.Entities {
		entitySet[e] = true
	}

	out := make([]model.EntitySnapshot, 0, len(world.Entities))
	for _, e := range world.Entities {
		if hasEntityFilter && !entitySet[e.Entity] {
			continue
		}
		components := make(map[string]model.ComponentValue)
		for name, val := range e.Components {
			if filter.Includes(name) {
				components[name] = val
			}
		}
		out = append(out, model.EntitySnapshot{Entity: e.Entity, Components: components})
	}
	return model.NewWorldSnapshot(world.FrameIndex, world.Timestamp, out)
}

// StartRecording creates storage for id and launches its capture loop in
// the background, returning the live *Recording immediately.
func (r *Recorder) StartRecording(ctx context.Context, id string, header Header, src Source) (*Recording, error) {
	if err := r.storage.DiskUsable(); err != nil {
		return nil, err
	}
	if err := r.storage.Create(id); err != nil {
		return nil, debugerr.Wrap(debugerr.Internal, err, "failed to create recording storage")
	}
	rec := NewRecording(id, header)
	util.SafeGo(func() { r.Run(ctx, rec, src) })
	return rec, nil
}

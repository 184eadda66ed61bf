// engine.go — the Replay Engine (§3, §4.E): owns every Recording and
// Playback session for the process, and is the single entry point the
// `replay` tool handler calls into for every action (record, stop,
// replay, step, seek, checkpoint, branch, compare, delete, analyze).
package replay

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
)

// Engine is the top-level owner of recordings and playback sessions. One
// Engine is constructed per process (§3 "Replay Engine: exclusive owner
// of all Recording and Playback instances").
type Engine struct {
	mu         sync.Mutex
	storage    *Storage
	logger     zerolog.Logger
	recorderCf RecorderConfig
	bounds     SpeedBounds

	recordings map[string]*Recording
	playbacks  map[string]*Playback // keyed by recording id
}

// NewEngine constructs an Engine backed by storage.
func NewEngine(storage *Storage, recorderCfg RecorderConfig, bounds SpeedBounds, logger zerolog.Logger) *Engine {
	return &Engine{
		storage:    storage,
		logger:     logger,
		recorderCf: recorderCfg,
		bounds:     bounds,
		recordings: make(map[string]*Recording),
		playbacks:  make(map[string]*Playback),
	}
}

// StartRecording begins capturing id from src (§4.E "record").
func (e *Engine) StartRecording(ctx context.Context, id string, header Header, src Source) (*Recording, error) {
	e.mu.Lock()
	if _, exists := e.recordings[id]; exists {
		e.mu.Unlock()
		return nil, debugerr.New(debugerr.InvalidArgument, "a recording with this id already exists").WithContext("recording_id", id)
	}
	e.mu.Unlock()

	header.KeyframeInterval = e.recorderCf.KeyframeInterval
	rec, err := NewRecorder(e.recorderCf, e.storage, e.logger).StartRecording(ctx, id, header, src)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.recordings[id] = rec
	e.mu.Unlock()
	return rec, nil
}

// StopRecording ends capture and commits the recording to disk (§4.E
// "stop").
func (e *Engine) StopRecording(id string) error {
	rec, err := e.get(id)
	if err != nil {
		return err
	}
	rec.Stop(false)
	return e.storage.Commit(id, rec.Header())
}

// Recording returns the in-memory recording for id, if loaded.
func (e *Engine) Recording(id string) (*Recording, error) {
	return e.get(id)
}

func (e *Engine) get(id string) (*Recording, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.recordings[id]
	if !ok {
		return nil, debugerr.New(debugerr.NotFound, "unknown recording").WithContext("recording_id", id)
	}
	return rec, nil
}

// Playback returns (creating if necessary) the playback session for id.
func (e *Engine) Playback(id string) (*Playback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pb, ok := e.playbacks[id]; ok {
		return pb, nil
	}
	rec, ok := e.recordings[id]
	if !ok {
		return nil, debugerr.New(debugerr.NotFound, "unknown recording").WithContext("recording_id", id)
	}
	pb := NewPlayback(rec, e.bounds)
	e.playbacks[id] = pb
	return pb, nil
}

// Checkpoint inserts an explicit named checkpoint (§4.E "checkpoint").
func (e *Engine) Checkpoint(id, name string, frame int64, description string) error {
	rec, err := e.get(id)
	if err != nil {
		return err
	}
	if err := rec.ValidateFrameIndex(frame); err != nil {
		return err
	}
	rec.AddCheckpoint(name, frame, description)
	return e.storage.WriteCheckpoints(id, rec.Checkpoints())
}

// Branch creates a branch of parentID at forkFrame, registering it as a
// new recording under childID (§4.E "branch").
func (e *Engine) Branch(parentID string, forkFrame int64, childID string) (*Recording, error) {
	e.mu.Lock()
	parent, ok := e.recordings[parentID]
	if !ok {
		e.mu.Unlock()
		return nil, debugerr.New(debugerr.NotFound, "unknown parent recording").WithContext("recording_id", parentID)
	}
	if _, exists := e.recordings[childID]; exists {
		e.mu.Unlock()
		return nil, debugerr.New(debugerr.InvalidArgument, "a recording with this id already exists").WithContext("recording_id", childID)
	}
	e.mu.Unlock()

	child, err := Branch(parent, forkFrame, childID)
	if err != nil {
		return nil, err
	}

	if err := e.storage.Create(childID); err != nil {
		return nil, debugerr.Wrap(debugerr.Internal, err, "failed to create branch storage")
	}
	if err := e.storage.WriteBranchRecord(childID, BranchRecord{ParentID: parentID, ForkFrame: forkFrame}); err != nil {
		e.logger.Warn().Err(err).Str("branch", childID).Msg("failed to persist branch record")
	}

	e.mu.Lock()
	e.recordings[childID] = child
	e.mu.Unlock()
	return child, nil
}

// Delete destroys a recording, refusing if it has live children or a
// non-zero refcount (§3, §5).
func (e *Engine) Delete(id string) error {
	rec, err := e.get(id)
	if err != nil {
		return err
	}
	if ok, children := rec.CanDelete(); !ok {
		if children != nil {
			return debugerr.New(debugerr.InUse, "recording has live branches").WithContext("branches", children)
		}
		return debugerr.New(debugerr.InUse, "recording is in use by an active session")
	}

	e.mu.Lock()
	delete(e.recordings, id)
	delete(e.playbacks, id)
	e.mu.Unlock()

	return e.storage.Delete(id)
}

// Compare runs a frame-by-frame or checkpoint-by-checkpoint comparison
// between two recordings (§4.E "compare").
func (e *Engine) Compare(aID, bID string, checkpointName string, span int64, topN int) (Comparison, error) {
	a, err := e.get(aID)
	if err != nil {
		return Comparison{}, err
	}
	b, err := e.get(bID)
	if err != nil {
		return Comparison{}, err
	}
	if checkpointName != "" {
		return AlignByCheckpoint(a, b, checkpointName, span, topN)
	}
	return AlignByFrame(a, b, topN)
}

// replay.go — the replay handler (§4.D.6, §4.E): a thin action dispatch
// over replay.Engine, translating the tool channel's record/stop/replay/
// step/seek/checkpoint/branch/compare/analyze actions into engine calls
// and owning the polling source that feeds a recording while it is live.
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/replay"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/util"
)

// ReplayArgs is replay's argument contract (§6).
type ReplayArgs struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

type recordParams struct {
	SessionName      string         `json:"session_name"`
	Quality          string         `json:"quality"`
	KeyframeInterval int            `json:"keyframe_interval"`
	Deterministic    bool           `json:"deterministic"`
	SelectiveFilter  *replay.Filter `json:"selective_filter"`
	SampleIntervalMS int            `json:"sample_interval_ms"`
}

type sessionParams struct {
	SessionName string `json:"session_name"`
}

type replayParams struct {
	SessionName string `json:"session_name"`
	StartFrame  int64  `json:"start_frame"`
}

type stepParams struct {
	SessionName string `json:"session_name"`
	Frames      int    `json:"frames"`
	Direction   string `json:"direction"`
}

type seekParams struct {
	SessionName string `json:"session_name"`
	TargetFrame int64  `json:"target_frame"`
	Relative    bool   `json:"relative"`
}

type checkpointParams struct {
	SessionName string `json:"session_name"`
	Name        string `json:"name"`
	Frame       int64  `json:"frame"`
	Description string `json:"description"`
}

type branchParams struct {
	ParentSessionName string `json:"parent_session_name"`
	ForkFrame         int64  `json:"fork_frame"`
	ChildSessionName  string `json:"child_session_name"`
}

type compareParams struct {
	SessionA       string `json:"session_a"`
	SessionB       string `json:"session_b"`
	CheckpointName string `json:"checkpoint_name"`
	Span           int64  `json:"span"`
	TopN           int    `json:"top_n"`
}

type analyzeParams struct {
	SessionName string `json:"session_name"`
}

// AnalyzeResult summarizes one recording for the `analyze` action.
type AnalyzeResult struct {
	FrameCount  int64               `json:"frame_count"`
	Checkpoints []replay.Checkpoint `json:"checkpoints"`
	Quality     replay.QualityLevel `json:"quality"`
	Truncated   bool                `json:"truncated"`
}

const defaultPollInterval = 100 * time.Millisecond

// ReplayHandler implements dispatcher.Handler for the replay tool.
type ReplayHandler struct {
	engine *replay.Engine
	game   *GameClient

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewReplayHandler constructs a ReplayHandler over engine, sourcing live
// frames by polling game.
func NewReplayHandler(engine *replay.Engine, game *GameClient) *ReplayHandler {
	return &ReplayHandler{engine: engine, game: game, cancels: make(map[string]context.CancelFunc)}
}

// Execute implements dispatcher.Handler.
func (h *ReplayHandler) Execute(ctx context.Context, raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var args ReplayArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid replay arguments")
	}

	switch args.Action {
	case "record":
		return h.record(ctx, args.Params)
	case "stop":
		return h.stop(args.Params)
	case "replay":
		return h.replayAction(args.Params)
	case "step":
		return h.step(args.Params)
	case "seek":
		return h.seek(args.Params)
	case "checkpoint":
		return h.checkpoint(args.Params)
	case "branch":
		return h.branch(args.Params)
	case "compare":
		return h.compare(args.Params)
	case "analyze":
		return h.analyze(args.Params)
	default:
		return nil, nil, debugerr.New(debugerr.InvalidArgument, "unknown replay action").WithContext("action", args.Action)
	}
}

func (h *ReplayHandler) record(ctx context.Context, raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var p recordParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid record params")
		}
	}
	if p.SessionName == "" {
		return nil, nil, debugerr.New(debugerr.InvalidArgument, "session_name is required")
	}
	quality := replay.QualityFull
	if p.Quality != "" {
		quality = replay.QualityLevel(p.Quality)
	}
	header := replay.Header{
		SchemaVersion:    1,
		Quality:          quality,
		Deterministic:    p.Deterministic,
		SelectiveFilter:  p.SelectiveFilter,
		KeyframeInterval: p.KeyframeInterval,
	}

	interval := defaultPollInterval
	if p.SampleIntervalMS > 0 {
		interval = time.Duration(p.SampleIntervalMS) * time.Millisecond
	}

	recordingCtx, cancel := context.WithCancel(context.Background())
	src := h.pollSource(recordingCtx, interval)

	if _, err := h.engine.StartRecording(recordingCtx, p.SessionName, header, src); err != nil {
		cancel()
		return nil, nil, err
	}

	h.mu.Lock()
	h.cancels[p.SessionName] = cancel
	h.mu.Unlock()

	return Output{Data: map[string]string{"recording_id": p.SessionName}, Status: model.CacheBypass}, nil, nil
}

// pollSource samples the game world at interval until ctx is cancelled,
// since the game connection does not push a frame stream of its own.
func (h *ReplayHandler) pollSource(ctx context.Context, interval time.Duration) replay.Source {
	ch := make(chan replay.SourceFrame, 64)
	util.SafeGo(func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				world, err := h.game.Snapshot(ctx, 0)
				if err != nil {
					continue
				}
				select {
				case ch <- replay.SourceFrame{World: world}:
				case <-ctx.Done():
					return
				}
			}
		}
	})
	return replay.Source(ch)
}

func (h *ReplayHandler) stop(raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var p sessionParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid stop params")
		}
	}
	h.mu.Lock()
	cancel, ok := h.cancels[p.SessionName]
	delete(h.cancels, p.SessionName)
	h.mu.Unlock()
	if ok {
		cancel()
	}
	if err := h.engine.StopRecording(p.SessionName); err != nil {
		return nil, nil, err
	}
	return Output{Data: map[string]string{"status": "ok"}, Status: model.CacheBypass}, nil, nil
}

func (h *ReplayHandler) replayAction(raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var p replayParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid replay params")
	}
	pb, err := h.engine.Playback(p.SessionName)
	if err != nil {
		return nil, nil, err
	}
	if err := pb.Replay(p.StartFrame); err != nil {
		return nil, nil, err
	}
	return Output{Data: map[string]any{"state": pb.State(), "frame": pb.CurrentFrame()}, Status: model.CacheBypass}, nil, nil
}

func (h *ReplayHandler) step(raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var p stepParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid step params")
	}
	pb, err := h.engine.Playback(p.SessionName)
	if err != nil {
		return nil, nil, err
	}
	world, frame, err := pb.Step(p.Frames, p.Direction)
	if err != nil {
		return nil, nil, err
	}
	return Output{Data: map[string]any{"frame": frame, "world": world}, Status: model.CacheBypass}, nil, nil
}

func (h *ReplayHandler) seek(raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var p seekParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid seek params")
	}
	pb, err := h.engine.Playback(p.SessionName)
	if err != nil {
		return nil, nil, err
	}
	world, frame, err := pb.Seek(p.TargetFrame, p.Relative)
	if err != nil {
		return nil, nil, err
	}
	return Output{Data: map[string]any{"frame": frame, "world": world}, Status: model.CacheBypass}, nil, nil
}

func (h *ReplayHandler) checkpoint(raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var p checkpointParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid checkpoint params")
	}
	if err := h.engine.Checkpoint(p.SessionName, p.Name, p.Frame, p.Description); err != nil {
		return nil, nil, err
	}
	return Output{Data: map[string]string{"status": "ok"}, Status: model.CacheBypass}, nil, nil
}

func (h *ReplayHandler) branch(raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var p branchParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid branch params")
	}
	child, err := h.engine.Branch(p.ParentSessionName, p.ForkFrame, p.ChildSessionName)
	if err != nil {
		return nil, nil, err
	}
	return Output{Data: map[string]string{"recording_id": child.ID()}, Status: model.CacheBypass}, nil, nil
}

func (h *ReplayHandler) compare(raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var p compareParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid compare params")
	}
	if p.TopN <= 0 {
		p.TopN = 10
	}
	cmp, err := h.engine.Compare(p.SessionA, p.SessionB, p.CheckpointName, p.Span, p.TopN)
	if err != nil {
		return nil, nil, err
	}
	return Output{Data: cmp, Status: model.CacheBypass}, nil, nil
}

func (h *ReplayHandler) analyze(raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var p analyzeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid analyze params")
	}
	rec, err := h.engine.Recording(p.SessionName)
	if err != nil {
		return nil, nil, err
	}
	header := rec.Header()
	return Output{Data: AnalyzeResult{
		FrameCount:  rec.LastFrameIndex() + 1,
		Checkpoints: rec.Checkpoints(),
		Quality:     header.Quality,
		Truncated:   header.Truncated,
	}, Status: model.CacheBypass}, nil, nil
}

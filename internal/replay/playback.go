// playback.go — the playback state machine (§4.E): idle/playing/paused/
// seeking/stopped, with step/seek/speed control. All transitions for one
// session are linearized by a per-session mutex (§5 "concurrent
// conflicting transitions are linearized by a session mutex").
package replay

import (
	"sync"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// SpeedBounds constrains speed_multiplier (§4.E "0.1 … 2.0 typical;
// enforced bounds configurable").
type SpeedBounds struct {
	Min, Max float64
}

// DefaultSpeedBounds is §4.E's stated typical range.
func DefaultSpeedBounds() SpeedBounds { return SpeedBounds{Min: 0.1, Max: 2.0} }

// Playback drives one playback session over a single Recording.
type Playback struct {
	mu     sync.Mutex
	rec    *Recording
	bounds SpeedBounds

	state        PlaybackState
	currentFrame int64
	speed        float64
}

// NewPlayback constructs an idle Playback session over rec.
func NewPlayback(rec *Recording, bounds SpeedBounds) *Playback {
	return &Playback{rec: rec, bounds: bounds, state: StateIdle, speed: 1.0}
}

// State returns the current playback state.
func (p *Playback) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CurrentFrame returns the frame the session is positioned at.
func (p *Playback) CurrentFrame() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentFrame
}

// Replay moves the session to `playing` at startFrame, valid from idle,
// paused, or stopped (§4.E).
func (p *Playback) Replay(startFrame int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle && p.state != StatePaused && p.state != StateStopped {
		return debugerr.New(debugerr.Unsupported, "replay is only valid from idle, paused, or stopped").WithContext("state", string(p.state))
	}
	if err := p.rec.ValidateFrameIndex(startFrame); err != nil {
		return err
	}
	p.currentFrame = startFrame
	p.state = StatePlaying
	return nil
}

// Pause transitions to `paused`.
func (p *Playback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StatePaused
}

// Stop transitions to `stopped`.
func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateStopped
}

// Step advances exactly n frames forward or backward by reconstruction;
// valid only in `paused`; remains paused (§4.E). step(0) is a no-op
// returning the current frame (§8 boundary behavior).
func (p *Playback) Step(n int, direction string) (model.WorldSnapshot, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePaused {
		return model.WorldSnapshot{}, 0, debugerr.New(debugerr.Unsupported, "step is only valid while paused").WithContext("state", string(p.state))
	}
	if n == 0 {
		world, err := p.rec.Reconstruct(p.currentFrame)
		return world, p.currentFrame, err
	}

	delta := int64(n)
	if direction == "backward" {
		delta = -delta
	}
	target := p.currentFrame + delta
	if err := p.rec.ValidateFrameIndex(target); err != nil {
		return model.WorldSnapshot{}, p.currentFrame, err
	}
	world, err := p.rec.Reconstruct(target)
	if err != nil {
		return model.WorldSnapshot{}, p.currentFrame, err
	}
	p.currentFrame = target
	return world, target, nil
}

// Seek reconstructs the target frame, transitioning through `seeking`
// and back to the preceding state if that was playing or paused; from
// idle or stopped it ends in paused (§4.E). relative, when true,
// treats target as an offset from the current frame instead of an
// absolute index.
func (p *Playback) Seek(target int64, relative bool) (model.WorldSnapshot, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prevState := p.state
	absTarget := target
	if relative {
		absTarget = p.currentFrame + target
	}
	if err := p.rec.ValidateFrameIndex(absTarget); err != nil {
		return model.WorldSnapshot{}, p.currentFrame, err
	}

	p.state = StateSeeking
	world, err := p.rec.Reconstruct(absTarget)
	if err != nil {
		p.state = prevState
		return model.WorldSnapshot{}, p.currentFrame, err
	}
	p.currentFrame = absTarget

	if prevState == StatePlaying || prevState == StatePaused {
		p.state = prevState
	} else {
		p.state = StatePaused
	}
	return world, absTarget, nil
}

// SetSpeed validates and applies a new speed_multiplier. Speed 0 is
// never permitted (§4.E "use pause"); out-of-bounds values return
// invalid_argument (§8 boundary behavior).
func (p *Playback) SetSpeed(multiplier float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if multiplier == 0 {
		return debugerr.New(debugerr.InvalidArgument, "speed_multiplier of 0 is not permitted; use pause instead")
	}
	if multiplier < p.bounds.Min || multiplier > p.bounds.Max {
		return debugerr.New(debugerr.InvalidArgument, "speed_multiplier out of configured bounds").
			WithContext("min", p.bounds.Min).WithContext("max", p.bounds.Max)
	}
	p.speed = multiplier
	return nil
}

// Speed returns the current speed multiplier.
func (p *Playback) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

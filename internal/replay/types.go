// Package replay implements the Recorder / Replay Engine (§4.E): frame
// capture with periodic keyframes, pure delta reconstruction, a playback
// state machine with seek/step/speed control, branching with shared
// parent prefixes, and recording comparison.
//
// Adapted from the teacher's internal/recording package (session-scoped
// capture with a ring-buffered in-memory window flushed to disk) and
// internal/capture/recording_manager.go (start/stop lifecycle, content
// checksums on commit), generalized from "record a browser session" to
// "record a reconstructible world timeline with keyframes and branches."
package replay

import (
	"time"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// QualityLevel maps to a fixed schema of which fields are captured (§4.E).
type QualityLevel string

const (
	QualityFull        QualityLevel = "full"
	QualityMinimal     QualityLevel = "minimal"
	QualityPerformance QualityLevel = "performance"
	QualityCustom      QualityLevel = "custom"
)

// ComponentChange is one changed component within a frame delta.
type ComponentChange struct {
	Entity    model.EntityRef        `json:"entity"`
	Component string                 `json:"component"`
	Before    model.ComponentValue   `json:"before,omitempty"`
	After     model.ComponentValue   `json:"after,omitempty"`
}

// Delta is the set of added/removed/changed entities and components
// between consecutive frames (§3, GLOSSARY).
type Delta struct {
	Added   []model.EntitySnapshot `json:"added,omitempty"`
	Removed []model.EntityRef      `json:"removed,omitempty"`
	Changed []ComponentChange      `json:"changed,omitempty"`
}

// IsEmpty reports whether the delta carries no changes at all.
func (d Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// CapturedInputs is the recorded external input for one frame (§3).
type CapturedInputs struct {
	Keyboard []string        `json:"keyboard,omitempty"`
	Mouse    []MouseDelta    `json:"mouse,omitempty"`
	Network  []NetworkDelta  `json:"network,omitempty"`
}

// MouseDelta is one recorded mouse movement/button event.
type MouseDelta struct {
	DX      float64  `json:"dx,omitempty"`
	DY      float64  `json:"dy,omitempty"`
	Buttons []string `json:"buttons,omitempty"`
}

// NetworkDelta is one recorded inbound/outbound network event relevant
// to deterministic playback of networked behavior.
type NetworkDelta struct {
	Direction string `json:"direction"`
	Payload   []byte `json:"payload,omitempty"`
}

// Frame is the smallest recorded time unit (GLOSSARY).
type Frame struct {
	Index     int64            `json:"index"`
	Timestamp time.Time        `json:"timestamp"`
	Keyframe  bool             `json:"keyframe"`
	Snapshot  *model.WorldSnapshot `json:"snapshot,omitempty"` // only set when Keyframe
	Delta     Delta            `json:"delta,omitempty"`       // only meaningful when !Keyframe
	Seed      int64            `json:"seed"`
	Inputs    CapturedInputs   `json:"inputs,omitempty"`
}

// Header describes a recording's fixed properties, stored alongside it
// (§6 recordings/<id>/header.json) so playback knows the fidelity it was
// captured at.
type Header struct {
	SchemaVersion     int          `json:"schema_version"`
	RecordingID       string       `json:"recording_id"`
	Quality           QualityLevel `json:"quality"`
	KeyframeInterval  int          `json:"keyframe_interval"`
	Deterministic     bool         `json:"deterministic_mode"`
	NormalizeFloats   bool         `json:"normalize_floats"`
	CreatedAt         time.Time    `json:"created_at"`
	SelectiveFilter   *Filter      `json:"selective_filter,omitempty"`
	Truncated         bool         `json:"truncated"`
}

// Filter is a selective-recording inclusion list (§4.E).
type Filter struct {
	Entities   []model.EntityRef `json:"entities,omitempty"`
	Components []string          `json:"components,omitempty"`
	Systems    []string          `json:"systems,omitempty"`
	Events     []string          `json:"events,omitempty"`
}

// Includes reports whether f permits the given component type name. A nil
// filter or one with an empty Components list permits everything.
func (f *Filter) Includes(component string) bool {
	if f == nil || len(f.Components) == 0 {
		return true
	}
	for _, c := range f.Components {
		if c == component {
			return true
		}
	}
	return false
}

// Checkpoint is a named reference to a frame index (§3).
type Checkpoint struct {
	Name        string `json:"name"`
	FrameIndex  int64  `json:"frame_index"`
	Description string `json:"description,omitempty"`
	Automatic   bool   `json:"automatic"`
}

// BranchRecord is the persisted (parent, fork_frame) pointer for a branch
// recording (§3, §6 recordings/<id>/branches.json).
type BranchRecord struct {
	ParentID  string `json:"parent_id"`
	ForkFrame int64  `json:"fork_frame"`
}

// PlaybackState is one of the five states from §4.E.
type PlaybackState string

const (
	StateIdle    PlaybackState = "idle"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
	StateSeeking PlaybackState = "seeking"
	StateStopped PlaybackState = "stopped"
)

// ConditionalCheckpoint is a predicate evaluated every frame during
// recording; on first match it inserts an automatic checkpoint (§4.E).
type ConditionalCheckpoint struct {
	Name      string
	Predicate func(world model.WorldSnapshot) bool
	fired     bool
}

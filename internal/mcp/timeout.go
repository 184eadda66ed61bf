// timeout.go — per-request deadline overrides for the tool channel (§6,
// §4.F): most tools fall back to the dispatcher's default deadline, but a
// few carry a request-scoped duration (experiment/stress/hypothesis
// durations) that the dispatcher's fixed default can't know about, and
// replay's blocking `replay` action gets a fixed longer bound.
//
// Adapted from the teacher's bridge.ToolCallTimeout, generalized from its
// fixed tool/action table to this system's six tools and their duration
// fields.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// toolCallDeadline returns the deadline override for one tools/call
// invocation, or 0 to let the dispatcher apply its configured default.
func toolCallDeadline(name model.ToolName, rawArgs json.RawMessage) time.Duration {
	switch name {
	case model.ToolExperiment:
		var a struct {
			DurationSeconds int `json:"duration_seconds"`
		}
		if json.Unmarshal(rawArgs, &a) == nil && a.DurationSeconds > 0 {
			return durationWithSlack(a.DurationSeconds)
		}
	case model.ToolStressTest:
		var a struct {
			Duration int `json:"duration"`
		}
		if json.Unmarshal(rawArgs, &a) == nil && a.Duration > 0 {
			return durationWithSlack(a.Duration)
		}
	case model.ToolHypothesis:
		var a struct {
			TestDuration int `json:"test_duration"`
			SampleSize   int `json:"sample_size"`
		}
		if json.Unmarshal(rawArgs, &a) == nil && a.TestDuration > 0 {
			samples := a.SampleSize
			if samples <= 0 {
				samples = hypothesisDefaultSampleSize
			}
			// Hypothesis runs test_duration seconds per sample, twice
			// (control + treatment group), sequentially.
			return durationWithSlack(a.TestDuration * samples * 2)
		}
	case model.ToolReplay:
		var a struct {
			Action string `json:"action"`
		}
		if json.Unmarshal(rawArgs, &a) == nil && a.Action == "replay" {
			return replayDeadlineSlack
		}
	}
	return 0
}

// replayDeadlineSlack bounds a `replay` action's own blocking wait for
// however long the recording's stored frames take to walk.
const replayDeadlineSlack = 30 * time.Second

// hypothesisDefaultSampleSize is the per-arm sample count the hypothesis
// handler runs when sample_size is absent (its minHypothesisSampleSize).
const hypothesisDefaultSampleSize = 5

// deadlineSlack is added on top of a tool's own requested duration to
// cover connection round-trips and cache/budget bookkeeping around it.
const deadlineSlack = 5 * time.Second

func durationWithSlack(seconds int) time.Duration {
	return time.Duration(seconds)*time.Second + deadlineSlack
}

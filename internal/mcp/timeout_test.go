package mcp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

func TestToolCallDeadline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tool model.ToolName
		args string
		want time.Duration
	}{
		{"observe has no override", model.ToolObserve, `{}`, 0},
		{"experiment without duration has no override", model.ToolExperiment, `{}`, 0},
		{"experiment with duration scales to it", model.ToolExperiment, `{"duration_seconds":10}`, 10*time.Second + deadlineSlack},
		{"stress_test with duration scales to it", model.ToolStressTest, `{"duration":20}`, 20*time.Second + deadlineSlack},
		{"hypothesis scales by duration and sample size", model.ToolHypothesis, `{"test_duration":5,"sample_size":3}`, 5*time.Second*3*2 + deadlineSlack},
		{"hypothesis with no sample size uses the handler default of five", model.ToolHypothesis, `{"test_duration":5}`, 5*time.Second*5*2 + deadlineSlack},
		{"replay replay action gets slack", model.ToolReplay, `{"action":"replay"}`, replayDeadlineSlack},
		{"replay checkpoint action has no override", model.ToolReplay, `{"action":"checkpoint"}`, 0},
		{"malformed args has no override", model.ToolExperiment, `{bad json}`, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := toolCallDeadline(tc.tool, json.RawMessage(tc.args))
			if got != tc.want {
				t.Errorf("toolCallDeadline(%s, %s) = %v, want %v", tc.tool, tc.args, got, tc.want)
			}
		})
	}
}

package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

func newTestMonitor(hard time.Duration) *Monitor {
	return New(Config{
		Budgets:          map[model.ToolName]Budget{model.ToolObserve: {Soft: hard / 2, Hard: hard}},
		PercentileWindow: 10,
		Cooldown:         10 * time.Millisecond,
	})
}

func TestMonitor_ViolationRecordedOverHardBudget(t *testing.T) {
	m := newTestMonitor(50 * time.Millisecond)
	m.Record(model.ToolObserve, time.Now(), 200*time.Millisecond, model.OutcomeOK)
	report := m.Report()
	require.Len(t, report.TopOffenders, 1)
	assert.Equal(t, model.ToolObserve, report.TopOffenders[0].Sample.Tool)
}

func TestMonitor_CircuitOpensAfterRollingP95ExceedsBudget(t *testing.T) {
	m := newTestMonitor(50 * time.Millisecond)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Allow(model.ToolObserve))
		m.Record(model.ToolObserve, time.Now(), 200*time.Millisecond, model.OutcomeOK)
	}
	err := m.Allow(model.ToolObserve)
	require.Error(t, err)
}

func TestMonitor_HalfOpenProbeRecovers(t *testing.T) {
	m := newTestMonitor(50 * time.Millisecond)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Allow(model.ToolObserve))
		m.Record(model.ToolObserve, time.Now(), 200*time.Millisecond, model.OutcomeOK)
	}
	require.Error(t, m.Allow(model.ToolObserve))

	time.Sleep(15 * time.Millisecond) // let cooldown elapse

	require.NoError(t, m.Allow(model.ToolObserve), "half-open probe should be permitted after cooldown")
	m.Record(model.ToolObserve, time.Now(), 5*time.Millisecond, model.OutcomeOK)

	assert.NoError(t, m.Allow(model.ToolObserve), "breaker should have closed after a fast probe")
}

func TestMonitor_ClearHistoryResetsEverything(t *testing.T) {
	m := newTestMonitor(50 * time.Millisecond)
	m.Record(model.ToolObserve, time.Now(), 200*time.Millisecond, model.OutcomeOK)
	m.ClearHistory()
	report := m.Report()
	assert.Empty(t, report.TopOffenders)
	assert.False(t, report.CircuitOpen[model.ToolObserve])
}

// Package budget implements the Resource & Budget Monitor (§4.F): per-tool
// soft/hard latency budgets, a bounded sample/violation ring, rolling
// 95th-percentile circuit breakers with cool-down and half-open probing,
// and read-only compliance reporting.
//
// Adapted from the teacher's internal/capture/circuit_breaker.go streak-
// based rate limiter state machine, generalized from a single global
// rate-exceeded/ok streak to a per-tool rolling-percentile-over-hard-budget
// trigger, and from internal/capture/ring-buffer bookkeeping for the
// bounded sample history.
package budget

import (
	"sort"
	"sync"
	"time"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/buffers"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// Budget is a soft (warn) / hard (error) latency ceiling for one tool (§4.F).
type Budget struct {
	Soft time.Duration
	Hard time.Duration
}

// Config controls the monitor's rings, percentile window, and breaker
// cool-down.
type Config struct {
	Budgets          map[model.ToolName]Budget
	SampleRingSize   int // default 5000
	ViolationRing    int // default 500
	PercentileWindow int // samples considered for the rolling p95, per tool
	Cooldown         time.Duration
}

// breakerState tracks one tool's circuit breaker.
type breakerState struct {
	open          bool
	openedAt      time.Time
	halfOpenInUse bool
}

// Monitor is the budget/circuit-breaker service described in §4.F.
// Budget samples are shared between Monitor (writer) and Dispatcher
// (reader), per §3 ownership — Record is the only writer entry point;
// everything else is read-only.
type Monitor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[model.ToolName]*breakerState
	nowFunc  func() time.Time

	samples    *buffers.RingBuffer[model.BudgetSample]
	violations *buffers.RingBuffer[model.ViolationRecord]

	metrics *Metrics
}

// New constructs a Monitor from cfg, defaulting ring sizes and cooldown
// per §4.F/§3 when unset. Prometheus collectors are created and registered
// on a dedicated registry reachable via Metrics().Registry().
func New(cfg Config) *Monitor {
	if cfg.SampleRingSize <= 0 {
		cfg.SampleRingSize = 5000
	}
	if cfg.ViolationRing <= 0 {
		cfg.ViolationRing = 500
	}
	if cfg.PercentileWindow <= 0 {
		cfg.PercentileWindow = 50
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	breakers := make(map[model.ToolName]*breakerState, len(cfg.Budgets))
	for tool := range cfg.Budgets {
		breakers[tool] = &breakerState{}
	}
	return &Monitor{
		cfg:        cfg,
		breakers:   breakers,
		nowFunc:    time.Now,
		samples:    buffers.NewRingBuffer[model.BudgetSample](cfg.SampleRingSize),
		violations: buffers.NewRingBuffer[model.ViolationRecord](cfg.ViolationRing),
		metrics:    NewMetrics(),
	}
}

// Metrics returns the monitor's Prometheus collectors.
func (m *Monitor) Metrics() *Metrics { return m.metrics }

func (m *Monitor) breakerFor(tool model.ToolName) *breakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[tool]
	if !ok {
		b = &breakerState{}
		m.breakers[tool] = b
	}
	return b
}

// Allow gates a tool call against its circuit breaker (§4.F). When the
// breaker is open and the cool-down has not elapsed, it fails fast with
// budget_exceeded. Once the cool-down elapses, exactly one half-open probe
// is permitted to test recovery; concurrent callers during that probe
// still fail fast until the probe resolves via Record.
func (m *Monitor) Allow(tool model.ToolName) error {
	b := m.breakerFor(tool)
	m.mu.Lock()
	defer m.mu.Unlock()

	if !b.open {
		return nil
	}
	if m.nowFunc().Sub(b.openedAt) < m.cfg.Cooldown {
		return debugerr.New(debugerr.BudgetExceeded, "circuit open for tool "+string(tool))
	}
	if b.halfOpenInUse {
		return debugerr.New(debugerr.BudgetExceeded, "circuit half-open probe already in flight for tool "+string(tool))
	}
	b.halfOpenInUse = true
	return nil
}

// Record appends one completed call's timing to the bounded sample ring,
// records a violation if it exceeded its tool's hard budget, and
// re-evaluates that tool's circuit breaker.
func (m *Monitor) Record(tool model.ToolName, start time.Time, duration time.Duration, outcome model.ToolOutcomeKind) {
	sample := model.BudgetSample{Tool: tool, Start: start, Duration: duration, Outcome: outcome}
	m.samples.WriteOne(sample)
	m.metrics.observeCall(tool, outcome, duration.Seconds())

	budget, ok := m.cfg.Budgets[tool]
	if ok && duration > budget.Hard {
		m.violations.WriteOne(model.ViolationRecord{Sample: sample, HardBudget: budget.Hard})
		m.metrics.observeViolation(tool)
	}

	if !ok {
		return
	}
	m.evaluateBreaker(tool, budget)
}

// evaluateBreaker recomputes the rolling p95 for tool and opens/closes
// its breaker accordingly.
func (m *Monitor) evaluateBreaker(tool model.ToolName, budget Budget) {
	b := m.breakerFor(tool)

	m.mu.Lock()
	defer m.mu.Unlock()

	if b.open && b.halfOpenInUse {
		// The probe just completed (this Record call is its result).
		last := m.lastSampleFor(tool)
		if last != nil && last.Duration <= budget.Hard {
			b.open = false
			b.halfOpenInUse = false
		} else {
			// Probe failed: stay open, restart the cool-down.
			b.openedAt = m.nowFunc()
			b.halfOpenInUse = false
		}
		m.metrics.setCircuitOpen(tool, b.open)
		return
	}

	if b.open {
		return
	}

	p95 := m.percentileFor(tool, 0.95, m.cfg.PercentileWindow)
	if p95 > 0 && p95 > budget.Hard {
		b.open = true
		b.openedAt = m.nowFunc()
		m.metrics.setCircuitOpen(tool, true)
	}
}

func (m *Monitor) lastSampleFor(tool model.ToolName) *model.BudgetSample {
	all := m.samples.ReadAll()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Tool == tool {
			s := all[i]
			return &s
		}
	}
	return nil
}

// percentileFor computes the p-th percentile duration over the last
// `window` samples recorded for tool, returning 0 until `window` samples
// have been recorded for it. Caller must hold m.mu.
func (m *Monitor) percentileFor(tool model.ToolName, p float64, window int) time.Duration {
	all := m.samples.ReadAll()
	durations := make([]time.Duration, 0, window)
	for i := len(all) - 1; i >= 0 && len(durations) < window; i-- {
		if all[i].Tool == tool {
			durations = append(durations, all[i].Duration)
		}
	}
	if len(durations) == 0 || len(durations) < window {
		return 0
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	idx := int(p*float64(len(durations))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(durations) {
		idx = len(durations) - 1
	}
	return durations[idx]
}

// Snapshot is the read-only compliance report §4.F promises.
type Snapshot struct {
	CompliancePercent map[model.ToolName]float64       `json:"compliance_percent"`
	TopOffenders      []model.ViolationRecord          `json:"top_offenders"`
	CircuitOpen       map[model.ToolName]bool          `json:"circuit_open"`
}

// Report builds a Snapshot from current ring contents.
func (m *Monitor) Report() Snapshot {
	all := m.samples.ReadAll()
	totals := make(map[model.ToolName]int)
	violations := make(map[model.ToolName]int)
	for _, s := range all {
		totals[s.Tool]++
	}
	for _, v := range m.violations.ReadAll() {
		violations[v.Sample.Tool]++
	}

	compliance := make(map[model.ToolName]float64, len(totals))
	for tool, total := range totals {
		if total == 0 {
			continue
		}
		compliance[tool] = 100 * float64(total-violations[tool]) / float64(total)
	}

	top := m.violations.ReadLast(10)
	circuitOpen := make(map[model.ToolName]bool)
	m.mu.Lock()
	for tool, b := range m.breakers {
		circuitOpen[tool] = b.open
	}
	m.mu.Unlock()

	return Snapshot{CompliancePercent: compliance, TopOffenders: top, CircuitOpen: circuitOpen}
}

// ClearHistory resets both rings, per §4.F's `clear_history` action.
func (m *Monitor) ClearHistory() {
	m.samples.Clear()
	m.violations.Clear()
	m.mu.Lock()
	for tool, b := range m.breakers {
		*b = breakerState{}
		m.metrics.setCircuitOpen(tool, false)
	}
	m.mu.Unlock()
}

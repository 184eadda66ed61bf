// metrics.go — exposes the Budget Monitor's per-tool timings and breaker
// state as Prometheus collectors (§11 domain stack: "exposes a /metrics
// registry alongside the JSON health report"), grounded on the pack's
// haasonsaas-nexus use of prometheus/client_golang for service metrics.
package budget

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// Metrics wraps a dedicated Prometheus registry for the Budget Monitor.
// Constructed alongside a Monitor and fed from the same Record call.
type Metrics struct {
	registry       *prometheus.Registry
	callDuration   *prometheus.HistogramVec
	violationTotal *prometheus.CounterVec
	circuitOpen    *prometheus.GaugeVec
}

// NewMetrics constructs and registers the Budget Monitor's collectors on a
// fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bevy_debugger",
			Subsystem: "budget",
			Name:      "call_duration_seconds",
			Help:      "Tool call duration in seconds, by tool and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool", "outcome"}),
		violationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bevy_debugger",
			Subsystem: "budget",
			Name:      "violations_total",
			Help:      "Count of tool calls that exceeded their hard budget.",
		}, []string{"tool"}),
		circuitOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bevy_debugger",
			Subsystem: "budget",
			Name:      "circuit_open",
			Help:      "1 if a tool's circuit breaker is currently open, else 0.",
		}, []string{"tool"}),
	}
	m.registry.MustRegister(m.callDuration, m.violationTotal, m.circuitOpen)
	return m
}

// Registry returns the underlying Prometheus registry for an HTTP /metrics
// handler to serve.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) observeCall(tool model.ToolName, outcome model.ToolOutcomeKind, seconds float64) {
	m.callDuration.WithLabelValues(string(tool), string(outcome)).Observe(seconds)
}

func (m *Metrics) observeViolation(tool model.ToolName) {
	m.violationTotal.WithLabelValues(string(tool)).Inc()
}

func (m *Metrics) setCircuitOpen(tool model.ToolName, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.circuitOpen.WithLabelValues(string(tool)).Set(v)
}

package gameconn

import "time"

// HealthSnapshot is the read-only view §4.B promises callers: current
// state, last successful exchange, and bounded connection event history.
type HealthSnapshot struct {
	State        State     `json:"state"`
	LastExchange time.Time `json:"last_exchange"`
	Events       []Event   `json:"events"`
}

// Health returns a consistent snapshot of the manager's connection health.
func (m *Manager) Health() HealthSnapshot {
	return HealthSnapshot{
		State:        m.State(),
		LastExchange: m.LastExchange(),
		Events:       m.Events(),
	}
}

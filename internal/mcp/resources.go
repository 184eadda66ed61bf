// resources.go — the resources/read surface's concrete backing (§12):
// a read-only connection-health snapshot from the game connection
// manager and a budget-compliance snapshot from the resource monitor.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/budget"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/gameconn"
)

// DebugResources implements ResourceProvider over a live connection
// manager and budget monitor.
type DebugResources struct {
	Conn    *gameconn.Manager
	Monitor *budget.Monitor
}

type connectionHealthView struct {
	State        string            `json:"state"`
	LastExchange time.Time         `json:"last_exchange"`
	RecentEvents []gameconn.Event  `json:"recent_events"`
}

// ConnectionHealthJSON implements ResourceProvider.
func (r *DebugResources) ConnectionHealthJSON() ([]byte, error) {
	events := r.Conn.Events()
	if len(events) > 20 {
		events = events[len(events)-20:]
	}
	return json.Marshal(connectionHealthView{
		State:        string(r.Conn.State()),
		LastExchange: r.Conn.LastExchange(),
		RecentEvents: events,
	})
}

// BudgetComplianceJSON implements ResourceProvider.
func (r *DebugResources) BudgetComplianceJSON() ([]byte, error) {
	return json.Marshal(r.Monitor.Report())
}

// Package gameconn implements the Game Connection Manager (§4.B): the
// single persistent bidirectional transport to the game process, its
// connection state machine, exponential-backoff reconnection, request/
// response correlation, and health reporting.
//
// Adapted from the teacher's internal/bridge (connection-error
// classification, health probing) and internal/queries (pending-request
// bookkeeping with its own independent lock and a snapshot for health
// reporting), generalized from an HTTP daemon health check to a
// persistent websocket RPC transport.
package gameconn

// State is one of the five connection states from §4.B.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Event records one connection state transition for the bounded health
// history (§4.B "a bounded history of the last N connection events").
type Event struct {
	From State
	To   State
	When int64 // unix nanos; plain int64 so it can live in the generic ring buffer cheaply
	Note string
}

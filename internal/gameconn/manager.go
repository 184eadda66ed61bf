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

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/buffers"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/util"
)

const (
	heartbeatIdleAfter   = 10 * time.Second
	proactiveReconnectAt = 30 * time.Second
	eventHistorySize     = 256
)

// Config controls a Manager's behavior.
type Config struct {
	Host                 string
	Port                 int
	MaxReconnectAttempts int // 0 = unlimited
}

// pendingRequest tracks one in-flight request awaiting correlation.
type pendingRequest struct {
	req     Request
	resultC chan Response
	done    bool
}

// Manager owns the single persistent transport to the game (§4.B,
// §5 "the game transport is owned by the connection manager; only it
// reads and writes the socket").
type Manager struct {
	cfg    Config
	dial   Dialer
	logger zerolog.Logger

	mu           sync.Mutex
	state        State
	conn         Transport
	nextID       int64
	pending      map[int64]*pendingRequest
	lastExchange time.Time
	closed       bool
	connEpoch    uint64 // bumped on every (re)connect; guards stale reader goroutines

	events *buffers.RingBuffer[Event]

	cancel context.CancelFunc
	doneC  chan struct{}
}

// NewManager constructs a Manager. dial defaults to DialWebSocket when nil,
// letting tests inject a fake Dialer.
func NewManager(cfg Config, dial Dialer, logger zerolog.Logger) *Manager {
	if dial == nil {
		dial = DialWebSocket
	}
	return &Manager{
		cfg:     cfg,
		dial:    dial,
		logger:  logger,
		state:   StateDisconnected,
		pending: make(map[int64]*pendingRequest),
		events:  buffers.NewRingBuffer[Event](eventHistorySize),
	}
}

// Start begins the connect/reconnect loop in the background and returns
// immediately, without waiting for the first connection attempt; callers
// that need a live connection poll State().
func (m *Manager) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.doneC = make(chan struct{})
	m.mu.Unlock()

	util.SafeGo(func() {
		defer close(m.doneC)
		m.runLoop(runCtx)
	})
}

// Close tears the manager down permanently (§4.B "closed" is terminal).
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	conn := m.conn
	m.transition(StateClosed, "explicit shutdown")
	m.failAllPendingLocked(debugerr.New(debugerr.ConnectionLost, "connection manager closed"))
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	<-m.waitDone()
	return nil
}

func (m *Manager) waitDone() <-chan struct{} {
	m.mu.Lock()
	d := m.doneC
	m.mu.Unlock()
	if d == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return d
}

// State returns the manager's current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastExchange returns the timestamp of the last successful exchange.
func (m *Manager) LastExchange() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastExchange
}

// Events returns the bounded history of connection state transitions.
func (m *Manager) Events() []Event {
	return m.events.ReadAll()
}

// transition records a state change and appends it to the event history.
// Caller must hold mu.
func (m *Manager) transition(to State, note string) {
	from := m.state
	m.state = to
	m.events.WriteOne(Event{From: from, To: to, When: time.Now().UnixNano(), Note: note})
	m.logger.Debug().Str("from", string(from)).Str("to", string(to)).Str("note", note).Msg("connection state transition")
}

// runLoop drives connect → connected → reconnecting forever (or until
// MaxReconnectAttempts is exhausted, or Close is called).
func (m *Manager) runLoop(ctx context.Context) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.mu.Lock()
		m.transition(StateConnecting, "dialing game")
		m.mu.Unlock()

		conn, err := m.dial(ctx, m.cfg.Host, m.cfg.Port)
		if err != nil {
			attempts++
			if m.cfg.MaxReconnectAttempts > 0 && attempts > m.cfg.MaxReconnectAttempts {
				m.mu.Lock()
				m.transition(StateClosed, "max reconnect attempts exhausted")
				m.failAllPendingLocked(debugerr.Wrap(debugerr.ConnectionLost, err, "exhausted reconnect attempts"))
				m.mu.Unlock()
				return
			}
			if !m.sleepBackoff(ctx, attempts) {
				return
			}
			continue
		}

		attempts = 0
		m.mu.Lock()
		m.conn = conn
		m.connEpoch++
		epoch := m.connEpoch
		m.lastExchange = time.Now()
		m.transition(StateConnected, "handshake complete")
		pendingToReplay := m.snapshotPendingLocked()
		m.mu.Unlock()

		m.replayPending(pendingToReplay)

		// readLoop blocks until the connection dies (I/O error or Close).
		m.readLoop(ctx, conn, epoch)

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if m.conn == conn {
			m.conn = nil
		}
		m.transition(StateReconnecting, "connection lost")
		m.mu.Unlock()
		_ = conn.Close()
	}
}

// sleepBackoff waits the next exponential-backoff interval, honoring
// cancellation. Returns false if ctx was cancelled during the wait.
func (m *Manager) sleepBackoff(ctx context.Context, attempt int) bool {
	b := NewReconnectBackoff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		next, err := b.NextBackOff()
		if err != nil {
			d = b.MaxInterval
			break
		}
		d = next
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// readLoop owns the single reader of the transport (§5: "only it reads
// and writes the socket"). It also drives the idle heartbeat and the
// proactive-reconnect-on-silence rule.
func (m *Manager) readLoop(ctx context.Context, conn Transport, epoch uint64) {
	msgC := make(chan []byte, 16)
	errC := make(chan error, 1)

	util.SafeGo(func() {
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				errC <- err
				return
			}
			select {
			case msgC <- data:
			case <-ctx.Done():
				return
			}
		}
	})

	heartbeat := time.NewTicker(1 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errC:
			m.logger.Warn().Err(err).Msg("game transport read failed")
			return
		case data := <-msgC:
			m.mu.Lock()
			if m.connEpoch != epoch {
				m.mu.Unlock()
				return
			}
			m.lastExchange = time.Now()
			m.mu.Unlock()
			m.dispatchIncoming(data)
		case <-heartbeat.C:
			m.mu.Lock()
			idleFor := time.Since(m.lastExchange)
			stillCurrent := m.connEpoch == epoch
			m.mu.Unlock()
			if !stillCurrent {
				return
			}
			if idleFor >= proactiveReconnectAt {
				m.logger.Warn().Dur("idle", idleFor).Msg("no traffic for 30s, forcing reconnect")
				return
			}
			if idleFor >= heartbeatIdleAfter {
				_ = conn.WriteMessage(mustMarshalHeartbeat())
			}
		}
	}
}

func mustMarshalHeartbeat() []byte {
	b, _ := json.Marshal(Request{Method: "heartbeat", ID: 0})
	return b
}

// dispatchIncoming matches a raw response to its pending request by id.
// Unmatched responses are logged and dropped (§4.B).
func (m *Manager) dispatchIncoming(data []byte) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		m.logger.Warn().Err(err).Msg("malformed message from game, dropping")
		return
	}
	m.mu.Lock()
	pr, ok := m.pending[resp.ID]
	if ok {
		delete(m.pending, resp.ID)
	}
	m.mu.Unlock()
	if !ok {
		m.logger.Debug().Int64("id", resp.ID).Msg("unmatched response from game, dropping")
		return
	}
	pr.resultC <- resp
}

// Request sends one request and waits for its correlated response, or
// for ctx to be done. If the connection drops mid-flight, the request
// survives reconnection as long as it happens before ctx's deadline;
// otherwise it fails with connection_lost (§4.B).
func (m *Manager) Request(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, debugerr.New(debugerr.ConnectionLost, "connection manager is closed")
	}
	m.nextID++
	id := m.nextID
	req := Request{Method: method, Params: params, ID: id}
	pr := &pendingRequest{req: req, resultC: make(chan Response, 1)}
	m.pending[id] = pr
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		if err := conn.WriteMessage(mustMarshal(req)); err != nil {
			m.logger.Debug().Err(err).Msg("write failed, awaiting reconnect replay")
		}
	}

	select {
	case resp := <-pr.resultC:
		return m.resolveResponse(resp)
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, debugerr.Wrap(debugerr.ConnectionLost, ctx.Err(), fmt.Sprintf("request %q timed out waiting for game", method)).WithContext("request_id", id)
	}
}

func (m *Manager) resolveResponse(resp Response) (json.RawMessage, error) {
	if resp.Error != nil {
		return nil, debugerr.New(debugerr.ProtocolError, resp.Error.Message).WithContext("code", resp.Error.Code)
	}
	return resp.Result, nil
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// snapshotPendingLocked returns requests to replay on a fresh connection.
// Caller must hold mu.
func (m *Manager) snapshotPendingLocked() []Request {
	out := make([]Request, 0, len(m.pending))
	for _, pr := range m.pending {
		out = append(out, pr.req)
	}
	return out
}

func (m *Manager) replayPending(reqs []Request) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}
	for _, req := range reqs {
		if err := conn.WriteMessage(mustMarshal(req)); err != nil {
			m.logger.Warn().Err(err).Int64("id", req.ID).Msg("failed to replay pending request on reconnect")
			return
		}
	}
}

func (m *Manager) failAllPendingLocked(err error) {
	for id, pr := range m.pending {
		pr.resultC <- Response{ID: id, Error: &RPCError{Code: -1, Message: err.Error()}}
		delete(m.pending, id)
	}
}

// jitterDuration returns base shifted by a random amount within ±factor
// of base. It is package-private and has no callers at present.
func jitterDuration(base time.Duration, factor float64) time.Duration {
	delta := float64(base) * factor * (rand.Float64()*2 - 1) // #nosec G404 -- timing jitter, not security sensitive
	return base + time.Duration(delta)
}

package gameconn

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport driven entirely by the test:
// requests written by the manager land in `writes`; the test pushes
// canned responses into `reads`.
type fakeTransport struct {
	mu     sync.Mutex
	writes chan []byte
	reads  chan []byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{writes: make(chan []byte, 32), reads: make(chan []byte, 32)}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	data, ok := <-f.reads
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return io.ErrClosedPipe
	}
	f.writes <- data
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.reads)
	}
	return nil
}

func testManager(t *testing.T, dial Dialer) *Manager {
	t.Helper()
	m := NewManager(Config{Host: "localhost", Port: 15702}, dial, zeroLogger())
	return m
}

func TestManager_RequestResponseRoundTrip(t *testing.T) {
	ft := newFakeTransport()
	dial := func(ctx context.Context, host string, port int) (Transport, error) { return ft, nil }
	m := testManager(t, dial)
	m.Start(context.Background())
	defer m.Close()

	waitForState(t, m, StateConnected)

	go func() {
		raw := <-ft.writes
		var req Request
		require.NoError(t, json.Unmarshal(raw, &req))
		resp := Response{ID: req.ID, Result: json.RawMessage(`{"ok":true}`)}
		b, _ := json.Marshal(resp)
		ft.reads <- b
	}()

	result, err := m.Request(context.Background(), MethodListEntities, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestManager_UnmatchedResponseDropped(t *testing.T) {
	ft := newFakeTransport()
	dial := func(ctx context.Context, host string, port int) (Transport, error) { return ft, nil }
	m := testManager(t, dial)
	m.Start(context.Background())
	defer m.Close()

	waitForState(t, m, StateConnected)

	// Push a response with no matching pending request. Should not panic
	// or block; should simply be dropped.
	b, _ := json.Marshal(Response{ID: 999, Result: json.RawMessage(`{}`)})
	ft.reads <- b

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateConnected, m.State())
}

func TestManager_RequestTimeoutWhenNoResponse(t *testing.T) {
	ft := newFakeTransport()
	dial := func(ctx context.Context, host string, port int) (Transport, error) { return ft, nil }
	m := testManager(t, dial)
	m.Start(context.Background())
	defer m.Close()

	waitForState(t, m, StateConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := m.Request(ctx, MethodListEntities, nil)
	require.Error(t, err)
}

func TestManager_ReconnectsAfterDisconnect(t *testing.T) {
	var dialCount int
	var mu sync.Mutex
	var transports []*fakeTransport

	dial := func(ctx context.Context, host string, port int) (Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		dialCount++
		ft := newFakeTransport()
		transports = append(transports, ft)
		return ft, nil
	}

	m := testManager(t, dial)
	m.Start(context.Background())
	defer m.Close()

	waitForState(t, m, StateConnected)

	mu.Lock()
	first := transports[0]
	mu.Unlock()
	_ = first.Close()

	waitForState(t, m, StateConnected)

	mu.Lock()
	count := dialCount
	mu.Unlock()
	assert.GreaterOrEqual(t, count, 2)
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("manager did not reach state %s, last state %s", want, m.State())
}

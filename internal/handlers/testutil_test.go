package handlers

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/gameconn"
)

// fakeTransport is an in-memory gameconn.Transport driven by the test's
// responder function, mirroring gameconn's own internal fake.
type fakeTransport struct {
	mu     sync.Mutex
	writes chan []byte
	reads  chan []byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{writes: make(chan []byte, 64), reads: make(chan []byte, 64)}
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

// gameHandlerFunc computes a canned result (or error) for one inspection
// method call, used to script a fake game process's responses.
type gameHandlerFunc func(method string, params json.RawMessage) (json.RawMessage, error)

// newTestGameClient spins up a GameClient backed by an in-memory fake
// transport, answering every request with handle.
func newTestGameClient(t *testing.T, handle gameHandlerFunc) *GameClient {
	t.Helper()
	ft := newFakeTransport()
	dial := func(ctx context.Context, host string, port int) (gameconn.Transport, error) { return ft, nil }
	mgr := gameconn.NewManager(gameconn.Config{Host: "localhost", Port: 15702}, dial, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mgr.Start(ctx)
	t.Cleanup(func() { _ = mgr.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for mgr.State() != gameconn.StateConnected && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	go func() {
		for raw := range ft.writes {
			var req gameconn.Request
			if err := json.Unmarshal(raw, &req); err != nil {
				continue
			}
			result, err := handle(req.Method, req.Params)
			resp := gameconn.Response{ID: req.ID}
			if err != nil {
				resp.Error = &gameconn.RPCError{Code: 1, Message: err.Error()}
			} else {
				resp.Result = result
			}
			b, _ := json.Marshal(resp)
			ft.mu.Lock()
			if !ft.closed {
				ft.reads <- b
			}
			ft.mu.Unlock()
		}
	}()

	return NewGameClient(mgr)
}

func mustMarshalJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

type fakeHandler struct {
	delay   time.Duration
	value   any
	err     error
	panicOn bool
}

func (f *fakeHandler) Execute(ctx context.Context, args json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	if f.panicOn {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return f.value, nil, f.err
}

func newDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	d, err := New(cfg, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	return d
}

func TestDispatcher_ValidationRejectsMissingRequiredField(t *testing.T) {
	d := newDispatcher(t, Config{})
	d.Register(model.ToolObserve, &fakeHandler{value: "ok"})
	result := d.Call(context.Background(), model.ToolObserve, json.RawMessage(`{}`), 0)
	assert.Equal(t, model.OutcomeError, result.Outcome)
	assert.Equal(t, string(debugerr.InvalidArgument), result.ErrKind)
}

func TestDispatcher_SuccessfulCall(t *testing.T) {
	d := newDispatcher(t, Config{})
	d.Register(model.ToolObserve, &fakeHandler{value: "ok"})
	result := d.Call(context.Background(), model.ToolObserve, json.RawMessage(`{"query":"all"}`), 0)
	assert.Equal(t, model.OutcomeOK, result.Outcome)
	assert.Equal(t, "ok", result.Value)
}

func TestDispatcher_DeadlineExceeded(t *testing.T) {
	d := newDispatcher(t, Config{})
	d.Register(model.ToolObserve, &fakeHandler{delay: 100 * time.Millisecond, value: "ok"})
	result := d.Call(context.Background(), model.ToolObserve, json.RawMessage(`{"query":"all"}`), 10*time.Millisecond)
	assert.Equal(t, model.OutcomeError, result.Outcome)
	assert.Equal(t, string(debugerr.Timeout), result.ErrKind)
}

func TestDispatcher_PanicRecoveredAsInternalError(t *testing.T) {
	d := newDispatcher(t, Config{})
	d.Register(model.ToolObserve, &fakeHandler{panicOn: true})
	result := d.Call(context.Background(), model.ToolObserve, json.RawMessage(`{"query":"all"}`), 0)
	assert.Equal(t, model.OutcomeError, result.Outcome)
	assert.Equal(t, string(debugerr.Internal), result.ErrKind)
}

func TestDispatcher_OverloadedWhenQueueFull(t *testing.T) {
	d := newDispatcher(t, Config{QueueDepth: 1})
	d.Register(model.ToolObserve, &fakeHandler{delay: 100 * time.Millisecond, value: "ok"})

	var wg sync.WaitGroup
	results := make([]model.ToolResult, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Call(context.Background(), model.ToolObserve, json.RawMessage(`{"query":"all"}`), time.Second)
		}(i)
	}
	wg.Wait()

	overloaded := 0
	for _, r := range results {
		if r.Outcome == model.OutcomeError && r.ErrKind == string(debugerr.Overloaded) {
			overloaded++
		}
	}
	assert.GreaterOrEqual(t, overloaded, 1)
}

func TestDispatcher_UnknownToolIsUnsupported(t *testing.T) {
	d := newDispatcher(t, Config{})
	result := d.Call(context.Background(), model.ToolName("not_a_tool"), json.RawMessage(`{}`), 0)
	assert.Equal(t, model.OutcomeError, result.Outcome)
	assert.Equal(t, string(debugerr.Unsupported), result.ErrKind)
}

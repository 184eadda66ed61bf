// Package dispatcher implements the Tool Dispatcher (§4.A): argument
// validation against the per-tool schema, call-id/deadline assignment,
// concurrent routing to handlers, bounded-queue backpressure, and panic
// containment.
//
// Adapted from the teacher's cmd/dev-console/tools.go dispatch table
// (name → handler lookup) and internal/capture/rate_limit.go (bounded
// concurrent-work admission), generalized from the teacher's single HTTP
// request per tool call to this core's concurrent-call-with-deadline model.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/budget"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/cache"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// Handler is the uniform (validate-already-done, execute, invalidate)
// capability every tool implements (§9 "Dynamic dispatch across tools" —
// express as a tagged union of handlers rather than runtime polymorphism).
type Handler interface {
	// Execute runs the tool's workflow. It returns the result value and
	// the set of cache tags to invalidate on success (empty for pure
	// reads like observe).
	Execute(ctx context.Context, args json.RawMessage) (any, map[model.CacheTag]struct{}, error)
}

// Config controls dispatcher-wide limits (§4.A).
type Config struct {
	QueueDepth      int           // default 64
	DefaultDeadline time.Duration // default 30s
}

// Dispatcher routes validated tool calls to handlers under a bounded
// concurrency budget, enforcing per-call deadlines and converting handler
// panics to internal errors (§4.A).
type Dispatcher struct {
	cfg      Config
	handlers map[model.ToolName]Handler
	schemas  map[model.ToolName]*jsonschema.Schema
	queue    chan struct{}
	cache    *cache.Cache
	monitor  *budget.Monitor
	logger   zerolog.Logger
}

// New constructs a Dispatcher. cacheSvc and monitor may be nil in tests
// that don't exercise caching/budget reporting.
func New(cfg Config, cacheSvc *cache.Cache, monitor *budget.Monitor, logger zerolog.Logger) (*Dispatcher, error) {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = 30 * time.Second
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		cfg:      cfg,
		handlers: make(map[model.ToolName]Handler),
		schemas:  schemas,
		queue:    make(chan struct{}, cfg.QueueDepth),
		cache:    cacheSvc,
		monitor:  monitor,
		logger:   logger,
	}, nil
}

// Register wires a tool name to its handler. Called once per tool at
// startup.
func (d *Dispatcher) Register(name model.ToolName, h Handler) {
	d.handlers[name] = h
}

// Call validates, schedules, and awaits one tool call, returning a
// ToolResult that always carries Elapsed and Cache even on error (§7
// "successful responses include an elapsed_ms field and a cache tag" —
// extended here to error responses too, since callers report elapsed
// uniformly).
func (d *Dispatcher) Call(ctx context.Context, name model.ToolName, rawArgs json.RawMessage, deadlineOverride time.Duration) model.ToolResult {
	start := time.Now()
	callID := uuid.NewString()

	if err := d.validate(name, rawArgs); err != nil {
		return errResult(callID, start, err)
	}

	if d.monitor != nil {
		if err := d.monitor.Allow(name); err != nil {
			return errResult(callID, start, err)
		}
	}

	select {
	case d.queue <- struct{}{}:
	default:
		err := debugerr.New(debugerr.Overloaded, "tool call queue is full, retry shortly").
			WithContext("call_id", callID)
		return errResult(callID, start, err)
	}
	defer func() { <-d.queue }()

	deadline := d.cfg.DefaultDeadline
	if deadlineOverride > 0 {
		deadline = deadlineOverride
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	handler, ok := d.handlers[name]
	if !ok {
		err := debugerr.New(debugerr.Unsupported, fmt.Sprintf("no handler registered for tool %q", name)).
			WithContext("call_id", callID)
		return errResult(callID, start, err)
	}

	resultC := make(chan handlerOutcome, 1)
	go d.runHandler(callCtx, handler, rawArgs, callID, resultC)

	select {
	case <-callCtx.Done():
		outcome := model.OutcomeError
		if d.monitor != nil {
			d.monitor.Record(name, start, time.Since(start), outcome)
		}
		return errResult(callID, start, debugerr.New(debugerr.Timeout, fmt.Sprintf("tool %q exceeded its deadline", name)).WithContext("call_id", callID))
	case out := <-resultC:
		elapsed := time.Since(start)
		outcome := model.OutcomeOK
		if out.err != nil {
			outcome = model.OutcomeError
		}
		if d.monitor != nil {
			d.monitor.Record(name, start, elapsed, outcome)
		}
		if out.err != nil {
			return errResult(callID, start, out.err)
		}
		if d.cache != nil && len(out.invalidate) > 0 {
			d.cache.Invalidate(out.invalidate)
		}
		return model.ToolResult{
			CallID:  callID,
			Outcome: model.OutcomeOK,
			Value:   out.value,
			Elapsed: elapsed,
			Cache:   out.cacheStatus,
		}
	}
}

type handlerOutcome struct {
	value       any
	invalidate  map[model.CacheTag]struct{}
	err         error
	cacheStatus model.CacheStatus
}

// runHandler executes the handler with panic recovery (§4.A "handler
// panics are converted to error(internal); they never crash the process").
func (d *Dispatcher) runHandler(ctx context.Context, h Handler, args json.RawMessage, callID string, out chan<- handlerOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("call_id", callID).Msg("tool handler panicked")
			out <- handlerOutcome{err: debugerr.New(debugerr.Internal, fmt.Sprintf("handler panicked: %v", r)).WithContext("call_id", callID)}
		}
	}()
	value, invalidate, err := h.Execute(ctx, args)
	status := model.CacheMiss
	if cs, ok := value.(cacheStatusCarrier); ok {
		status = cs.CacheStatus()
	}
	out <- handlerOutcome{value: value, invalidate: invalidate, err: err, cacheStatus: status}
}

// cacheStatusCarrier lets a handler's result value report the cache
// status (hit/miss/bypass/coalesced) it observed internally, since only
// the handler (via the command cache) knows it.
type cacheStatusCarrier interface {
	CacheStatus() model.CacheStatus
}

func (d *Dispatcher) validate(name model.ToolName, raw json.RawMessage) error {
	schema, ok := d.schemas[name]
	if !ok {
		return debugerr.New(debugerr.Unsupported, fmt.Sprintf("unknown tool %q", name))
	}
	var doc any
	if len(raw) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(raw, &doc); err != nil {
		return debugerr.Wrap(debugerr.InvalidArgument, err, "arguments are not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return debugerr.Wrap(debugerr.InvalidArgument, err, "arguments failed schema validation",
			"check the tool's argument schema via tools/list")
	}
	return nil
}

func errResult(callID string, start time.Time, err error) model.ToolResult {
	de, _ := debugerr.As(err)
	if de == nil {
		de = debugerr.New(debugerr.Internal, err.Error())
	}
	return model.ToolResult{
		CallID:      callID,
		Outcome:     model.OutcomeError,
		ErrKind:     string(de.Kind),
		ErrMessage:  de.Message,
		Suggestions: de.Suggestions,
		Elapsed:     time.Since(start),
		Cache:       model.CacheBypass,
	}
}

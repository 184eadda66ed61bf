// observe.go — the observe handler (§4.D.1): translates a query string
// into an inspection request, returning either the current world subset
// or, with diff=true, the symmetric difference against the last result
// seen for that same query.
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/cache"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/replay"
)

// observeCacheTTL is §4.F's observe cache TTL ("Pure read; cache TTL 1 s").
const observeCacheTTL = time.Second

// ObserveArgs is observe's argument contract (§6).
type ObserveArgs struct {
	Query      string `json:"query"`
	Diff       bool   `json:"diff"`
	Reflection bool   `json:"reflection"`
}

// ObserveResult is observe's result shape: either a snapshot, or — with
// diff requested — an added/removed/changed delta against the last
// observation of the same query made through this handler. The last
// result is kept per query only, not per caller session.
type ObserveResult struct {
	Entities []model.EntitySnapshot    `json:"entities,omitempty"`
	Types    []string                  `json:"types,omitempty"`
	Added    []model.EntitySnapshot    `json:"added,omitempty"`
	Removed  []model.EntityRef         `json:"removed,omitempty"`
	Changed  []replay.ComponentChange  `json:"changed,omitempty"`
}

// ObserveHandler implements dispatcher.Handler for the observe tool.
type ObserveHandler struct {
	game  *GameClient
	cache *cache.Cache

	mu         sync.Mutex
	lastResult map[string]model.WorldSnapshot // keyed by query, for diff mode
}

// NewObserveHandler constructs an ObserveHandler.
func NewObserveHandler(game *GameClient, c *cache.Cache) *ObserveHandler {
	return &ObserveHandler{game: game, cache: c, lastResult: make(map[string]model.WorldSnapshot)}
}

// Execute implements dispatcher.Handler.
func (h *ObserveHandler) Execute(ctx context.Context, raw json.RawMessage) (any, map[model.CacheTag]struct{}, error) {
	var args ObserveArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, nil, debugerr.Wrap(debugerr.InvalidArgument, err, "invalid observe arguments")
	}

	key := model.CacheKey{Tool: model.ToolObserve, Canonical: args.Query}
	tags := tagsForQuery(args.Query)

	result, err := h.cache.GetOrCompute(key, observeCacheTTL, tags, false, true, func() (any, error) {
		return h.game.QueryWorld(ctx, args.Query)
	})
	if err != nil {
		return nil, nil, err
	}
	world := result.Value.(model.WorldSnapshot)

	var types []string
	if args.Reflection {
		types, err = h.game.ListTypes(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	if !args.Diff {
		return Output{Data: ObserveResult{Entities: world.Entities, Types: types}, Status: result.Status}, nil, nil
	}

	h.mu.Lock()
	prev, had := h.lastResult[args.Query]
	h.lastResult[args.Query] = world
	h.mu.Unlock()

	if !had {
		return Output{Data: ObserveResult{Entities: world.Entities, Types: types}, Status: result.Status}, nil, nil
	}

	delta := replay.DiffWorlds(prev, world)
	return Output{Data: ObserveResult{
		Added:   delta.Added,
		Removed: delta.Removed,
		Changed: delta.Changed,
		Types:   types,
	}, Status: result.Status}, nil, nil
}

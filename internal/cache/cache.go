// Package cache implements the Command Cache (§4.C): single-flight
// collapsing of concurrent identical requests, TTL'd response caching for
// idempotent tools, tag-based invalidation on mutation, and LRU eviction.
//
// Adapted from the teacher's internal/capture/ttl.go (TTL bookkeeping) and
// internal/capture/queries.go (dedup-in-flight-work bookkeeping), combined
// here with golang.org/x/sync/singleflight for the collapsing role the
// teacher's bespoke queue played for extension RPCs.
package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// Cache is the concurrent, tag-invalidated, LRU-bounded response cache
// plus single-flight layer described in §4.C. Zero value is not usable;
// construct with New.
type Cache struct {
	mu       sync.Mutex
	entries  map[model.CacheKey]*list.Element // value *entryNode
	order    *list.List                       // front = most recently used
	maxSize  int
	group    singleflight.Group
	nowFunc  func() time.Time
}

type entryNode struct {
	entry model.CacheEntry
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithClock overrides the time source; used by tests to control TTL expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.nowFunc = now }
}

// New constructs a Cache with the given LRU capacity (§3 "default cap of
// 10,000 entries").
func New(maxSize int, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[model.CacheKey]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lookup returns a live, unexpired cache entry's value, or (nil, false).
func (c *Cache) Lookup(key model.CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	node := el.Value.(*entryNode)
	if node.entry.Expired(c.nowFunc()) {
		c.removeLocked(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return node.entry.Value, true
}

// Store inserts or replaces a cache entry, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) Store(entry model.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = c.nowFunc()
	}
	if el, ok := c.entries[entry.Key]; ok {
		el.Value.(*entryNode).entry = entry
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&entryNode{entry: entry})
	c.entries[entry.Key] = el
	c.evictOverCapacityLocked()
}

func (c *Cache) evictOverCapacityLocked() {
	for c.maxSize > 0 && len(c.entries) > c.maxSize {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeLocked(back)
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	node := el.Value.(*entryNode)
	delete(c.entries, node.entry.Key)
	c.order.Remove(el)
}

// Invalidate evicts every entry whose dependency tag set intersects tags
// (§4.C). Returns the number of entries evicted.
func (c *Cache) Invalidate(tags map[model.CacheTag]struct{}) int {
	if len(tags) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var toRemove []*list.Element
	for _, el := range c.entries {
		node := el.Value.(*entryNode)
		if node.entry.IntersectsTags(tags) {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		c.removeLocked(el)
	}
	return len(toRemove)
}

// Flush evicts every entry (§4.C "on connection loss, the entire cache is
// flushed").
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[model.CacheKey]*list.Element)
	c.order.Init()
}

// Len reports the number of live entries, irrespective of expiry.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Result is what GetOrCompute returns: the value plus how it was produced.
type Result struct {
	Value  any
	Status model.CacheStatus
}

// GetOrCompute implements both of §4.C's roles in one call:
//
//  1. single-flight: concurrent callers with the same key share one
//     invocation of compute; followers get CacheCoalesced, the leader
//     gets CacheMiss (or CacheHit if a cached value already existed).
//  2. response cache: a cache hit short-circuits compute entirely.
//
// bypassCache skips the response-cache read/write (non-idempotent tools,
// §4.C) while still single-flighting identical concurrent calls if the
// caller opts in via singleFlight.
func (c *Cache) GetOrCompute(key model.CacheKey, ttl time.Duration, tags map[model.CacheTag]struct{}, bypassCache bool, singleFlight bool, compute func() (any, error)) (Result, error) {
	if !bypassCache {
		if v, ok := c.Lookup(key); ok {
			return Result{Value: v, Status: model.CacheHit}, nil
		}
	}

	if !singleFlight {
		v, err := compute()
		if err != nil {
			return Result{}, err
		}
		if !bypassCache {
			c.Store(model.CacheEntry{Key: key, Value: v, TTL: ttl, Dependencies: tags, InsertedAt: c.nowFunc()})
		}
		status := model.CacheMiss
		if bypassCache {
			status = model.CacheBypass
		}
		return Result{Value: v, Status: status}, nil
	}

	flightKey := string(key.Tool) + "\x00" + key.Canonical
	leader := false
	v, err, shared := c.group.Do(flightKey, func() (any, error) {
		leader = true
		return compute()
	})
	if err != nil {
		return Result{}, err
	}
	if !bypassCache {
		c.Store(model.CacheEntry{Key: key, Value: v, TTL: ttl, Dependencies: tags, InsertedAt: c.nowFunc()})
	}
	status := model.CacheMiss
	if bypassCache {
		status = model.CacheBypass
	}
	if shared && !leader {
		status = model.CacheCoalesced
	}
	return Result{Value: v, Status: status}, nil
}

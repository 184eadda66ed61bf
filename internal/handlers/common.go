// Package handlers implements the Tool Handlers (§4.D): observe,
// experiment, stress_test, detect_anomaly, hypothesis, and replay. Every
// handler implements dispatcher.Handler and is constructed with the
// shared Deps it needs (game client, command cache, replay engine).
package handlers

import (
	"strings"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// Output is the uniform envelope every handler returns as its Execute
// value, carrying the cache status the dispatcher surfaces in
// model.ToolResult.Cache (§7 "successful responses include ... a cache
// tag").
type Output struct {
	Data   any               `json:"data"`
	Status model.CacheStatus `json:"cache_status"`
}

// CacheStatus implements the dispatcher's cacheStatusCarrier interface.
func (o Output) CacheStatus() model.CacheStatus { return o.Status }

// tagsForQuery derives the cache invalidation/dependency tag set an
// observe query depends on, mirroring the prefixes QueryWorld recognizes.
func tagsForQuery(query string) map[model.CacheTag]struct{} {
	switch {
	case strings.HasPrefix(query, "resources:"):
		name := strings.TrimPrefix(query, "resources:")
		return map[model.CacheTag]struct{}{model.ResourceTag(name): {}}
	case strings.HasPrefix(query, "components:"):
		typeName := strings.TrimPrefix(query, "components:")
		return map[model.CacheTag]struct{}{model.ComponentTag(typeName): {}, model.TagEntities: {}}
	default:
		return map[model.CacheTag]struct{}{model.TagEntities: {}}
	}
}

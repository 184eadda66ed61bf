// gameclient.go — a typed façade over the Game Connection Manager's raw
// request/response methods (§6 inspection protocol), translating the
// wire envelope into model types every handler shares.
//
// Grounded on the teacher's internal/queries typed-wrapper pattern over
// its raw extension RPC, generalized from "CDP domain method" to "BRP
// inspection method."
package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/gameconn"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// snapshotFanOut bounds how many concurrent get_components requests one
// Snapshot call issues against the shared game connection.
const snapshotFanOut = 8

// GameClient wraps a *gameconn.Manager with the typed request/response
// shapes every tool handler needs.
type GameClient struct {
	conn *gameconn.Manager
}

// NewGameClient constructs a GameClient over conn.
func NewGameClient(conn *gameconn.Manager) *GameClient {
	return &GameClient{conn: conn}
}

type entityListItem struct {
	Entity model.EntityRef `json:"entity"`
}

// ListEntities lists every live entity reference (§6 `list_entities`).
func (g *GameClient) ListEntities(ctx context.Context) ([]model.EntityRef, error) {
	raw, err := g.conn.Request(ctx, gameconn.MethodListEntities, nil)
	if err != nil {
		return nil, err
	}
	var items []entityListItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, debugerr.Wrap(debugerr.ProtocolError, err, "malformed list_entities response")
	}
	out := make([]model.EntityRef, len(items))
	for i, it := range items {
		out[i] = it.Entity
	}
	return out, nil
}

// GetComponents fetches the named component types (or all, if types is
// empty) for one entity (§6 `get_components`).
func (g *GameClient) GetComponents(ctx context.Context, entity model.EntityRef, types []string) (map[string]model.ComponentValue, error) {
	params, err := json.Marshal(map[string]any{"entity": entity, "types": types})
	if err != nil {
		return nil, debugerr.Wrap(debugerr.Internal, err, "failed to encode get_components request")
	}
	raw, err := g.conn.Request(ctx, gameconn.MethodGetComponents, params)
	if err != nil {
		return nil, err
	}
	var components map[string]model.ComponentValue
	if err := json.Unmarshal(raw, &components); err != nil {
		return nil, debugerr.Wrap(debugerr.ProtocolError, err, "malformed get_components response")
	}
	return components, nil
}

// GetResource fetches one named global resource (§6 `get_resource`).
func (g *GameClient) GetResource(ctx context.Context, name string) (model.ComponentValue, error) {
	params, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		return nil, debugerr.Wrap(debugerr.Internal, err, "failed to encode get_resource request")
	}
	raw, err := g.conn.Request(ctx, gameconn.MethodGetResource, params)
	if err != nil {
		return nil, err
	}
	var value model.ComponentValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, debugerr.Wrap(debugerr.ProtocolError, err, "malformed get_resource response")
	}
	return value, nil
}

// ListTypes lists every reflected component/resource type the game
// currently exposes (§6 `list_types`).
func (g *GameClient) ListTypes(ctx context.Context) ([]string, error) {
	raw, err := g.conn.Request(ctx, gameconn.MethodListTypes, nil)
	if err != nil {
		return nil, err
	}
	var types []string
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil, debugerr.Wrap(debugerr.ProtocolError, err, "malformed list_types response")
	}
	return types, nil
}

// Spawn creates a new entity with the given initial components (§6 `spawn`).
func (g *GameClient) Spawn(ctx context.Context, components map[string]model.ComponentValue) (model.EntityRef, error) {
	params, err := json.Marshal(map[string]any{"components": components})
	if err != nil {
		return 0, debugerr.Wrap(debugerr.Internal, err, "failed to encode spawn request")
	}
	raw, err := g.conn.Request(ctx, gameconn.MethodSpawn, params)
	if err != nil {
		return 0, err
	}
	var item entityListItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return 0, debugerr.Wrap(debugerr.ProtocolError, err, "malformed spawn response")
	}
	return item.Entity, nil
}

// Despawn destroys an entity (§6 `despawn`).
func (g *GameClient) Despawn(ctx context.Context, entity model.EntityRef) error {
	params, err := json.Marshal(map[string]any{"entity": entity})
	if err != nil {
		return debugerr.Wrap(debugerr.Internal, err, "failed to encode despawn request")
	}
	_, err = g.conn.Request(ctx, gameconn.MethodDespawn, params)
	return err
}

// Insert sets one component's value on an entity (§6 `insert`).
func (g *GameClient) Insert(ctx context.Context, entity model.EntityRef, component string, value model.ComponentValue) error {
	params, err := json.Marshal(map[string]any{"entity": entity, "component": component, "value": value})
	if err != nil {
		return debugerr.Wrap(debugerr.Internal, err, "failed to encode insert request")
	}
	_, err = g.conn.Request(ctx, gameconn.MethodInsert, params)
	return err
}

// Remove removes one component type from an entity (§6 `remove`).
func (g *GameClient) Remove(ctx context.Context, entity model.EntityRef, component string) error {
	params, err := json.Marshal(map[string]any{"entity": entity, "component": component})
	if err != nil {
		return debugerr.Wrap(debugerr.Internal, err, "failed to encode remove request")
	}
	_, err = g.conn.Request(ctx, gameconn.MethodRemove, params)
	return err
}

// Snapshot assembles a full world snapshot by listing every entity and
// fetching its components, fanning the per-entity requests out across a
// bounded group of concurrent callers.
func (g *GameClient) Snapshot(ctx context.Context, frameIndex int64) (model.WorldSnapshot, error) {
	entities, err := g.ListEntities(ctx)
	if err != nil {
		return model.WorldSnapshot{}, err
	}

	snaps := make([]model.EntitySnapshot, len(entities))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(snapshotFanOut)
	for i, e := range entities {
		i, e := i, e
		group.Go(func() error {
			components, err := g.GetComponents(groupCtx, e, nil)
			if err != nil {
				return err
			}
			snaps[i] = model.EntitySnapshot{Entity: e, Components: components}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return model.WorldSnapshot{}, err
	}
	return model.NewWorldSnapshot(frameIndex, time.Now(), snaps), nil
}

// QueryWorld translates an observe query string into the narrowest
// inspection request that satisfies it: `resources:<Name>` fetches one
// resource, `components:<Type>` fetches only entities carrying that
// component, anything else fetches the full world.
func (g *GameClient) QueryWorld(ctx context.Context, query string) (model.WorldSnapshot, error) {
	switch {
	case strings.HasPrefix(query, "resources:"):
		name := strings.TrimPrefix(query, "resources:")
		value, err := g.GetResource(ctx, name)
		if err != nil {
			return model.WorldSnapshot{}, err
		}
		return model.NewWorldSnapshot(0, time.Now(), []model.EntitySnapshot{
			{Entity: 0, Components: map[string]model.ComponentValue{name: value}},
		}), nil

	case strings.HasPrefix(query, "components:"):
		componentType := strings.TrimPrefix(query, "components:")
		entities, err := g.ListEntities(ctx)
		if err != nil {
			return model.WorldSnapshot{}, err
		}
		var snaps []model.EntitySnapshot
		for _, e := range entities {
			components, err := g.GetComponents(ctx, e, []string{componentType})
			if err != nil {
				return model.WorldSnapshot{}, err
			}
			if _, ok := components[componentType]; ok {
				snaps = append(snaps, model.EntitySnapshot{Entity: e, Components: components})
			}
		}
		return model.NewWorldSnapshot(0, time.Now(), snaps), nil

	default:
		return g.Snapshot(ctx, 0)
	}
}

// reconstruct.go — pure world reconstruction from a keyframe plus
// subsequent deltas (§4.E, §8 property 4: "reconstruct(R, F) is
// deterministic: repeated reconstructions yield byte-identical world
// snapshots").
package replay

import (
	"fmt"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/model"
)

// Reconstruct locates the nearest keyframe at or before target within
// frames (which must be sorted ascending by Index, as recorded), clones
// it, and applies deltas in order up to target. It is a pure function:
// it does not mutate frames and produces the same output for the same
// input every time.
func Reconstruct(frames []Frame, target int64) (model.WorldSnapshot, error) {
	kfIdx := -1
	for i, f := range frames {
		if f.Index > target {
			break
		}
		if f.Keyframe {
			kfIdx = i
		}
	}
	if kfIdx == -1 {
		return model.WorldSnapshot{}, debugerr.New(debugerr.NotFound, fmt.Sprintf("no keyframe at or before frame %d", target)).WithContext("frame_index", target)
	}

	kf := frames[kfIdx]
	world := cloneSnapshot(*kf.Snapshot)
	if kf.Index == target {
		return world, nil
	}

	for i := kfIdx + 1; i < len(frames); i++ {
		f := frames[i]
		if f.Index > target {
			break
		}
		world = applyDelta(world, f)
		if f.Index == target {
			return world, nil
		}
	}

	return model.WorldSnapshot{}, debugerr.New(debugerr.NotFound, fmt.Sprintf("frame %d not found in recording", target)).WithContext("frame_index", target)
}

func cloneSnapshot(w model.WorldSnapshot) model.WorldSnapshot {
	entities := make([]model.EntitySnapshot, len(w.Entities))
	for i, e := range w.Entities {
		components := make(map[string]model.ComponentValue, len(e.Components))
		for k, v := range e.Components {
			components[k] = cloneComponentValue(v)
		}
		entities[i] = model.EntitySnapshot{Entity: e.Entity, Components: components}
	}
	return model.WorldSnapshot{FrameIndex: w.FrameIndex, Timestamp: w.Timestamp, Entities: entities}
}

func cloneComponentValue(v model.ComponentValue) model.ComponentValue {
	out := make(model.ComponentValue, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// applyDelta applies one frame's delta to world, producing the
// reconstructed world at that frame.
func applyDelta(world model.WorldSnapshot, f Frame) model.WorldSnapshot {
	byEntity := make(map[model.EntityRef]model.EntitySnapshot, len(world.Entities))
	for _, e := range world.Entities {
		byEntity[e.Entity] = e
	}

	for _, removed := range f.Delta.Removed {
		delete(byEntity, removed)
	}
	for _, added := range f.Delta.Added {
		byEntity[added.Entity] = added
	}
	for _, change := range f.Delta.Changed {
		e, ok := byEntity[change.Entity]
		if !ok {
			e = model.EntitySnapshot{Entity: change.Entity, Components: map[string]model.ComponentValue{}}
		}
		if e.Components == nil {
			e.Components = map[string]model.ComponentValue{}
		}
		e.Components[change.Component] = change.After
		byEntity[change.Entity] = e
	}

	out := make([]model.EntitySnapshot, 0, len(byEntity))
	for _, e := range byEntity {
		out = append(out, e)
	}
	return model.NewWorldSnapshot(f.Index, f.Timestamp, out)
}

// DiffWorlds computes the symmetric difference between two world
// snapshots (added/removed/changed), used both by observe's diff mode
// (§4.D.1) and by computing a frame's delta during recording (§4.E).
func DiffWorlds(prev, next model.WorldSnapshot) Delta {
	prevByEntity := make(map[model.EntityRef]model.EntitySnapshot, len(prev.Entities))
	for _, e := range prev.Entities {
		prevByEntity[e.Entity] = e
	}
	nextByEntity := make(map[model.EntityRef]model.EntitySnapshot, len(next.Entities))
	for _, e := range next.Entities {
		nextByEntity[e.Entity] = e
	}

	var delta Delta
	for ref, e := range nextByEntity {
		prevE, existed := prevByEntity[ref]
		if !existed {
			delta.Added = append(delta.Added, e)
			continue
		}
		for comp, val := range e.Components {
			prevVal, ok := prevE.Components[comp]
			if !ok || !prevVal.Equal(val) {
				delta.Changed = append(delta.Changed, ComponentChange{Entity: ref, Component: comp, Before: prevVal, After: val})
			}
		}
	}
	for ref := range prevByEntity {
		if _, stillThere := nextByEntity[ref]; !stillThere {
			delta.Removed = append(delta.Removed, ref)
		}
	}
	return delta
}

// branch.go — branching (§4.E, §3): a new recording whose first frame is
// a keyframe equal to the reconstructed parent world at the fork frame,
// sharing the parent's pre-fork prefix by reference rather than copying
// it. Branches form a DAG by construction (fork_frame is always
// historical, so no cycles are possible; §9).
package replay

import (
	"time"

	"github.com/Ladvien/bevy-debugger-mcp-sub001/internal/debugerr"
)

// Branch creates a new recording diverging from parent at forkFrame. The
// child's first frame is a keyframe of the reconstructed world at
// forkFrame; its subsequent frames are appended independently of the
// parent (§4.E).
func Branch(parent *Recording, forkFrame int64, childID string) (*Recording, error) {
	last := parent.LastFrameIndex()
	if forkFrame < 0 || last < 0 || forkFrame > last {
		return nil, debugerr.New(debugerr.InvalidArgument, "fork frame is beyond the parent's last frame").
			WithContext("fork_frame", forkFrame).WithContext("parent_last_frame", last)
	}

	world, err := parent.Reconstruct(forkFrame)
	if err != nil {
		return nil, err
	}

	header := parent.Header()
	header.RecordingID = childID
	header.CreatedAt = time.Now()
	child := NewRecording(childID, header)
	child.parent = parent
	child.parentID = parent.ID()
	child.forkFrame = forkFrame

	// The fork keyframe keeps the child's frame numbering in the same
	// absolute timeline as the parent's, so indices at or before forkFrame
	// compare equal whether reconstructed locally or delegated upward.
	snap := world
	child.AppendFrame(Frame{Index: forkFrame, Timestamp: time.Now(), Keyframe: true, Snapshot: &snap}, world)

	parent.AddChild(childID)
	return child, nil
}

// ParentInfo returns a branch's parent id and fork frame, and whether it
// is a branch at all.
func (r *Recording) ParentInfo() (parentID string, forkFrame int64, isBranch bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parentID, r.forkFrame, r.parentID != ""
}

// CanDelete reports whether a recording may be destroyed: it must have no
// live children and a zero refcount (§3 "a parent cannot be deleted while
// branches reference it"; §5 "the engine refuses destructive operations
// on recordings with non-zero refcount").
func (r *Recording) CanDelete() (bool, []string) {
	children := r.Children()
	if len(children) > 0 {
		return false, children
	}
	if r.RefCount() > 0 {
		return false, nil
	}
	return true, nil
}

// Package merge implements the three-way merge engine: classify how a
// parameter differs across ancestor/current/other manifests, resolve
// the uncontested cases automatically, and solicit a user action for
// the rest through a pluggable Action registry.
package merge

import (
	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/types"
)

// InferState classifies a single parameter's three-way diff. Any of the
// three records may be nil, meaning the parameter is absent from that
// manifest (deleted, or never added). Ported from the original tool's
// infer_state, including its DELETED_B-for-divergent-add quirk: when the
// ancestor never had the parameter and both branches added it with
// different values, the state returned is DELETED_B rather than a
// dedicated "added both" state. See DESIGN.md.
func InferState(ancestor, current, other *manifest.ParamMetadata) types.DiffState {
	switch {
	case ancestor.Equal(current) && current.Equal(other):
		return types.StateEqual
	case ancestor.Equal(other) && !current.Equal(ancestor):
		switch {
		case ancestor == nil:
			return types.StateAddedA
		case current == nil:
			return types.StateDeletedA
		default:
			return types.StateChangedA
		}
	case ancestor.Equal(current) && !current.Equal(other):
		switch {
		case ancestor == nil:
			return types.StateAddedB
		case current == nil:
			return types.StateDeletedB
		default:
			return types.StateChangedB
		}
	case ancestor == nil:
		return types.StateDeletedB
	default:
		return types.StateChangedBoth
	}
}

// AutoResolved reports whether a state can be resolved without a user
// action: EQUAL keeps the ancestor's record, and the (unreachable in
// practice, per the quirk above) both-deleted state drops the parameter.
func AutoResolved(state types.DiffState) bool {
	return state == types.StateEqual || state == types.StateDeletedBoth
}

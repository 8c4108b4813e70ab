// Package types defines the small shared value types used throughout
// git-theta-go: parameter names, the update-kind and checkpoint-adapter
// enums, and the three-way diff state classification. Keeping them here
// (rather than inside the packages that consume them) avoids import
// cycles between manifest, update, checkpoint, and merge.
package types

import "strings"

// ParamName is the ordered path of a parameter through the nested
// parameter tree of a checkpoint, e.g. {"encoder", "layer0", "weight"}.
type ParamName []string

// String renders a ParamName as its "/"-joined display form.
func (p ParamName) String() string {
	return strings.Join(p, "/")
}

// Equal reports whether two parameter names name the same path.
func (p ParamName) Equal(other ParamName) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the name.
func (p ParamName) Clone() ParamName {
	out := make(ParamName, len(p))
	copy(out, p)
	return out
}

// ParseParamName splits a "/"-joined display name back into a ParamName.
func ParseParamName(s string) ParamName {
	if s == "" {
		return ParamName{}
	}
	return ParamName(strings.Split(s, "/"))
}

// UpdateType names a strategy for expressing a tensor's new value in
// terms of its previous value.
type UpdateType string

const (
	UpdateDense   UpdateType = "dense"
	UpdateSparse  UpdateType = "sparse"
	UpdateLowRank UpdateType = "low-rank"
	UpdateIA3     UpdateType = "ia3"
)

// CheckpointType selects which checkpoint.Adapter decodes and encodes the
// working-tree file.
type CheckpointType string

const (
	CheckpointRaw         CheckpointType = "raw"
	CheckpointSafetensors CheckpointType = "safetensors"
)

// DiffState classifies how a single parameter's metadata differs across
// the three manifests involved in a merge (ancestor, current/ours,
// other/theirs).
type DiffState string

const (
	StateEqual       DiffState = "equal"
	StateChangedA    DiffState = "changed_a"
	StateChangedB    DiffState = "changed_b"
	StateChangedBoth DiffState = "changed_both"
	StateAddedA      DiffState = "added_a"
	StateAddedB      DiffState = "added_b"
	StateDeletedA    DiffState = "deleted_a"
	StateDeletedB    DiffState = "deleted_b"
	StateDeletedBoth DiffState = "deleted_both"

	// StateAddedBoth is an alias for StateDeletedB kept for callers that
	// want to name the "ancestor absent, both branches added divergent
	// values" case by what it actually is rather than by the quirky
	// label InferState assigns it. InferState itself never returns this
	// identifier — it returns StateDeletedB — so the two compare equal
	// and either name matches the same switch case. See DESIGN.md.
	StateAddedBoth = StateDeletedB
)

// Description returns the human-readable sentence shown in the merge
// prompt for a state, matching the original tool's wording so existing
// muscle memory (and test fixtures) transfer.
func (s DiffState) Description() string {
	switch s {
	case StateEqual:
		return "All parameter values are equal."
	case StateChangedA:
		return "We changed this parameter."
	case StateChangedB:
		return "They changed this parameter."
	case StateChangedBoth:
		return "Both them and us changed this parameter."
	case StateAddedA:
		return "We added this parameter."
	case StateAddedB:
		return "They added this parameter."
	case StateDeletedA:
		return "We deleted this parameter."
	case StateDeletedB:
		return "They deleted this parameter."
	case StateDeletedBoth:
		return "Both them and us deleted this parameter."
	default:
		return string(s)
	}
}

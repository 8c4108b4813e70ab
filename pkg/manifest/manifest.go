// Package manifest implements the metadata manifest data model described
// in the design: per-parameter records tying a tensor name to an update
// kind, numeric descriptor, and content hashes, plus the flatten/
// unflatten, diff, and canonical on-disk text form operations over them.
package manifest

import (
	"sort"

	"github.com/r-three/git-theta-go/pkg/types"
)

// TensorMetadata identifies the materialized value of a parameter:
// shape, dtype, and the content hash of the tensor after applying every
// update in its chain.
type TensorMetadata struct {
	Shape []int  `yaml:"shape"`
	Dtype string `yaml:"dtype"`
	Hash  string `yaml:"hash"`
}

// LfsMetadata identifies the object-store object backing the update
// record for a parameter.
type LfsMetadata struct {
	Oid  string `yaml:"oid"`
	Size int64  `yaml:"size"`
}

// ThetaMetadata describes how the parameter's current value was derived
// from a previous one.
type ThetaMetadata struct {
	UpdateType types.UpdateType `yaml:"update_type"`
	LastCommit string           `yaml:"last_commit,omitempty"`
	// BaseParam is the "/"-joined name, within the manifest committed at
	// LastCommit, of the tensor this update was calculated against. Empty
	// means "same name" — the common case. It differs from the current
	// name only when the similarity index matched this tensor against a
	// different previously-tracked parameter (e.g. a renamed weight).
	BaseParam string `yaml:"base_param,omitempty"`
}

// ParamMetadata is the triple recorded for a single parameter.
type ParamMetadata struct {
	Tensor TensorMetadata `yaml:"tensor"`
	Lfs    LfsMetadata    `yaml:"lfs"`
	Theta  ThetaMetadata  `yaml:"theta"`
}

// Equal compares two parameter records the way the design mandates for
// diff and merge: by materialized content hash, not by update kind or
// object identity. A nil receiver/argument models "parameter absent."
func (p *ParamMetadata) Equal(other *ParamMetadata) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Tensor.Hash == other.Tensor.Hash
}

// Clone returns a deep copy of the record.
func (p *ParamMetadata) Clone() *ParamMetadata {
	if p == nil {
		return nil
	}
	out := *p
	out.Tensor.Shape = append([]int(nil), p.Tensor.Shape...)
	return &out
}

// Manifest is a flat mapping from "/"-joined parameter name to its
// metadata record. It is the in-memory form used by clean, smudge, and
// merge; ReadFile/WriteFile convert to/from the canonical nested text
// form.
type Manifest map[string]*ParamMetadata

// New returns an empty manifest.
func New() Manifest { return Manifest{} }

// Get looks up a parameter by name.
func (m Manifest) Get(name types.ParamName) (*ParamMetadata, bool) {
	p, ok := m[name.String()]
	return p, ok
}

// Set records a parameter's metadata.
func (m Manifest) Set(name types.ParamName, p *ParamMetadata) {
	m[name.String()] = p
}

// Delete removes a parameter from the manifest.
func (m Manifest) Delete(name types.ParamName) {
	delete(m, name.String())
}

// Names returns every parameter name in the manifest, sorted, matching
// the invariant that manifest ordering is always deterministic.
func (m Manifest) Names() []types.ParamName {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.ParamName, len(keys))
	for i, k := range keys {
		out[i] = types.ParseParamName(k)
	}
	return out
}

// Clone returns a deep copy of the manifest.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// UnionNames returns the sorted, de-duplicated union of parameter names
// across any number of manifests — used by merge, which must consider
// names added or removed on either branch.
func UnionNames(manifests ...Manifest) []types.ParamName {
	seen := map[string]struct{}{}
	for _, m := range manifests {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.ParamName, len(keys))
	for i, k := range keys {
		out[i] = types.ParseParamName(k)
	}
	return out
}

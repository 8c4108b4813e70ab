// Package update implements the four update kinds — dense, sparse,
// low-rank, and ia3 — each a pluggable strategy for expressing a
// tensor's new value in terms of its previous value.
package update

import (
	"context"
	"sort"

	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

// Record is an update's wire form: a named set of tensor fields.
// EncodeRecord packs all fields of a Record into one blob, stored as a
// single content-addressed object; fields are not stored as separate
// objects.
type Record map[string]tensor.Tensor

// Kind computes and applies one update strategy. Implementations must
// never silently fall back to another kind; an inapplicable change is
// reported via an error, and the caller decides whether to retry with
// dense.
type Kind interface {
	Name() types.UpdateType
	RequiredKeys() []string
	// CalculateUpdate derives a Record expressing how to go from
	// previous to next. aux carries kind-specific parameters (e.g. ia3's
	// broadcast dims, low-rank's target rank).
	CalculateUpdate(ctx context.Context, next, previous tensor.Tensor, aux map[string]any) (Record, error)
	// ApplyUpdate materializes next from a Record and previous.
	ApplyUpdate(ctx context.Context, rec Record, previous tensor.Tensor) (tensor.Tensor, error)
	// FormatUpdate is the user-facing helper for hand-authoring an
	// update of this kind directly from a full tensor value.
	FormatUpdate(param tensor.Tensor) Record
}

// Validate checks that rec has exactly the keys Kind.RequiredKeys names.
func Validate(k Kind, rec Record) error {
	want := append([]string(nil), k.RequiredKeys()...)
	sort.Strings(want)
	got := make([]string, 0, len(rec))
	for key := range rec {
		got = append(got, key)
	}
	sort.Strings(got)
	if len(want) != len(got) {
		return missingKeysErr(k.Name(), want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			return missingKeysErr(k.Name(), want, got)
		}
	}
	return nil
}

func missingKeysErr(name types.UpdateType, want, got []string) error {
	return &RecordShapeError{Kind: string(name), Want: want, Got: got}
}

// RecordShapeError reports an update record whose keys don't match what
// the kind requires — a manifest-validation failure, not a math one.
type RecordShapeError struct {
	Kind       string
	Want, Got  []string
}

func (e *RecordShapeError) Error() string {
	return "update: " + e.Kind + " record keys " + join(e.Got) + " do not match required " + join(e.Want)
}

func join(ss []string) string {
	out := "["
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out + "]"
}

// Registry resolves update kinds by name, populated at startup from a
// fixed list rather than by scanning installed packages (Design Notes
// §9: "a registry interface populated at startup from a config list").
type Registry struct {
	kinds map[types.UpdateType]Kind
}

// DefaultRegistry returns a Registry with the four built-in kinds.
func DefaultRegistry() *Registry {
	r := &Registry{kinds: map[types.UpdateType]Kind{}}
	for _, k := range []Kind{NewDense(), NewSparse(), NewLowRank(), NewIA3()} {
		r.Register(k)
	}
	return r
}

// Register adds or replaces a kind.
func (r *Registry) Register(k Kind) { r.kinds[k.Name()] = k }

// Get resolves a kind by name.
func (r *Registry) Get(name types.UpdateType) (Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

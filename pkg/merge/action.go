package merge

import (
	"context"
	"fmt"

	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
	"github.com/r-three/git-theta-go/pkg/update"
)

// ArgSpec describes one argument an Action needs collected from the user
// before it runs. None of the built-in actions declares any. Ported from
// the original tool's MergeArgument (name/description/validator/type).
type ArgSpec struct {
	Name        string
	Description string
	Validate    func(string) error
}

// Request carries everything an Action needs to resolve one parameter.
type Request struct {
	Name     types.ParamName
	State    types.DiffState
	Ancestor *manifest.ParamMetadata
	Current  *manifest.ParamMetadata
	Other    *manifest.ParamMetadata
	Fetch    Fetchers
	Store    objStore
	Registry *update.Registry
	Path     string
	Args     map[string]string
}

// objStore is the subset of objstore.Store an Action needs to write a
// freshly-computed record (e.g. average's blended tensor). Declared
// locally to avoid pkg/merge importing pkg/objstore just for this one
// method set.
type objStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// Action resolves one parameter's merge conflict. Run returns
// (record, true, nil) when it has produced (or deleted, record == nil)
// the merged value, or (nil, false, nil) when it only produced a side
// effect (e.g. Context printing a summary) and the caller should prompt
// again.
type Action interface {
	Name() string
	ShortCut() string
	InactiveStates() []types.DiffState
	Arguments() []ArgSpec
	Run(ctx context.Context, req Request) (*manifest.ParamMetadata, bool, error)
}

// TakeOurs keeps the current (ours/%A) branch's value outright.
type TakeOurs struct{}

func (TakeOurs) Name() string                        { return "take-ours" }
func (TakeOurs) ShortCut() string                     { return "o" }
func (TakeOurs) InactiveStates() []types.DiffState    { return nil }
func (TakeOurs) Arguments() []ArgSpec                 { return nil }
func (TakeOurs) Run(ctx context.Context, req Request) (*manifest.ParamMetadata, bool, error) {
	return req.Current.Clone(), true, nil
}

// TakeTheirs keeps the other (theirs/%B) branch's value outright.
type TakeTheirs struct{}

func (TakeTheirs) Name() string                     { return "take-theirs" }
func (TakeTheirs) ShortCut() string                 { return "t" }
func (TakeTheirs) InactiveStates() []types.DiffState { return nil }
func (TakeTheirs) Arguments() []ArgSpec             { return nil }
func (TakeTheirs) Run(ctx context.Context, req Request) (*manifest.ParamMetadata, bool, error) {
	return req.Other.Clone(), true, nil
}

// TakeAncestor reverts the parameter to its value before either branch
// touched it. Inapplicable when the ancestor never had the parameter.
type TakeAncestor struct{}

func (TakeAncestor) Name() string     { return "take-ancestor" }
func (TakeAncestor) ShortCut() string { return "a" }
func (TakeAncestor) InactiveStates() []types.DiffState {
	return []types.DiffState{types.StateAddedA, types.StateAddedB, types.StateDeletedB}
}
func (TakeAncestor) Arguments() []ArgSpec { return nil }
func (TakeAncestor) Run(ctx context.Context, req Request) (*manifest.ParamMetadata, bool, error) {
	return req.Ancestor.Clone(), true, nil
}

// Average blends the two branches' materialized values with an
// arithmetic mean and writes the result as a fresh dense object. It
// requires both branches to actually hold a value, so it is inactive
// anywhere one side is absent.
type Average struct{}

func (Average) Name() string     { return "average" }
func (Average) ShortCut() string { return "avg" }
func (Average) InactiveStates() []types.DiffState {
	return []types.DiffState{
		types.StateAddedA, types.StateAddedB,
		types.StateDeletedA, types.StateDeletedB, types.StateDeletedBoth,
	}
}
func (Average) Arguments() []ArgSpec { return nil }

func (Average) Run(ctx context.Context, req Request) (*manifest.ParamMetadata, bool, error) {
	if req.Current == nil || req.Other == nil {
		return nil, false, fmt.Errorf("merge/average: %s: both branches must have a value to average", req.Name.String())
	}
	ours, err := req.Fetch.Current.Fetch(ctx, req.Name)
	if err != nil {
		return nil, false, fmt.Errorf("merge/average: fetching ours: %w", err)
	}
	theirs, err := req.Fetch.Other.Fetch(ctx, req.Name)
	if err != nil {
		return nil, false, fmt.Errorf("merge/average: fetching theirs: %w", err)
	}
	if ours.NumElements() != theirs.NumElements() {
		return nil, false, fmt.Errorf("merge/average: %s: shape mismatch %v vs %v", req.Name.String(), ours.Shape, theirs.Shape)
	}

	blended := tensor.Zeros(ours.Shape, ours.Dtype)
	for i := 0; i < ours.NumElements(); i++ {
		blended.SetFloat64At(i, (ours.Float64At(i)+theirs.Float64At(i))/2)
	}

	dense, _ := req.Registry.Get(types.UpdateDense)
	blob := update.EncodeRecord(dense.FormatUpdate(blended))
	oid, err := req.Store.Put(ctx, blob)
	if err != nil {
		return nil, false, fmt.Errorf("merge/average: storing blended object: %w", err)
	}
	return &manifest.ParamMetadata{
		Tensor: manifest.TensorMetadata{Shape: blended.Shape, Dtype: string(blended.Dtype), Hash: blended.Hash()},
		Lfs:    manifest.LfsMetadata{Oid: oid, Size: int64(len(blob))},
		Theta:  manifest.ThetaMetadata{UpdateType: types.UpdateDense},
	}, true, nil
}

// Context prints a summary of the conflict and never resolves it itself
// — the caller re-prompts after Run returns. It is always available,
// including as the one-time banner shown before the per-parameter loop
// starts (Engine.Run invokes it directly for that, outside the registry
// dispatch).
type Context struct {
	// Print receives the rendered summary line. Defaults to nil, in
	// which case Run is a no-op beyond signaling "keep prompting" —
	// callers that want output wire Print (the CLI wires os.Stdout).
	Print func(string)
}

func (Context) Name() string                        { return "context" }
func (Context) ShortCut() string                    { return "c" }
func (Context) InactiveStates() []types.DiffState    { return nil }
func (Context) Arguments() []ArgSpec                 { return nil }
func (c Context) Run(ctx context.Context, req Request) (*manifest.ParamMetadata, bool, error) {
	if c.Print != nil {
		if req.Name == nil {
			c.Print(fmt.Sprintf("Merging checkpoint %s", req.Path))
		} else {
			c.Print(fmt.Sprintf("%s: %s", req.Name.String(), req.State.Description()))
		}
	}
	return nil, false, nil
}

// Package smudge implements the reconstruction pipeline: given a
// manifest, walk each parameter's update chain back to a dense anchor,
// apply updates forward, verify content hashes, and re-encode the
// checkpoint via a checkpoint.Adapter.
package smudge

import (
	"context"
	"fmt"
	"io"

	"github.com/r-three/git-theta-go/pkg/checkpoint"
	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/metrics"
	"github.com/r-three/git-theta-go/pkg/objstore"
	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/thetaerr"
	"github.com/r-three/git-theta-go/pkg/types"
	"github.com/r-three/git-theta-go/pkg/update"
	"github.com/r-three/git-theta-go/pkg/workerpool"
)

// History resolves a manifest as it existed at a given commit, letting
// Materialize walk a delta chain back across commits to its dense
// anchor. A zero-value History that always errors is fine for callers
// that only ever smudge manifests with dense entries (e.g. tests).
type History interface {
	ManifestAt(ctx context.Context, commit string) (manifest.Manifest, error)
}

// Materializer resolves a single parameter's current tensor value from a
// manifest, an object store, and (when the chain requires it) commit
// history.
type Materializer struct {
	Store    objstore.Store
	History  History
	Registry *update.Registry
}

// Materialize returns the fully reconstructed tensor for name as
// recorded in m, recursing through History for delta update kinds.
// Missing objects surface as ObjectUnavailableError; a hash mismatch
// after reconstruction surfaces as IntegrityError.
func (mz *Materializer) Materialize(ctx context.Context, name types.ParamName, m manifest.Manifest) (tensor.Tensor, error) {
	return mz.materialize(ctx, name, m, map[string]bool{})
}

func (mz *Materializer) materialize(ctx context.Context, name types.ParamName, m manifest.Manifest, visiting map[string]bool) (tensor.Tensor, error) {
	key := name.String()
	if visiting[key] {
		return tensor.Tensor{}, fmt.Errorf("smudge: cycle detected materializing %s", key)
	}
	visiting[key] = true
	defer delete(visiting, key)

	entry, ok := m.Get(name)
	if !ok {
		return tensor.Tensor{}, &thetaerr.ObjectUnavailableError{Param: key, Err: fmt.Errorf("no manifest entry")}
	}

	kind, ok := mz.Registry.Get(entry.Theta.UpdateType)
	if !ok {
		return tensor.Tensor{}, fmt.Errorf("smudge: no update kind registered for %q", entry.Theta.UpdateType)
	}

	blob, err := mz.Store.Get(ctx, entry.Lfs.Oid)
	if err != nil {
		return tensor.Tensor{}, &thetaerr.ObjectUnavailableError{Param: key, Oid: entry.Lfs.Oid, Err: err}
	}
	rec, err := update.DecodeRecord(blob)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("smudge: decoding record for %s: %w", key, err)
	}

	var previous tensor.Tensor
	if entry.Theta.UpdateType != types.UpdateDense {
		if entry.Theta.LastCommit == "" || mz.History == nil {
			return tensor.Tensor{}, fmt.Errorf("smudge: %s requires a previous value but has no recorded anchor commit", key)
		}
		prevManifest, err := mz.History.ManifestAt(ctx, entry.Theta.LastCommit)
		if err != nil {
			return tensor.Tensor{}, fmt.Errorf("smudge: fetching manifest at %s: %w", entry.Theta.LastCommit, err)
		}
		baseName := name
		if entry.Theta.BaseParam != "" {
			baseName = types.ParseParamName(entry.Theta.BaseParam)
		}
		previous, err = mz.materialize(ctx, baseName, prevManifest, visiting)
		if err != nil {
			return tensor.Tensor{}, err
		}
	}

	out, err := kind.ApplyUpdate(ctx, rec, previous)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("smudge: applying update for %s: %w", key, err)
	}
	if got := out.Hash(); got != entry.Tensor.Hash {
		return tensor.Tensor{}, &thetaerr.IntegrityError{Param: key, Expected: entry.Tensor.Hash, Got: got}
	}
	return out, nil
}

// Pipeline drives a full checkpoint reconstruction from manifest bytes.
type Pipeline struct {
	Materializer   *Materializer
	Adapter        checkpoint.Adapter
	MaxConcurrency int
}

// Run parses manifestBytes, materializes every parameter concurrently,
// and encodes the result via Adapter onto w.
func (p *Pipeline) Run(ctx context.Context, manifestBytes []byte, w io.Writer) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SmudgeDuration)

	m, err := manifest.Parse(manifestBytes)
	if err != nil {
		return fmt.Errorf("smudge: parsing manifest: %w", err)
	}
	names := m.Names()

	tensors, err := workerpool.Map(ctx, p.MaxConcurrency, names, func(ctx context.Context, name types.ParamName) (tensor.Tensor, error) {
		return p.Materializer.Materialize(ctx, name, m)
	})
	if err != nil {
		return err
	}

	params := make(checkpoint.Params, len(names))
	for i, name := range names {
		params[name.String()] = tensors[i]
	}
	if err := p.Adapter.Encode(w, params); err != nil {
		return &thetaerr.AdapterError{CheckpointType: string(p.Adapter.Name()), Err: err}
	}
	return nil
}

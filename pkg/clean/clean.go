// Package clean implements the decomposition pipeline: decode a
// checkpoint, compare each parameter against its previous value, select
// an update kind, write per-parameter objects, and emit a canonical
// manifest. Per-parameter failures abort the whole operation — a
// partial manifest is never emitted.
package clean

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/r-three/git-theta-go/pkg/checkpoint"
	"github.com/r-three/git-theta-go/pkg/config"
	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/metrics"
	"github.com/r-three/git-theta-go/pkg/objstore"
	"github.com/r-three/git-theta-go/pkg/similarity"
	"github.com/r-three/git-theta-go/pkg/smudge"
	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/thetaerr"
	"github.com/r-three/git-theta-go/pkg/types"
	"github.com/r-three/git-theta-go/pkg/update"
	"github.com/r-three/git-theta-go/pkg/workerpool"
)

// Pipeline drives a full checkpoint decomposition.
type Pipeline struct {
	Store        objstore.Store
	Registry     *update.Registry
	Materializer *smudge.Materializer // resolves previous values; History may be nil if Previous has no deltas
	Config       config.Config

	mu  sync.Mutex
	lsh *similarity.Index
}

// withIndex runs fn against the pipeline's shared similarity index,
// lazily creating it on first use. The index is not safe for concurrent
// use on its own (pkg/similarity), and processParam runs concurrently
// across parameters via workerpool.Map, so every access is serialized
// through this one critical section — the same mutex-around-shared-state
// shape pkg/merge.Fetcher uses for its memoized cache.
func (p *Pipeline) withIndex(fn func(*similarity.Index)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lsh == nil {
		p.lsh = similarity.New(similarity.Config{
			SignatureBits: p.Config.LSHSignatureBits,
			Threshold:     p.Config.LSHThreshold,
			PoolSize:      p.Config.LSHPoolSize,
		})
	}
	fn(p.lsh)
}

// Run decodes checkpointBytes via adapter, diffs against previous (which
// may be nil/empty for a first commit), and returns the canonical
// manifest bytes for the new checkpoint state. previousCommit is the
// commit previous was read from; it is recorded as the anchor commit on
// any delta computed in this run, so a future smudge can walk back to
// that exact manifest via History.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, adapter checkpoint.Adapter, previous manifest.Manifest, previousCommit string) ([]byte, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CleanDuration)

	params, err := adapter.Decode(r)
	if err != nil {
		return nil, &thetaerr.AdapterError{CheckpointType: string(adapter.Name()), Err: err}
	}
	if previous == nil {
		previous = manifest.New()
	}

	names := make([]types.ParamName, 0, len(params))
	for name := range params {
		names = append(names, types.ParseParamName(name))
	}

	entries, err := workerpool.Map(ctx, p.Config.Concurrency(), names, func(ctx context.Context, name types.ParamName) (*manifest.ParamMetadata, error) {
		return p.processParam(ctx, name, params[name.String()], previous, previousCommit)
	})
	if err != nil {
		return nil, err
	}

	out := manifest.New()
	for i, name := range names {
		out.Set(name, entries[i])
	}
	return out.Bytes()
}

func (p *Pipeline) processParam(ctx context.Context, name types.ParamName, next tensor.Tensor, previous manifest.Manifest, previousCommit string) (*manifest.ParamMetadata, error) {
	prevEntry, hasPrev := previous.Get(name)
	if !hasPrev {
		return p.writeDense(ctx, name, next)
	}

	prevTensor, err := p.Materializer.Materialize(ctx, name, previous)
	if err != nil {
		return nil, err
	}

	if next.Hash() == prevTensor.Hash() {
		metrics.ParametersUnchangedTotal.Inc()
		return prevEntry.Clone(), nil
	}
	if similarity.Close(next, prevTensor, p.Config.ParameterAtol, p.Config.ParameterRtol) {
		metrics.ParametersUnchangedTotal.Inc()
		return prevEntry.Clone(), nil
	}

	// The parameter's own previous value is already known by name — the
	// similarity pool is for discovering an unnamed candidate (a renamed
	// or duplicated parameter) when no previous entry exists at all, not
	// for vetoing the user's requested update kind against a value we
	// already know is the right comparison point. Add it to the pool for
	// that later use and go straight to the requested kind.
	p.withIndex(func(ix *similarity.Index) { ix.Add(prevEntry.Lfs.Oid, prevTensor) })

	kind, ok := p.Registry.Get(p.Config.UpdateType)
	if !ok {
		return nil, fmt.Errorf("clean: no update kind registered for %q", p.Config.UpdateType)
	}
	if kind.Name() == types.UpdateDense {
		return p.writeDense(ctx, name, next)
	}

	rec, err := kind.CalculateUpdate(ctx, next, prevTensor, nil)
	if err != nil {
		return nil, &thetaerr.UpdateInapplicableError{Param: name.String(), Kind: string(kind.Name()), Err: err}
	}
	entry, err := p.writeRecord(ctx, name, next, kind.Name(), rec)
	if err != nil {
		return nil, err
	}
	entry.Theta.LastCommit = previousCommit
	metrics.ParametersProcessedTotal.WithLabelValues("clean", string(kind.Name())).Inc()
	return entry, nil
}

// writeDense writes a full-value record. Dense entries never carry an
// anchor commit — they materialize standalone.
func (p *Pipeline) writeDense(ctx context.Context, name types.ParamName, next tensor.Tensor) (*manifest.ParamMetadata, error) {
	dense, _ := p.Registry.Get(types.UpdateDense)
	entry, err := p.writeRecord(ctx, name, next, types.UpdateDense, dense.FormatUpdate(next))
	if err != nil {
		return nil, err
	}
	metrics.ParametersProcessedTotal.WithLabelValues("clean", string(types.UpdateDense)).Inc()
	return entry, nil
}

func (p *Pipeline) writeRecord(ctx context.Context, name types.ParamName, next tensor.Tensor, kind types.UpdateType, rec update.Record) (*manifest.ParamMetadata, error) {
	blob := update.EncodeRecord(rec)
	opTimer := metrics.NewTimer()
	oid, err := p.Store.Put(ctx, blob)
	opTimer.ObserveDurationVec(metrics.ObjectStoreOpDuration, "put")
	if err != nil {
		metrics.ObjectStoreErrorsTotal.WithLabelValues("put").Inc()
		return nil, fmt.Errorf("clean: storing object for %s: %w", name.String(), err)
	}
	return &manifest.ParamMetadata{
		Tensor: manifest.TensorMetadata{Shape: next.Shape, Dtype: string(next.Dtype), Hash: next.Hash()},
		Lfs:    manifest.LfsMetadata{Oid: oid, Size: int64(len(blob))},
		Theta:  manifest.ThetaMetadata{UpdateType: kind},
	}, nil
}

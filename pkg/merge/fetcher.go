package merge

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/smudge"
	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

// Fetcher materializes a parameter's tensor value from one branch's
// manifest, memoizing results so repeated or concurrent requests for the
// same parameter during one merge session collapse to a single
// materialization. Replaces the original tool's mutable partial_current/
// partial_other/partial_ancestor caches, which were plain dicts mutated
// in place across the whole merge loop.
type Fetcher struct {
	Materializer *smudge.Materializer
	Manifest     manifest.Manifest

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]tensor.Tensor
}

// NewFetcher builds a Fetcher resolving parameters against m.
func NewFetcher(mz *smudge.Materializer, m manifest.Manifest) *Fetcher {
	return &Fetcher{Materializer: mz, Manifest: m, cache: map[string]tensor.Tensor{}}
}

// Fetch returns the materialized tensor for name, computing it at most
// once per Fetcher regardless of how many Actions request it.
func (f *Fetcher) Fetch(ctx context.Context, name types.ParamName) (tensor.Tensor, error) {
	key := name.String()

	f.mu.Lock()
	if t, ok := f.cache[key]; ok {
		f.mu.Unlock()
		return t, nil
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do(key, func() (any, error) {
		t, err := f.Materializer.Materialize(ctx, name, f.Manifest)
		if err != nil {
			return tensor.Tensor{}, err
		}
		f.mu.Lock()
		f.cache[key] = t
		f.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return tensor.Tensor{}, err
	}
	return v.(tensor.Tensor), nil
}

// Fetchers groups the three per-branch Fetchers a merge session needs.
type Fetchers struct {
	Current  *Fetcher
	Other    *Fetcher
	Ancestor *Fetcher
}

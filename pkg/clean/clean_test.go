package clean

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r-three/git-theta-go/pkg/checkpoint"
	"github.com/r-three/git-theta-go/pkg/config"
	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/objstore"
	"github.com/r-three/git-theta-go/pkg/smudge"
	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/thetaerr"
	"github.com/r-three/git-theta-go/pkg/types"
	"github.com/r-three/git-theta-go/pkg/update"
)

type memHistory struct {
	manifests map[string]manifest.Manifest
}

func (h *memHistory) ManifestAt(ctx context.Context, commit string) (manifest.Manifest, error) {
	m, ok := h.manifests[commit]
	if !ok {
		return nil, fmt.Errorf("no manifest at %s", commit)
	}
	return m, nil
}

func newPipeline(t *testing.T, cfg config.Config) (*Pipeline, objstore.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := objstore.NewLocalStore(dir)
	require.NoError(t, err)
	registry := update.DefaultRegistry()
	return &Pipeline{
		Store:        store,
		Registry:     registry,
		Materializer: &smudge.Materializer{Store: store, Registry: registry},
		Config:       cfg,
	}, store
}

func vec(vals []float64) tensor.Tensor {
	t := tensor.Zeros([]int{len(vals)}, tensor.Float64)
	for i, v := range vals {
		t.SetFloat64At(i, v)
	}
	return t
}

func TestCleanFirstCommitIsAllDense(t *testing.T) {
	cfg := config.Defaults()
	p, _ := newPipeline(t, cfg)
	params := checkpoint.Params{"w": vec([]float64{1, 2, 3})}
	var buf bytes.Buffer
	require.NoError(t, checkpoint.NewRawAdapter().Encode(&buf, params))

	out, err := p.Run(context.Background(), &buf, checkpoint.NewRawAdapter(), nil, "")
	require.NoError(t, err)

	m, err := manifest.Parse(out)
	require.NoError(t, err)
	entry, ok := m.Get(types.ParamName{"w"})
	require.True(t, ok)
	assert.Equal(t, types.UpdateDense, entry.Theta.UpdateType)
}

func TestCleanUnchangedCarriesForward(t *testing.T) {
	cfg := config.Defaults()
	p, _ := newPipeline(t, cfg)
	w := vec([]float64{1, 2, 3})
	var first bytes.Buffer
	require.NoError(t, checkpoint.NewRawAdapter().Encode(&first, checkpoint.Params{"w": w}))
	firstManifestBytes, err := p.Run(context.Background(), &first, checkpoint.NewRawAdapter(), nil, "")
	require.NoError(t, err)
	firstManifest, err := manifest.Parse(firstManifestBytes)
	require.NoError(t, err)

	var second bytes.Buffer
	require.NoError(t, checkpoint.NewRawAdapter().Encode(&second, checkpoint.Params{"w": w.Clone()}))
	secondManifestBytes, err := p.Run(context.Background(), &second, checkpoint.NewRawAdapter(), firstManifest, "c1")
	require.NoError(t, err)

	secondManifest, err := manifest.Parse(secondManifestBytes)
	require.NoError(t, err)
	firstEntry, _ := firstManifest.Get(types.ParamName{"w"})
	secondEntry, _ := secondManifest.Get(types.ParamName{"w"})
	assert.Equal(t, firstEntry.Lfs.Oid, secondEntry.Lfs.Oid)
}

// TestCleanDenseChangeErrorsNotSilentDowngrade exercises the policy from
// spec.md §4.3/§7: a requested update kind that can't express the change
// (here, every element changed, exceeding Sparse's density threshold)
// fails the clean operation outright. It must never be silently
// substituted with a dense record.
func TestCleanDenseChangeErrorsNotSilentDowngrade(t *testing.T) {
	cfg := config.Defaults()
	cfg.UpdateType = types.UpdateSparse
	p, _ := newPipeline(t, cfg)
	w := vec([]float64{1, 2, 3, 4})
	var first bytes.Buffer
	require.NoError(t, checkpoint.NewRawAdapter().Encode(&first, checkpoint.Params{"w": w}))
	firstManifestBytes, err := p.Run(context.Background(), &first, checkpoint.NewRawAdapter(), nil, "")
	require.NoError(t, err)
	firstManifest, err := manifest.Parse(firstManifestBytes)
	require.NoError(t, err)

	far := vec([]float64{1000, 2000, 3000, 4000})
	var second bytes.Buffer
	require.NoError(t, checkpoint.NewRawAdapter().Encode(&second, checkpoint.Params{"w": far}))
	_, err = p.Run(context.Background(), &second, checkpoint.NewRawAdapter(), firstManifest, "c1")
	require.Error(t, err)
	var inapplicable *thetaerr.UpdateInapplicableError
	assert.ErrorAs(t, err, &inapplicable)
}

func TestCleanCloseChangeUsesSparseDelta(t *testing.T) {
	cfg := config.Defaults()
	cfg.UpdateType = types.UpdateSparse
	p, _ := newPipeline(t, cfg)
	w := vec([]float64{1, 2, 3, 4})
	var first bytes.Buffer
	require.NoError(t, checkpoint.NewRawAdapter().Encode(&first, checkpoint.Params{"w": w}))
	firstManifestBytes, err := p.Run(context.Background(), &first, checkpoint.NewRawAdapter(), nil, "")
	require.NoError(t, err)
	firstManifest, err := manifest.Parse(firstManifestBytes)
	require.NoError(t, err)

	near := vec([]float64{1, 2.5, 3, 4})
	var second bytes.Buffer
	require.NoError(t, checkpoint.NewRawAdapter().Encode(&second, checkpoint.Params{"w": near}))
	secondManifestBytes, err := p.Run(context.Background(), &second, checkpoint.NewRawAdapter(), firstManifest, "c1")
	require.NoError(t, err)

	secondManifest, err := manifest.Parse(secondManifestBytes)
	require.NoError(t, err)
	entry, _ := secondManifest.Get(types.ParamName{"w"})
	assert.Equal(t, types.UpdateSparse, entry.Theta.UpdateType)
	assert.Equal(t, "c1", entry.Theta.LastCommit)
}

// TestCleanSparseEdit is scenario S2 from the spec's testable properties:
// a single element changed out of five, GIT_THETA_UPDATE_TYPE=sparse,
// default config — must produce a sparse delta through the same path the
// real clean filter uses (cmd/git-theta-filter), with no LSH threshold
// override required, since the update kind's own applicability check —
// not a similarity-distance veto — is what decides sparse-vs-error here.
func TestCleanSparseEdit(t *testing.T) {
	cfg := config.Defaults()
	cfg.UpdateType = types.UpdateSparse
	p, _ := newPipeline(t, cfg)
	w := vec([]float64{1, 2, 3, 4, 5})
	var first bytes.Buffer
	require.NoError(t, checkpoint.NewRawAdapter().Encode(&first, checkpoint.Params{"w": w}))
	firstManifestBytes, err := p.Run(context.Background(), &first, checkpoint.NewRawAdapter(), nil, "")
	require.NoError(t, err)
	firstManifest, err := manifest.Parse(firstManifestBytes)
	require.NoError(t, err)

	edited := vec([]float64{1, 2, 3, 4, 99})
	var second bytes.Buffer
	require.NoError(t, checkpoint.NewRawAdapter().Encode(&second, checkpoint.Params{"w": edited}))
	secondManifestBytes, err := p.Run(context.Background(), &second, checkpoint.NewRawAdapter(), firstManifest, "c1")
	require.NoError(t, err)

	secondManifest, err := manifest.Parse(secondManifestBytes)
	require.NoError(t, err)
	entry, ok := secondManifest.Get(types.ParamName{"w"})
	require.True(t, ok)
	assert.Equal(t, types.UpdateSparse, entry.Theta.UpdateType)
	assert.Equal(t, "c1", entry.Theta.LastCommit)

	history := &memHistory{manifests: map[string]manifest.Manifest{"c1": firstManifest}}
	mz := &smudge.Materializer{Store: p.Store, History: history, Registry: p.Registry}
	rebuilt, err := mz.Materialize(context.Background(), types.ParamName{"w"}, secondManifest)
	require.NoError(t, err)
	assert.Equal(t, edited.Hash(), rebuilt.Hash())
}

package smudge

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r-three/git-theta-go/pkg/checkpoint"
	"github.com/r-three/git-theta-go/pkg/manifest"
	"github.com/r-three/git-theta-go/pkg/objstore"
	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
	"github.com/r-three/git-theta-go/pkg/update"
)

type memStore struct {
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: map[string][]byte{}} }

func (s *memStore) Put(ctx context.Context, data []byte) (string, error) {
	t := tensor.Tensor{Data: data}
	oid := t.Hash()
	s.blobs[oid] = append([]byte(nil), data...)
	return oid, nil
}

func (s *memStore) Get(ctx context.Context, oid string) ([]byte, error) {
	b, ok := s.blobs[oid]
	if !ok {
		return nil, &objstore.NotFoundError{Oid: oid}
	}
	return b, nil
}

func (s *memStore) Push(ctx context.Context, oids []string, remote string) error { return nil }

type memHistory struct {
	manifests map[string]manifest.Manifest
}

func (h *memHistory) ManifestAt(ctx context.Context, commit string) (manifest.Manifest, error) {
	m, ok := h.manifests[commit]
	if !ok {
		return nil, assertNever{commit}
	}
	return m, nil
}

type assertNever struct{ commit string }

func (a assertNever) Error() string { return "no manifest at " + a.commit }

func vec(vals []float64) tensor.Tensor {
	t := tensor.Zeros([]int{len(vals)}, tensor.Float64)
	for i, v := range vals {
		t.SetFloat64At(i, v)
	}
	return t
}

func putRecord(t *testing.T, store *memStore, rec update.Record) (string, int64) {
	t.Helper()
	blob := update.EncodeRecord(rec)
	oid, err := store.Put(context.Background(), blob)
	require.NoError(t, err)
	return oid, int64(len(blob))
}

func mustKind(t *testing.T, registry *update.Registry, name types.UpdateType) update.Kind {
	t.Helper()
	k, ok := registry.Get(name)
	require.True(t, ok)
	return k
}

func TestMaterializeDenseOnly(t *testing.T) {
	store := newMemStore()
	registry := update.DefaultRegistry()
	p := vec([]float64{1, 2, 3})
	rec := mustKind(t, registry, types.UpdateDense).FormatUpdate(p)
	oid, size := putRecord(t, store, rec)

	m := manifest.New()
	m.Set(types.ParamName{"w"}, &manifest.ParamMetadata{
		Tensor: manifest.TensorMetadata{Shape: p.Shape, Dtype: string(p.Dtype), Hash: p.Hash()},
		Lfs:    manifest.LfsMetadata{Oid: oid, Size: size},
		Theta:  manifest.ThetaMetadata{UpdateType: types.UpdateDense},
	})

	mz := &Materializer{Store: store, Registry: registry}
	out, err := mz.Materialize(context.Background(), types.ParamName{"w"}, m)
	require.NoError(t, err)
	assert.True(t, p.Equal(out))
}

func TestMaterializeSparseChainsToAnchor(t *testing.T) {
	store := newMemStore()
	registry := update.DefaultRegistry()

	anchor := vec([]float64{1, 2, 3, 4})
	anchorRec := mustKind(t, registry, types.UpdateDense).FormatUpdate(anchor)
	anchorOid, anchorSize := putRecord(t, store, anchorRec)

	anchorManifest := manifest.New()
	anchorManifest.Set(types.ParamName{"w"}, &manifest.ParamMetadata{
		Tensor: manifest.TensorMetadata{Shape: anchor.Shape, Dtype: string(anchor.Dtype), Hash: anchor.Hash()},
		Lfs:    manifest.LfsMetadata{Oid: anchorOid, Size: anchorSize},
		Theta:  manifest.ThetaMetadata{UpdateType: types.UpdateDense},
	})

	next := vec([]float64{1, 99, 3, 4})
	sparse := update.NewSparse()
	rec, err := sparse.CalculateUpdate(context.Background(), next, anchor, nil)
	require.NoError(t, err)
	oid, size := putRecord(t, store, rec)

	current := manifest.New()
	current.Set(types.ParamName{"w"}, &manifest.ParamMetadata{
		Tensor: manifest.TensorMetadata{Shape: next.Shape, Dtype: string(next.Dtype), Hash: next.Hash()},
		Lfs:    manifest.LfsMetadata{Oid: oid, Size: size},
		Theta:  manifest.ThetaMetadata{UpdateType: types.UpdateSparse, LastCommit: "c0"},
	})

	history := &memHistory{manifests: map[string]manifest.Manifest{"c0": anchorManifest}}
	mz := &Materializer{Store: store, History: history, Registry: registry}
	out, err := mz.Materialize(context.Background(), types.ParamName{"w"}, current)
	require.NoError(t, err)
	assert.True(t, next.Equal(out))
}

func TestMaterializeDetectsIntegrityMismatch(t *testing.T) {
	store := newMemStore()
	registry := update.DefaultRegistry()
	p := vec([]float64{1, 2, 3})
	rec := mustKind(t, registry, types.UpdateDense).FormatUpdate(p)
	oid, size := putRecord(t, store, rec)

	m := manifest.New()
	m.Set(types.ParamName{"w"}, &manifest.ParamMetadata{
		Tensor: manifest.TensorMetadata{Shape: p.Shape, Dtype: string(p.Dtype), Hash: "0000"},
		Lfs:    manifest.LfsMetadata{Oid: oid, Size: size},
		Theta:  manifest.ThetaMetadata{UpdateType: types.UpdateDense},
	})

	mz := &Materializer{Store: store, Registry: registry}
	_, err := mz.Materialize(context.Background(), types.ParamName{"w"}, m)
	assert.Error(t, err)
}

func TestPipelineRunEncodesCheckpoint(t *testing.T) {
	store := newMemStore()
	registry := update.DefaultRegistry()
	p := vec([]float64{1, 2, 3})
	rec := mustKind(t, registry, types.UpdateDense).FormatUpdate(p)
	oid, size := putRecord(t, store, rec)

	m := manifest.New()
	m.Set(types.ParamName{"w"}, &manifest.ParamMetadata{
		Tensor: manifest.TensorMetadata{Shape: p.Shape, Dtype: string(p.Dtype), Hash: p.Hash()},
		Lfs:    manifest.LfsMetadata{Oid: oid, Size: size},
		Theta:  manifest.ThetaMetadata{UpdateType: types.UpdateDense},
	})
	manifestBytes, err := m.Bytes()
	require.NoError(t, err)

	pipeline := &Pipeline{
		Materializer:   &Materializer{Store: store, Registry: registry},
		Adapter:        checkpoint.NewRawAdapter(),
		MaxConcurrency: 2,
	}
	var out bytes.Buffer
	require.NoError(t, pipeline.Run(context.Background(), manifestBytes, &out))

	decoded, err := checkpoint.NewRawAdapter().Decode(&out)
	require.NoError(t, err)
	assert.True(t, p.Equal(decoded["w"]))
}

package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r-three/git-theta-go/pkg/types"
)

func sample() Manifest {
	m := New()
	m.Set(types.ParamName{"encoder", "weight"}, &ParamMetadata{
		Tensor: TensorMetadata{Shape: []int{2, 2}, Dtype: "float32", Hash: "aaaa"},
		Lfs:    LfsMetadata{Oid: "oid1", Size: 16},
		Theta:  ThetaMetadata{UpdateType: types.UpdateDense},
	})
	m.Set(types.ParamName{"decoder", "bias"}, &ParamMetadata{
		Tensor: TensorMetadata{Shape: []int{2}, Dtype: "float32", Hash: "bbbb"},
		Lfs:    LfsMetadata{Oid: "oid2", Size: 8},
		Theta:  ThetaMetadata{UpdateType: types.UpdateSparse, LastCommit: "1234567890123456789012345678901234567890"},
	})
	return m
}

func TestManifestRoundTripBytes(t *testing.T) {
	m := sample()
	ok, err := RoundTripCheck(m)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManifestBytesDeterministic(t *testing.T) {
	a, err := sample().Bytes()
	require.NoError(t, err)
	b, err := sample().Bytes()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestManifestSerializeIsStable(t *testing.T) {
	data, err := sample().Bytes()
	require.NoError(t, err)
	m, err := Parse(data)
	require.NoError(t, err)
	data2, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}

func TestDiffIdentical(t *testing.T) {
	m := sample()
	added, removed, modified := Diff(m, m)
	assert.Empty(t, added)
	assert.Empty(t, removed)
	assert.Empty(t, modified)
}

func TestDiffAddedRemovedModified(t *testing.T) {
	old := sample()
	newM := sample().Clone()
	// Modify one parameter's hash.
	p := newM["encoder/weight"]
	p.Tensor.Hash = "changed"
	newM["encoder/weight"] = p
	// Remove one, add one.
	delete(newM, "decoder/bias")
	newM.Set(types.ParamName{"head", "weight"}, &ParamMetadata{Tensor: TensorMetadata{Hash: "new"}})

	added, removed, modified := Diff(newM, old)
	assert.Contains(t, added, "head/weight")
	assert.Contains(t, removed, "decoder/bias")
	assert.Contains(t, modified, "encoder/weight")
}

func TestNamesSorted(t *testing.T) {
	names := sample().Names()
	require.Len(t, names, 2)
	assert.Equal(t, "decoder/bias", names[0].String())
	assert.Equal(t, "encoder/weight", names[1].String())
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/manifest.yaml"
	require.NoError(t, sample().WriteFile(path))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, len(sample()), len(got))
}

package checkpoint

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

func sampleParams() Params {
	a := tensor.Zeros([]int{2, 2}, tensor.Float32)
	for i := 0; i < 4; i++ {
		a.SetFloat64At(i, float64(i))
	}
	b := tensor.Zeros([]int{3}, tensor.Float64)
	for i := 0; i < 3; i++ {
		b.SetFloat64At(i, float64(i)*1.5)
	}
	return Params{"encoder/weight": a, "decoder/bias": b}
}

func TestRawAdapterRoundTrip(t *testing.T) {
	a := NewRawAdapter()
	var buf bytes.Buffer
	require.NoError(t, a.Encode(&buf, sampleParams()))
	out, err := a.Decode(&buf)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	for name, want := range sampleParams() {
		got, ok := out[name]
		require.True(t, ok, name)
		assert.True(t, want.Equal(got), name)
	}
}

func TestSafetensorsAdapterRoundTrip(t *testing.T) {
	a := NewSafetensorsAdapter()
	var buf bytes.Buffer
	require.NoError(t, a.Encode(&buf, sampleParams()))
	out, err := a.Decode(&buf)
	require.NoError(t, err)
	for name, want := range sampleParams() {
		got, ok := out[name]
		require.True(t, ok, name)
		assert.True(t, want.Equal(got), name)
	}
}

func TestRegistryResolvesByType(t *testing.T) {
	r := DefaultRegistry()
	a, err := r.Get(types.CheckpointRaw)
	require.NoError(t, err)
	assert.Equal(t, types.CheckpointRaw, a.Name())

	_, err = r.Get(types.CheckpointType("unknown"))
	assert.Error(t, err)
}

package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/r-three/git-theta-go/pkg/tensor"
)

func vec(vals []float64) tensor.Tensor {
	t := tensor.Zeros([]int{len(vals)}, tensor.Float32)
	for i, v := range vals {
		t.SetFloat64At(i, v)
	}
	return t
}

func TestMatchExactHashShortCircuits(t *testing.T) {
	ix := New(Config{SignatureBits: 16, Threshold: 1e-6, PoolSize: 10})
	a := vec([]float64{1, 2, 3, 4})
	ix.Add("oid-a", a)
	oid, ok := ix.Match(a)
	assert.True(t, ok)
	assert.Equal(t, "oid-a", oid)
}

func TestMatchFindsCloseNeighbor(t *testing.T) {
	ix := New(Config{SignatureBits: 16, Threshold: 0.1, PoolSize: 10})
	a := vec([]float64{1, 2, 3, 4})
	ix.Add("oid-a", a)
	close := vec([]float64{1.01, 2.0, 3.0, 4.0})
	oid, ok := ix.Match(close)
	assert.True(t, ok)
	assert.Equal(t, "oid-a", oid)
}

func TestMatchRejectsFarTensor(t *testing.T) {
	ix := New(Config{SignatureBits: 16, Threshold: 0.01, PoolSize: 10})
	a := vec([]float64{1, 2, 3, 4})
	ix.Add("oid-a", a)
	far := vec([]float64{100, 200, 300, 400})
	_, ok := ix.Match(far)
	assert.False(t, ok)
}

func TestPoolSizeEvictsOldest(t *testing.T) {
	ix := New(Config{SignatureBits: 16, Threshold: 1e-6, PoolSize: 2})
	ix.Add("oid-1", vec([]float64{1}))
	ix.Add("oid-2", vec([]float64{2}))
	ix.Add("oid-3", vec([]float64{3}))
	assert.Len(t, ix.entries, 2)
	_, found1 := ix.Match(vec([]float64{1}))
	assert.False(t, found1)
}

func TestCloseWithinTolerance(t *testing.T) {
	a := vec([]float64{1.0})
	b := vec([]float64{1.0 + 1e-9})
	assert.True(t, Close(a, b, 1e-8, 1e-5))
	c := vec([]float64{2.0})
	assert.False(t, Close(a, c, 1e-8, 1e-5))
}

package update

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r-three/git-theta-go/pkg/tensor"
)

func vecTensor(vals []float64) tensor.Tensor {
	t := tensor.Zeros([]int{len(vals)}, tensor.Float32)
	for i, v := range vals {
		t.SetFloat64At(i, v)
	}
	return t
}

func TestDenseRoundTrip(t *testing.T) {
	d := NewDense()
	p := vecTensor([]float64{1, 2, 3})
	rec, err := d.CalculateUpdate(context.Background(), p, tensor.Tensor{}, nil)
	require.NoError(t, err)
	out, err := d.ApplyUpdate(context.Background(), rec, tensor.Tensor{})
	require.NoError(t, err)
	assert.True(t, p.Equal(out))
}

func TestSparseCalculateAndApply(t *testing.T) {
	s := NewSparse()
	prev := vecTensor([]float64{1, 2, 3, 4})
	next := vecTensor([]float64{1, 99, 3, 4})
	rec, err := s.CalculateUpdate(context.Background(), next, prev, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rec["indices"].NumElements())

	out, err := s.ApplyUpdate(context.Background(), rec, prev)
	require.NoError(t, err)
	assert.True(t, next.Equal(out))
}

func TestSparseRefusesDenseChange(t *testing.T) {
	s := NewSparse()
	prev := vecTensor([]float64{1, 2, 3, 4})
	next := vecTensor([]float64{9, 9, 9, 4})
	_, err := s.CalculateUpdate(context.Background(), next, prev, nil)
	assert.Error(t, err)
}

func TestSparseApplyRejectsBadKeys(t *testing.T) {
	s := NewSparse()
	prev := vecTensor([]float64{1, 2})
	_, err := s.ApplyUpdate(context.Background(), Record{"oops": prev}, prev)
	assert.Error(t, err)
}

func TestLowRankApproximatesDelta(t *testing.T) {
	lr := NewLowRank()
	rows, cols := 4, 4
	prev := tensor.Zeros([]int{rows, cols}, tensor.Float64)
	next := tensor.Zeros([]int{rows, cols}, tensor.Float64)
	// Construct a rank-1 delta u v^T so a rank-1 factorization is exact.
	u := []float64{1, 2, 3, 4}
	v := []float64{1, -1, 2, -2}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			prev.SetFloat64At(i*cols+j, float64(i+j))
			next.SetFloat64At(i*cols+j, prev.Float64At(i*cols+j)+u[i]*v[j])
		}
	}
	rec, err := lr.CalculateUpdate(context.Background(), next, prev, map[string]any{"rank": 1})
	require.NoError(t, err)
	out, err := lr.ApplyUpdate(context.Background(), rec, prev)
	require.NoError(t, err)
	for i := 0; i < rows*cols; i++ {
		assert.InDelta(t, next.Float64At(i), out.Float64At(i), 1e-6)
	}
}

func TestLowRankApplyRejectsIncompatibleFactors(t *testing.T) {
	lr := NewLowRank()
	prev := tensor.Zeros([]int{2, 2}, tensor.Float64)
	r := tensor.Zeros([]int{2, 3}, tensor.Float64)
	c := tensor.Zeros([]int{2, 2}, tensor.Float64)
	_, err := lr.ApplyUpdate(context.Background(), Record{"r": r, "c": c}, prev)
	assert.Error(t, err)
}

func TestIA3RoundTripUniformScale(t *testing.T) {
	ia3 := NewIA3()
	prev := tensor.Zeros([]int{2, 3}, tensor.Float64)
	next := tensor.Zeros([]int{2, 3}, tensor.Float64)
	for i := 0; i < 6; i++ {
		prev.SetFloat64At(i, float64(i+1))
		next.SetFloat64At(i, float64(i+1)*2)
	}
	rec, err := ia3.CalculateUpdate(context.Background(), next, prev, map[string]any{"broadcast_dims": []int{1}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, rec["ia3"].Shape)
	for i := 0; i < rec["ia3"].NumElements(); i++ {
		assert.InDelta(t, 2.0, rec["ia3"].Float64At(i), 1e-9)
	}

	out, err := ia3.ApplyUpdate(context.Background(), rec, prev)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.InDelta(t, next.Float64At(i), out.Float64At(i), 1e-9)
	}
}

func TestIA3MasksDivideByZero(t *testing.T) {
	ia3 := NewIA3()
	prev := vecTensor([]float64{0, 2})
	next := vecTensor([]float64{5, 4})
	rec, err := ia3.CalculateUpdate(context.Background(), next, prev, map[string]any{"broadcast_dims": []int{0}})
	require.NoError(t, err)
	// Only index 1 contributes (index 0's previous value is zero and
	// masked out of both the ratio and the denominator).
	assert.InDelta(t, 2.0, rec["ia3"].Float64At(0), 1e-9)
	assert.False(t, math.IsNaN(rec["ia3"].Float64At(0)))
}

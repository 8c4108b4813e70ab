package update

import (
	"fmt"

	"context"

	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

// IA3 encodes a change as a per-activation scaling multiplier, averaged
// over a set of broadcast dimensions. Ported from the original's
// ia3.py: divide-by-zero is masked out of both the elementwise ratio and
// the averaging denominator, rather than propagating NaN/Inf.
type IA3 struct{}

func NewIA3() IA3 { return IA3{} }

func (IA3) Name() types.UpdateType { return types.UpdateIA3 }
func (IA3) RequiredKeys() []string { return []string{"ia3"} }

func (IA3) FormatUpdate(p tensor.Tensor) Record { return Record{"ia3": p} }

func (IA3) CalculateUpdate(ctx context.Context, next, previous tensor.Tensor, aux map[string]any) (Record, error) {
	if next.NumElements() != previous.NumElements() || len(next.Shape) != len(previous.Shape) {
		return nil, fmt.Errorf("update/ia3: shape mismatch: %v vs %v", next.Shape, previous.Shape)
	}
	broadcastDims, _ := aux["broadcast_dims"].([]int)
	shape := next.Shape
	strides := rowMajorStrides(shape)

	multiplier := make([]float64, next.NumElements())
	mask1 := make([]bool, len(multiplier))
	for i := range multiplier {
		pv := previous.Float64At(i)
		if pv != 0 {
			multiplier[i] = next.Float64At(i) / pv
			mask1[i] = true
		}
	}

	outShape := collapsedShape(shape, broadcastDims)
	outStrides := rowMajorStrides(outShape)
	sums := make([]float64, productOf(outShape))
	counts := make([]float64, productOf(outShape))

	idx := make([]int, len(shape))
	for lin := 0; lin < len(multiplier); lin++ {
		unflatten(lin, strides, idx)
		outIdx := collapseIndex(idx, broadcastDims)
		outLin := flatten(outIdx, outStrides)
		if mask1[lin] {
			sums[outLin] += multiplier[lin]
			counts[outLin]++
		}
	}

	ia3Update := tensor.Zeros(outShape, next.Dtype)
	for i := range sums {
		if counts[i] != 0 {
			ia3Update.SetFloat64At(i, sums[i]/counts[i])
		}
	}
	return Record{"ia3": ia3Update}, nil
}

func (IA3) ApplyUpdate(ctx context.Context, rec Record, previous tensor.Tensor) (tensor.Tensor, error) {
	if err := Validate(IA3{}, rec); err != nil {
		return tensor.Tensor{}, err
	}
	ia3 := rec["ia3"]
	out := previous.Clone()
	shape := previous.Shape
	strides := rowMajorStrides(shape)
	ia3Strides := rowMajorStrides(ia3.Shape)

	idx := make([]int, len(shape))
	for lin := 0; lin < previous.NumElements(); lin++ {
		unflatten(lin, strides, idx)
		ia3Idx := broadcastIndex(idx, ia3.Shape)
		ia3Lin := flatten(ia3Idx, ia3Strides)
		out.SetFloat64At(lin, previous.Float64At(lin)*ia3.Float64At(ia3Lin))
	}
	return out, nil
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

func unflatten(lin int, strides []int, into []int) {
	rem := lin
	for i, s := range strides {
		if s == 0 {
			into[i] = 0
			continue
		}
		into[i] = rem / s
		rem %= s
	}
}

func flatten(idx []int, strides []int) int {
	lin := 0
	for i, s := range strides {
		lin += idx[i] * s
	}
	return lin
}

// collapsedShape returns shape with each dim in dims set to size 1
// (numpy's keepdims=True).
func collapsedShape(shape []int, dims []int) []int {
	out := append([]int(nil), shape...)
	for _, d := range dims {
		if d >= 0 && d < len(out) {
			out[d] = 1
		}
	}
	return out
}

// collapseIndex projects idx onto the collapsed (broadcast-reduced) shape
// by zeroing the coordinates along the reduced dims.
func collapseIndex(idx []int, dims []int) []int {
	out := append([]int(nil), idx...)
	for _, d := range dims {
		if d >= 0 && d < len(out) {
			out[d] = 0
		}
	}
	return out
}

// broadcastIndex maps a full-shape index down to an index into a
// smaller, size-1-on-broadcast-dims shape (standard numpy broadcasting).
func broadcastIndex(idx []int, shape []int) []int {
	out := make([]int, len(shape))
	for i := range shape {
		if shape[i] == 1 {
			out[i] = 0
		} else {
			out[i] = idx[i]
		}
	}
	return out
}

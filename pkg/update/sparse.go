package update

import (
	"context"
	"fmt"

	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

// SparseInapplicableRatio bounds how dense a change may be before Sparse
// refuses to encode it, rather than silently writing a values tensor
// nearly as large as the parameter itself. Policy choice documented in
// DESIGN.md; callers that want dense back off retry with Dense
// themselves — Sparse never substitutes it.
const SparseInapplicableRatio = 0.5

// Sparse encodes a change as the (index, value) pairs that actually
// changed, applied on top of a copy of the previous tensor.
type Sparse struct{}

func NewSparse() Sparse { return Sparse{} }

func (Sparse) Name() types.UpdateType { return types.UpdateSparse }
func (Sparse) RequiredKeys() []string { return []string{"values", "indices"} }

func (Sparse) FormatUpdate(p tensor.Tensor) Record {
	n := p.NumElements()
	indices := make([]int64, n)
	for i := range indices {
		indices[i] = int64(i)
	}
	return Record{"values": p, "indices": tensor.IntVector(indices)}
}

func (s Sparse) CalculateUpdate(ctx context.Context, next, previous tensor.Tensor, aux map[string]any) (Record, error) {
	if next.NumElements() != previous.NumElements() {
		return nil, fmt.Errorf("update/sparse: shape mismatch: %v vs %v", next.Shape, previous.Shape)
	}
	var indices []int64
	var values []float64
	for i := 0; i < next.NumElements(); i++ {
		nv, pv := next.Float64At(i), previous.Float64At(i)
		if nv != pv {
			indices = append(indices, int64(i))
			values = append(values, nv)
		}
	}
	n := next.NumElements()
	if n > 0 && float64(len(indices))/float64(n) > SparseInapplicableRatio {
		return nil, fmt.Errorf("update/sparse: %d/%d elements changed, exceeds %.0f%% density threshold", len(indices), n, SparseInapplicableRatio*100)
	}
	valuesTensor := tensor.Zeros([]int{len(values)}, next.Dtype)
	for i, v := range values {
		valuesTensor.SetFloat64At(i, v)
	}
	return Record{
		"values":  valuesTensor,
		"indices": tensor.IntVector(indices),
	}, nil
}

func (Sparse) ApplyUpdate(ctx context.Context, rec Record, previous tensor.Tensor) (tensor.Tensor, error) {
	if err := Validate(Sparse{}, rec); err != nil {
		return tensor.Tensor{}, err
	}
	out := previous.Clone()
	indices := rec["indices"].Ints()
	values := rec["values"]
	for i, idx := range indices {
		out.SetFloat64At(int(idx), values.Float64At(i))
	}
	return out, nil
}

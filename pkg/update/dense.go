package update

import (
	"context"

	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

// Dense is the default update kind: the parameter's full new value,
// selected the first time a name is seen, when no previous value is
// available, or by explicit override.
type Dense struct{}

func NewDense() Dense { return Dense{} }

func (Dense) Name() types.UpdateType   { return types.UpdateDense }
func (Dense) RequiredKeys() []string   { return []string{"parameter"} }
func (Dense) FormatUpdate(p tensor.Tensor) Record { return Record{"parameter": p} }

func (d Dense) CalculateUpdate(ctx context.Context, next, previous tensor.Tensor, aux map[string]any) (Record, error) {
	return d.FormatUpdate(next), nil
}

func (Dense) ApplyUpdate(ctx context.Context, rec Record, previous tensor.Tensor) (tensor.Tensor, error) {
	p, ok := rec["parameter"]
	if !ok {
		return tensor.Tensor{}, &RecordShapeError{Kind: "dense", Want: []string{"parameter"}}
	}
	return p, nil
}

package update

import (
	"context"
	"fmt"
	"math"

	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

// LowRank encodes a change as an m×r by r×n factorization of the delta
// between new and previous. The pack carries no linear-algebra library
// (no gonum/mat anywhere in the retrieval set), so the factorization
// below is a small self-contained truncated SVD via power iteration with
// deflation — adequate for the low ranks this update kind targets, and
// documented as a stdlib-only component in DESIGN.md.
type LowRank struct{}

func NewLowRank() LowRank { return LowRank{} }

func (LowRank) Name() types.UpdateType { return types.UpdateLowRank }
func (LowRank) RequiredKeys() []string { return []string{"r", "c"} }

func (LowRank) FormatUpdate(p tensor.Tensor) Record {
	// Hand-authoring a low-rank update from a dense tensor needs a rank
	// choice; this uses rank 1: R holds each row's mean and C is a 1xN row
	// of ones, so R@C is p with every row replaced by its mean (exact only
	// when each row of p is constant).
	rows, cols := dims2D(p.Shape)
	r := tensor.Zeros([]int{rows, 1}, p.Dtype)
	c := tensor.Zeros([]int{1, cols}, p.Dtype)
	for i := 0; i < cols; i++ {
		c.SetFloat64At(i, 1)
	}
	for i := 0; i < rows; i++ {
		// Average each row so R@C approximates p under the all-ones C.
		sum := 0.0
		for j := 0; j < cols; j++ {
			sum += p.Float64At(i*cols + j)
		}
		r.SetFloat64At(i, sum/float64(cols))
	}
	return Record{"r": r, "c": c}
}

func dims2D(shape []int) (rows, cols int) {
	if len(shape) != 2 {
		rows, cols = 1, productOf(shape)
		return
	}
	return shape[0], shape[1]
}

func productOf(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (lr LowRank) CalculateUpdate(ctx context.Context, next, previous tensor.Tensor, aux map[string]any) (Record, error) {
	if len(next.Shape) != 2 {
		return nil, fmt.Errorf("update/low-rank: only 2D tensors are supported, got shape %v", next.Shape)
	}
	rank, _ := aux["rank"].(int)
	if rank <= 0 {
		rank = 1
	}
	rows, cols := next.Shape[0], next.Shape[1]
	delta := make([][]float64, rows)
	for i := range delta {
		delta[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			delta[i][j] = next.Float64At(i*cols+j) - previous.Float64At(i*cols+j)
		}
	}
	if rank > min(rows, cols) {
		rank = min(rows, cols)
	}
	us, singular, vs := truncatedSVD(delta, rank)

	r := tensor.Zeros([]int{rows, rank}, next.Dtype)
	c := tensor.Zeros([]int{rank, cols}, next.Dtype)
	for k := 0; k < rank; k++ {
		sqrtS := math.Sqrt(math.Max(singular[k], 0))
		for i := 0; i < rows; i++ {
			r.SetFloat64At(i*rank+k, us[k][i]*sqrtS)
		}
		for j := 0; j < cols; j++ {
			c.SetFloat64At(k*cols+j, vs[k][j]*sqrtS)
		}
	}
	return Record{"r": r, "c": c}, nil
}

func (LowRank) ApplyUpdate(ctx context.Context, rec Record, previous tensor.Tensor) (tensor.Tensor, error) {
	if err := Validate(LowRank{}, rec); err != nil {
		return tensor.Tensor{}, err
	}
	r, c := rec["r"], rec["c"]
	if len(r.Shape) != 2 || len(c.Shape) != 2 || r.Shape[1] != c.Shape[0] {
		return tensor.Tensor{}, fmt.Errorf("update/low-rank: incompatible factor shapes R=%v C=%v", r.Shape, c.Shape)
	}
	rows, rank, cols := r.Shape[0], r.Shape[1], c.Shape[1]
	out := previous.Clone()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sum := 0.0
			for k := 0; k < rank; k++ {
				sum += r.Float64At(i*rank+k) * c.Float64At(k*cols+j)
			}
			idx := i*cols + j
			out.SetFloat64At(idx, previous.Float64At(idx)+sum)
		}
	}
	return out, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// truncatedSVD returns the top-`rank` left singular vectors, singular
// values, and right singular vectors of m via power iteration with
// deflation.
func truncatedSVD(m [][]float64, rank int) (us [][]float64, singular []float64, vs [][]float64) {
	rows := len(m)
	cols := 0
	if rows > 0 {
		cols = len(m[0])
	}
	work := make([][]float64, rows)
	for i := range work {
		work[i] = append([]float64(nil), m[i]...)
	}

	for k := 0; k < rank; k++ {
		u, s, v := powerIterationSVD(work, rows, cols)
		us = append(us, u)
		vs = append(vs, v)
		singular = append(singular, s)
		// Deflate: work -= s * u v^T
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				work[i][j] -= s * u[i] * v[j]
			}
		}
	}
	return us, singular, vs
}

// powerIterationSVD extracts the dominant singular triple of m via power
// iteration on m^T m.
func powerIterationSVD(m [][]float64, rows, cols int) (u []float64, s float64, v []float64) {
	v = make([]float64, cols)
	if cols == 0 || rows == 0 {
		return make([]float64, rows), 0, v
	}
	// Start from the largest-norm row of m rather than a fixed vector: a
	// fixed start such as all-ones is orthogonal to every delta whose rows
	// sum to zero, while a row of m lies in m's own row space.
	best, bestNorm := 0, -1.0
	for i := 0; i < rows; i++ {
		n := 0.0
		for j := 0; j < cols; j++ {
			n += m[i][j] * m[i][j]
		}
		if n > bestNorm {
			best, bestNorm = i, n
		}
	}
	copy(v, m[best])
	normalize(v)
	const iterations = 64
	for iter := 0; iter < iterations; iter++ {
		// u = M v
		u = make([]float64, rows)
		for i := 0; i < rows; i++ {
			sum := 0.0
			for j := 0; j < cols; j++ {
				sum += m[i][j] * v[j]
			}
			u[i] = sum
		}
		normalize(u)
		// v = M^T u
		v = make([]float64, cols)
		for j := 0; j < cols; j++ {
			sum := 0.0
			for i := 0; i < rows; i++ {
				sum += m[i][j] * u[i]
			}
			v[j] = sum
		}
		s = normalize(v)
	}
	// Recompute u against the converged v so sign/scale are consistent.
	u = make([]float64, rows)
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			sum += m[i][j] * v[j]
		}
		u[i] = sum
	}
	s = normalize(u)
	return u, s, v
}

// normalize scales x to unit L2 norm in place and returns the original
// norm.
func normalize(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm < 1e-15 {
		return 0
	}
	for i := range x {
		x[i] /= norm
	}
	return norm
}

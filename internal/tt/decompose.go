package tt

import (
	"context"
	"fmt"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/linalg"
)

// DefaultTolerance is the relative singular-value cutoff used by Decompose to
// drop numerically zero directions.
const DefaultTolerance = 1e-14

// DecomposeOptions configures Decompose.
type DecomposeOptions struct {
	// Tolerance is the cutoff relative to the largest singular value of each
	// unfolding. Zero selects DefaultTolerance.
	Tolerance float64
	// MaxRank caps every bond dimension. Zero means unbounded. A cap below the
	// numerical rank makes the result inexact.
	MaxRank int
}

// DefaultDecomposeOptions returns options for an exact decomposition.
func DefaultDecomposeOptions() DecomposeOptions {
	return DecomposeOptions{Tolerance: DefaultTolerance}
}

// Decompose computes the TT-SVD of x: the tensor is unfolded left to right,
// each unfolding is factorized by a thin SVD, the left singular vectors become
// a core and Σ·Vᵀ carries over to the next unfolding.
//
// The context is checked between bonds. A failed factorization returns
// ErrUnsupportedRank.
func Decompose(ctx context.Context, x *dense.Tensor, opts DecomposeOptions) (*Tensor, error) {
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	if !x.IsFinite() {
		return nil, fmt.Errorf("%w: input contains NaN or Inf", ErrUnsupportedRank)
	}

	dims := x.Shape()
	d := len(dims)
	cores := make([]*Core, d)

	// The first unfolding reads the input buffer directly; ThinSVD never writes to it.
	remainder := x.Data()
	rPrev := 1
	for k := 0; k < d-1; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows := rPrev * dims[k]
		cols := len(remainder) / rows

		f, err := linalg.ThinSVD(rows, cols, remainder)
		if err != nil {
			return nil, fmt.Errorf("%w: bond %d (%dx%d unfolding): %v", ErrUnsupportedRank, k+1, rows, cols, err)
		}

		r := linalg.NumericalRank(f.S, tol)
		if opts.MaxRank > 0 {
			r = min(r, opts.MaxRank)
		}

		cores[k] = &Core{Left: rPrev, Mode: dims[k], Right: r, Data: leadingColumns(f.U, rows, f.K, r)}

		next := make([]float64, r*cols)
		copy(next, f.Vt[:r*cols])
		linalg.ScaleRows(r, cols, next, f.S[:r])
		remainder = next
		rPrev = r
	}

	if d == 1 {
		remainder = append([]float64(nil), remainder...)
	}
	cores[d-1] = &Core{Left: rPrev, Mode: dims[d-1], Right: 1, Data: remainder}

	return New(cores)
}

// leadingColumns copies the first r columns of the row-major rows×cols matrix a.
func leadingColumns(a []float64, rows, cols, r int) []float64 {
	if r == cols {
		out := make([]float64, len(a))
		copy(out, a)
		return out
	}
	out := make([]float64, rows*r)
	for i := 0; i < rows; i++ {
		copy(out[i*r:(i+1)*r], a[i*cols:i*cols+r])
	}
	return out
}

// Package evaluate measures how well a tensor train approximates a dense
// reference by contracting the chain back into a dense array.
package evaluate

import (
	"errors"
	"fmt"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/linalg"
	"github.com/born-ml/tensortrain/internal/parallel"
	"github.com/born-ml/tensortrain/internal/tt"
)

// ErrZeroReference is returned when the relative error is undefined: the
// reference has zero norm but the approximation does not.
var ErrZeroReference = errors.New("relative error undefined for zero reference")

// Evaluator contracts tensor trains and compares them against references.
// The zero value contracts sequentially.
type Evaluator struct {
	Parallel parallel.Config
}

// New returns an Evaluator using the given parallel configuration.
func New(cfg parallel.Config) *Evaluator {
	return &Evaluator{Parallel: cfg}
}

// Reconstruct contracts the chain left to right into a dense tensor of t.Dims().
//
// The running product is kept as an (n_1⋯n_k)×r_k matrix; multiplying it by
// the right unfolding of core k+1 and reading the result as
// (n_1⋯n_{k+1})×r_{k+1} advances one core without any reordering.
func (e *Evaluator) Reconstruct(t *tt.Tensor) *dense.Tensor {
	first := t.Core(0)
	acc := make([]float64, len(first.Data))
	copy(acc, first.Data)

	for k := 1; k < t.Order(); k++ {
		c := t.Core(k)
		rows := len(acc) / c.Left
		width := c.Mode * c.Right
		out := make([]float64, rows*width)
		src := acc
		parallel.Blocks(rows, func(start, end int) {
			linalg.MulTo(out[start*width:end*width], end-start, c.Left, width, src[start*c.Left:end*c.Left], c.Data)
		}, e.Parallel)
		acc = out
	}

	x, err := dense.New(t.Dims(), acc)
	if err != nil {
		// tt.New guarantees a well-formed chain.
		panic(err)
	}
	return x
}

// RelativeError returns ‖ref − Reconstruct(t)‖ / ‖ref‖.
//
// Returns dense.ErrShapeMismatch when the dimensions disagree. A zero-norm
// reference yields 0 if the reconstruction is exactly zero and
// ErrZeroReference otherwise.
func (e *Evaluator) RelativeError(ref *dense.Tensor, t *tt.Tensor) (float64, error) {
	if !ref.Shape().Equal(t.Dims()) {
		return 0, fmt.Errorf("%w: reference %v vs tensor train %v", dense.ErrShapeMismatch, ref.Shape(), t.Dims())
	}
	approx := e.Reconstruct(t)
	return Compare(ref, approx)
}

// SquaredRelativeError returns ‖ref − Reconstruct(t)‖² / ‖ref‖².
func (e *Evaluator) SquaredRelativeError(ref *dense.Tensor, t *tt.Tensor) (float64, error) {
	rel, err := e.RelativeError(ref, t)
	return rel * rel, err
}

// Compare returns the relative Frobenius error of approx against ref.
func Compare(ref, approx *dense.Tensor) (float64, error) {
	diff, err := approx.Sub(ref)
	if err != nil {
		return 0, err
	}
	refNorm := ref.FrobeniusNorm()
	diffNorm := diff.FrobeniusNorm()
	if refNorm == 0 {
		if diffNorm == 0 {
			return 0, nil
		}
		return 0, ErrZeroReference
	}
	return diffNorm / refNorm, nil
}

// Reconstruct contracts t sequentially.
func Reconstruct(t *tt.Tensor) *dense.Tensor {
	return (&Evaluator{}).Reconstruct(t)
}

// RelativeError compares ref against t sequentially.
func RelativeError(ref *dense.Tensor, t *tt.Tensor) (float64, error) {
	return (&Evaluator{}).RelativeError(ref, t)
}

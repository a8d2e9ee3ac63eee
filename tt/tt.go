// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tt

import (
	"context"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/evaluate"
	"github.com/born-ml/tensortrain/internal/tt"
)

// Type aliases for public API

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = dense.Shape

// Dense is a row-major multidimensional array of float64.
type Dense = dense.Tensor

// Core is one (r_{k-1}, n_k, r_k) factor of a tensor train.
type Core = tt.Core

// Tensor is a tensor train: a chain of cores with boundary ranks 1.
type Tensor = tt.Tensor

// DecomposeOptions configures Decompose.
type DecomposeOptions = tt.DecomposeOptions

// RoundOptions configures Round.
type RoundOptions = tt.RoundOptions

// RoundStats describes a completed rounding pass.
type RoundStats = tt.RoundStats

// BudgetFunc splits the squared error allowance across bonds.
type BudgetFunc = tt.BudgetFunc

// Errors.
var (
	ErrShapeMismatch    = dense.ErrShapeMismatch
	ErrInvalidShape     = dense.ErrInvalidShape
	ErrUnsupportedRank  = tt.ErrUnsupportedRank
	ErrInvalidThreshold = tt.ErrInvalidThreshold
	ErrZeroReference    = evaluate.ErrZeroReference
)

// DefaultTolerance is the relative singular value cutoff used by Decompose.
const DefaultTolerance = tt.DefaultTolerance

// NewDense creates a dense tensor that takes ownership of data.
func NewDense(shape Shape, data []float64) (*Dense, error) {
	return dense.New(shape, data)
}

// NewTensor assembles a tensor train from cores.
func NewTensor(cores []*Core) (*Tensor, error) {
	return tt.New(cores)
}

// NewCore creates a core of shape (left, mode, right).
func NewCore(left, mode, right int, data []float64) (*Core, error) {
	return tt.NewCore(left, mode, right, data)
}

// DefaultDecomposeOptions returns the default TT-SVD options.
func DefaultDecomposeOptions() DecomposeOptions {
	return tt.DefaultDecomposeOptions()
}

// Decompose computes the exact tensor train of x by TT-SVD.
func Decompose(ctx context.Context, x *Dense, opts DecomposeOptions) (*Tensor, error) {
	return tt.Decompose(ctx, x, opts)
}

// Round truncates t to relative accuracy eps. The input is not modified.
func Round(ctx context.Context, t *Tensor, eps float64, opts RoundOptions) (*Tensor, error) {
	return tt.Round(ctx, t, eps, opts)
}

// EvenBudget gives every bond the same share of the error budget.
func EvenBudget(totalSq float64, bonds int) []float64 {
	return tt.EvenBudget(totalSq, bonds)
}

// Reconstruct contracts t into a dense tensor.
func Reconstruct(t *Tensor) *Dense {
	return evaluate.Reconstruct(t)
}

// RelativeError returns ‖ref − Reconstruct(t)‖ / ‖ref‖.
func RelativeError(ref *Dense, t *Tensor) (float64, error) {
	return evaluate.RelativeError(ref, t)
}

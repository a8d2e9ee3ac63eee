package tt

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/tensortrain/internal/linalg"
)

// BudgetFunc splits a total squared error allowance across bonds. It must
// return bonds non-negative values whose sum does not exceed totalSq.
type BudgetFunc func(totalSq float64, bonds int) []float64

// EvenBudget gives every bond the same squared allowance totalSq/bonds.
func EvenBudget(totalSq float64, bonds int) []float64 {
	out := make([]float64, bonds)
	for i := range out {
		out[i] = totalSq / float64(bonds)
	}
	return out
}

// RoundOptions configures Round.
type RoundOptions struct {
	// Budget distributes ε²‖T‖² across the d-1 bonds. Nil selects EvenBudget.
	Budget BudgetFunc
	// MaxRank caps every bond dimension after truncation. Zero means unbounded.
	// With a cap the accuracy guarantee no longer holds.
	MaxRank int
}

// RoundStats describes a completed rounding pass.
type RoundStats struct {
	// Norm is the Frobenius norm of the input, read off the last core after
	// orthogonalization.
	Norm float64
	// Discarded holds the squared norm of the singular values dropped at each
	// bond, indexed by bond-1.
	Discarded []float64
	// EstimatedError is sqrt(ΣDiscarded)/Norm, the relative error predicted by
	// the orthogonal truncations. It agrees with the measured error up to
	// round-off of order machine epsilon times the number of cores.
	EstimatedError float64
}

// Round truncates t to the smallest ranks whose reconstruction stays within
// relative Frobenius error eps of t. The input is not modified.
//
// For eps >= 1 every interior rank collapses to 1.
func Round(ctx context.Context, t *Tensor, eps float64, opts RoundOptions) (*Tensor, error) {
	out, _, err := RoundWithStats(ctx, t, eps, opts)
	return out, err
}

// RoundWithStats is Round that also reports the truncation bookkeeping.
func RoundWithStats(ctx context.Context, t *Tensor, eps float64, opts RoundOptions) (*Tensor, RoundStats, error) {
	if math.IsNaN(eps) || eps <= 0 {
		return nil, RoundStats{}, fmt.Errorf("%w: %v", ErrInvalidThreshold, eps)
	}

	work := t.Clone()
	cores := work.cores
	d := len(cores)
	if d == 1 {
		return work, RoundStats{Norm: floats.Norm(cores[0].Data, 2)}, nil
	}

	if err := orthogonalizeLeft(ctx, cores); err != nil {
		return nil, RoundStats{}, err
	}

	// All cores but the last are left-orthonormal, so the tensor norm is the
	// norm of the last core.
	norm := floats.Norm(cores[d-1].Data, 2)
	budgets := bondBudgets(eps, norm, d-1, opts.Budget)
	if len(budgets) != d-1 {
		return nil, RoundStats{}, fmt.Errorf("budget function returned %d values for %d bonds", len(budgets), d-1)
	}

	stats := RoundStats{Norm: norm, Discarded: make([]float64, d-1)}
	for k := d - 1; k >= 1; k-- {
		if err := ctx.Err(); err != nil {
			return nil, RoundStats{}, err
		}

		c := cores[k]
		rows, cols := c.Left, c.Mode*c.Right
		f, err := linalg.ThinSVD(rows, cols, c.Data)
		if err != nil {
			return nil, RoundStats{}, fmt.Errorf("%w: bond %d (%dx%d unfolding): %v", ErrUnsupportedRank, k, rows, cols, err)
		}

		r := linalg.TruncationRank(f.S, budgets[k-1])
		if opts.MaxRank > 0 {
			r = min(r, opts.MaxRank)
		}
		tail := linalg.TailNorm(f.S, r)
		stats.Discarded[k-1] = tail * tail

		vt := make([]float64, r*cols)
		copy(vt, f.Vt[:r*cols])
		cores[k] = &Core{Left: r, Mode: c.Mode, Right: c.Right, Data: vt}

		// Fold U·Σ into the left neighbour.
		us := leadingColumns(f.U, rows, f.K, r)
		for i := 0; i < rows; i++ {
			for j := 0; j < r; j++ {
				us[i*r+j] *= f.S[j]
			}
		}
		prev := cores[k-1]
		cores[k-1] = &Core{
			Left:  prev.Left,
			Mode:  prev.Mode,
			Right: r,
			Data:  linalg.Mul(prev.Left*prev.Mode, prev.Right, r, prev.Data, us),
		}
	}

	if norm > 0 {
		stats.EstimatedError = math.Sqrt(floats.Sum(stats.Discarded)) / norm
	}
	return work, stats, nil
}

// Orthogonalize returns a copy of t whose first d-1 cores are
// left-orthonormal. The represented tensor is unchanged; ranks can only
// shrink where a bond exceeded its left unfolding size.
func Orthogonalize(ctx context.Context, t *Tensor) (*Tensor, error) {
	work := t.Clone()
	if err := orthogonalizeLeft(ctx, work.cores); err != nil {
		return nil, err
	}
	return work, nil
}

// orthogonalizeLeft sweeps left to right, replacing each core by the Q factor
// of its left unfolding and pushing R into the next core.
func orthogonalizeLeft(ctx context.Context, cores []*Core) error {
	for k := 0; k < len(cores)-1; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		c := cores[k]
		rows, cols := c.Left*c.Mode, c.Right
		q, r, m, err := linalg.QR(rows, cols, c.Data)
		if err != nil {
			return fmt.Errorf("%w: orthogonalizing core %d: %v", ErrUnsupportedRank, k, err)
		}
		cores[k] = &Core{Left: c.Left, Mode: c.Mode, Right: m, Data: q}

		next := cores[k+1]
		cores[k+1] = &Core{
			Left:  m,
			Mode:  next.Mode,
			Right: next.Right,
			Data:  linalg.Mul(m, next.Left, next.Mode*next.Right, r, next.Data),
		}
	}
	return nil
}

func bondBudgets(eps, norm float64, bonds int, split BudgetFunc) []float64 {
	if eps >= 1 {
		out := make([]float64, bonds)
		for i := range out {
			out[i] = math.Inf(1)
		}
		return out
	}
	if split == nil {
		split = EvenBudget
	}
	return split(eps*eps*norm*norm, bonds)
}

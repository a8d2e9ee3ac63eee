package sweep

import (
	"fmt"
	"slices"
	"time"
)

// DefaultThresholds are the accuracy targets swept when none are given.
var DefaultThresholds = []float64{1e-1, 1e-2, 1e-3, 1e-4, 1e-5, 1e-6, 1e-7, 1e-8}

// Record is the outcome of rounding to one threshold.
type Record struct {
	Threshold        float64       // Requested relative Frobenius error
	Ranks            []int         // Interior ranks r_1 … r_{d-1} of the rounded train
	RelativeError    float64       // Measured ‖ref − approx‖ / ‖ref‖
	SquaredError     float64       // RelativeError²
	// EstimatedError is predicted from the discarded singular values. It
	// falls back to RelativeError when the rounded train came from the cache,
	// including a duplicate threshold that shared another worker's rounding.
	EstimatedError   float64
	Params           int           // Stored elements across all cores
	CompressionRatio float64       // Dense element count / Params
	Duration         time.Duration // Wall time for rounding and evaluation
	Err              error         // Non-nil when this threshold failed
}

// OK reports whether the threshold completed.
func (r Record) OK() bool {
	return r.Err == nil
}

// MaxRank returns the largest interior rank, or 1 for a single-core train.
func (r Record) MaxRank() int {
	if len(r.Ranks) == 0 {
		return 1
	}
	return slices.Max(r.Ranks)
}

// String formats the record for console output.
func (r Record) String() string {
	if r.Err != nil {
		return fmt.Sprintf("eps=%.0e error: %v", r.Threshold, r.Err)
	}
	return fmt.Sprintf("eps=%.0e ranks=%v rel_error=%.3e sq_error=%.3e ratio=%.1f",
		r.Threshold, r.Ranks, r.RelativeError, r.SquaredError, r.CompressionRatio)
}

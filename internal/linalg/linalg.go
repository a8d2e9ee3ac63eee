// Package linalg wraps the gonum factorizations used by the tensor-train
// algorithms. All matrices are row-major []float64 buffers with explicit
// dimensions so that tensor cores can be unfolded without copying.
package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/lapack/gonum"
	"gonum.org/v1/gonum/mat"
)

// Common errors.
var (
	ErrNoConvergence = errors.New("factorization did not converge")
	ErrNotFinite     = errors.New("matrix contains NaN or Inf")
)

// SVD is a thin singular value decomposition A = U·diag(S)·Vt of a
// Rows×Cols matrix, with K = min(Rows, Cols).
type SVD struct {
	Rows, Cols, K int
	U             []float64 // Rows×K
	S             []float64 // K, descending
	Vt            []float64 // K×Cols
}

// ThinSVD factorizes the row-major rows×cols matrix a. The input is not modified.
func ThinSVD(rows, cols int, a []float64) (*SVD, error) {
	if len(a) != rows*cols {
		return nil, fmt.Errorf("svd: buffer of %d elements for %dx%d matrix", len(a), rows, cols)
	}
	if !finite(a) {
		return nil, ErrNotFinite
	}

	var f mat.SVD
	if ok := f.Factorize(mat.NewDense(rows, cols, a), mat.SVDThin); !ok {
		return nil, ErrNoConvergence
	}

	var u, v mat.Dense
	f.UTo(&u)
	f.VTo(&v)

	return &SVD{
		Rows: rows,
		Cols: cols,
		K:    min(rows, cols),
		U:    contiguous(&u),
		S:    f.Values(nil),
		Vt:   contiguous(mat.DenseCopyOf(v.T())),
	}, nil
}

// NumericalRank counts singular values above tol times the largest one.
// The result is at least 1 so that a zero matrix keeps a valid bond.
func NumericalRank(s []float64, tol float64) int {
	if len(s) == 0 || s[0] == 0 {
		return 1
	}
	cutoff := tol * s[0]
	r := 0
	for _, v := range s {
		if v > cutoff {
			r++
		}
	}
	return max(r, 1)
}

// TruncationRank returns the smallest r >= 1 such that the squared sum of the
// discarded singular values s[r:] does not exceed budget.
func TruncationRank(s []float64, budget float64) int {
	if len(s) == 0 || math.IsInf(budget, 1) {
		return 1
	}
	tail := 0.0
	r := len(s)
	for r > 1 {
		next := tail + s[r-1]*s[r-1]
		if next > budget {
			break
		}
		tail = next
		r--
	}
	return r
}

// TailNorm returns the Frobenius norm of the singular values s[r:].
func TailNorm(s []float64, r int) float64 {
	sum := 0.0
	for _, v := range s[min(r, len(s)):] {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// QR computes a thin Householder factorization A = Q·R of the row-major
// rows×cols matrix a, with K = min(rows, cols), Q rows×K having orthonormal
// columns and R K×cols upper trapezoidal. The input is not modified.
func QR(rows, cols int, a []float64) (q, r []float64, k int, err error) {
	if len(a) != rows*cols {
		return nil, nil, 0, fmt.Errorf("qr: buffer of %d elements for %dx%d matrix", len(a), rows, cols)
	}
	if !finite(a) {
		return nil, nil, 0, ErrNotFinite
	}

	impl := gonum.Implementation{}
	k = min(rows, cols)
	work := make([]float64, len(a))
	copy(work, a)
	tau := make([]float64, k)

	query := make([]float64, 1)
	impl.Dgeqrf(rows, cols, work, cols, tau, query, -1)
	scratch := make([]float64, max(int(query[0]), cols, 1))
	impl.Dgeqrf(rows, cols, work, cols, tau, scratch, len(scratch))

	r = make([]float64, k*cols)
	for i := 0; i < k; i++ {
		copy(r[i*cols+i:(i+1)*cols], work[i*cols+i:(i+1)*cols])
	}

	impl.Dorgqr(rows, k, k, work, cols, tau, query, -1)
	if need := max(int(query[0]), k, 1); need > len(scratch) {
		scratch = make([]float64, need)
	}
	impl.Dorgqr(rows, k, k, work, cols, tau, scratch, len(scratch))

	q = make([]float64, rows*k)
	for i := 0; i < rows; i++ {
		copy(q[i*k:(i+1)*k], work[i*cols:i*cols+k])
	}
	return q, r, k, nil
}

// Mul returns the row-major product of the m×k matrix a and the k×n matrix b.
func Mul(m, k, n int, a, b []float64) []float64 {
	out := make([]float64, m*n)
	MulTo(out, m, k, n, a, b)
	return out
}

// MulTo writes the product of the m×k matrix a and the k×n matrix b into dst.
func MulTo(dst []float64, m, k, n int, a, b []float64) {
	c := mat.NewDense(m, n, dst)
	c.Mul(mat.NewDense(m, k, a), mat.NewDense(k, n, b))
}

// ScaleRows multiplies row i of the rows×cols matrix a by s[i], in place.
func ScaleRows(rows, cols int, a, s []float64) {
	for i := 0; i < rows; i++ {
		row := a[i*cols : (i+1)*cols]
		for j := range row {
			row[j] *= s[i]
		}
	}
}

// contiguous returns the backing data of m with stride equal to its width.
func contiguous(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}
	out := make([]float64, raw.Rows*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		copy(out[i*raw.Cols:(i+1)*raw.Cols], raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols])
	}
	return out
}

func finite(a []float64) bool {
	for _, v := range a {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

package dense

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense d-dimensional array of float64 values in row-major order.
//
// The buffer length always equals shape.NumElements(). A Tensor is not
// mutated after construction; Data returns a view that callers must treat
// as read-only.
type Tensor struct {
	shape Shape
	data  []float64
}

// New creates a Tensor that takes ownership of data.
// Returns ErrShapeMismatch if len(data) != shape.NumElements().
func New(shape Shape, data []float64) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if n := shape.NumElements(); n != len(data) {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	return &Tensor{shape: shape.Clone(), data: data}, nil
}

// Zeros creates a zero-filled Tensor. Panics on an invalid shape.
func Zeros(shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(err)
	}
	return &Tensor{shape: shape.Clone(), data: make([]float64, shape.NumElements())}
}

// FromFunc creates a Tensor whose element at each multi-index is f(index).
// The index slice passed to f is reused between calls.
func FromFunc(shape Shape, f func(idx []int) float64) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	data := make([]float64, shape.NumElements())
	idx := make([]int, len(shape))
	for off := range data {
		data[off] = f(idx)
		// Advance the row-major counter.
		for k := len(shape) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}
	}
	return &Tensor{shape: shape.Clone(), data: data}, nil
}

// Shape returns a copy of the dimension tuple.
func (t *Tensor) Shape() Shape {
	return t.shape.Clone()
}

// Order returns the number of dimensions.
func (t *Tensor) Order() int {
	return len(t.shape)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns the underlying buffer (zero-copy).
//
// WARNING: the returned slice must not be modified.
func (t *Tensor) Data() []float64 {
	return t.data
}

// At returns the element at the given multi-index.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.shape.Offset(indices...)]
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}

// Reshape returns a tensor with a new dimension tuple over the same buffer.
// The element count must be preserved.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(t.data) {
		return nil, fmt.Errorf("%w: cannot reshape %v (%d elements) to %v", ErrShapeMismatch, t.shape, len(t.data), shape)
	}
	return &Tensor{shape: shape.Clone(), data: t.data}, nil
}

// Sub returns the elementwise difference t - other.
func (t *Tensor) Sub(other *Tensor) (*Tensor, error) {
	if !t.shape.Equal(other.shape) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, t.shape, other.shape)
	}
	out := make([]float64, len(t.data))
	floats.SubTo(out, t.data, other.data)
	return &Tensor{shape: t.shape.Clone(), data: out}, nil
}

// FrobeniusNorm returns the square root of the sum of squared elements.
// The accumulation is scaled to avoid overflow and underflow.
func (t *Tensor) FrobeniusNorm() float64 {
	if len(t.data) == 0 {
		return 0
	}
	return floats.Norm(t.data, 2)
}

// CountNonZero returns the number of elements whose magnitude exceeds tol.
// Use tol = 0 for an exact count.
func (t *Tensor) CountNonZero(tol float64) int {
	n := 0
	for _, v := range t.data {
		if math.Abs(v) > tol {
			n++
		}
	}
	return n
}

// IsFinite reports whether every element is neither NaN nor ±Inf.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Permute returns a new tensor with axes reordered so that output axis k is
// input axis perm[k].
func (t *Tensor) Permute(perm []int) (*Tensor, error) {
	d := len(t.shape)
	if len(perm) != d {
		return nil, fmt.Errorf("%w: permutation of length %d for order %d", ErrShapeMismatch, len(perm), d)
	}
	seen := make([]bool, d)
	outShape := make(Shape, d)
	for k, p := range perm {
		if p < 0 || p >= d || seen[p] {
			return nil, fmt.Errorf("%w: invalid permutation %v", ErrShapeMismatch, perm)
		}
		seen[p] = true
		outShape[k] = t.shape[p]
	}

	inStrides := t.shape.ComputeStrides()
	// Stride in the input buffer for each output axis.
	strides := make([]int, d)
	for k, p := range perm {
		strides[k] = inStrides[p]
	}

	out := make([]float64, len(t.data))
	idx := make([]int, d)
	src := 0
	for off := range out {
		out[off] = t.data[src]
		for k := d - 1; k >= 0; k-- {
			idx[k]++
			src += strides[k]
			if idx[k] < outShape[k] {
				break
			}
			src -= strides[k] * outShape[k]
			idx[k] = 0
		}
	}
	return &Tensor{shape: outShape, data: out}, nil
}

// FromColumnMajor builds a row-major Tensor from data laid out with the
// first index varying fastest (Fortran/MATLAB order).
func FromColumnMajor(shape Shape, data []float64) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	d := len(shape)
	reversed := make(Shape, d)
	perm := make([]int, d)
	for k := range shape {
		reversed[k] = shape[d-1-k]
		perm[k] = d - 1 - k
	}
	// A column-major buffer is the row-major buffer of the reversed shape.
	rev, err := New(reversed, data)
	if err != nil {
		return nil, err
	}
	return rev.Permute(perm)
}

// String returns a human-readable description.
func (t *Tensor) String() string {
	return fmt.Sprintf("Dense[%v]", t.shape)
}

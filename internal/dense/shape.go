package dense

import "fmt"

// Shape represents the dimensions of a dense tensor.
type Shape []int

// NumElements returns the total number of elements addressed by the shape.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (at least one dimension, all > 0).
func (s Shape) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty dimension tuple", ErrInvalidShape)
	}
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("%w: dimension %d is %d (must be > 0)", ErrInvalidShape, i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Product returns the product of dimensions in the half-open range [from, to).
// An empty range yields 1.
func (s Shape) Product(from, to int) int {
	n := 1
	for i := from; i < to; i++ {
		n *= s[i]
	}
	return n
}

// Offset converts a multi-index into a flat row-major offset.
// Panics if the index has the wrong arity or is out of bounds.
func (s Shape) Offset(indices ...int) int {
	if len(indices) != len(s) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(s), len(indices)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= s[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, s[i]))
		}
		offset = offset*s[i] + idx
	}
	return offset
}

// String renders the shape as "2x3x4".
func (s Shape) String() string {
	if len(s) == 0 {
		return "scalar"
	}
	out := fmt.Sprint(s[0])
	for _, d := range s[1:] {
		out += fmt.Sprintf("x%d", d)
	}
	return out
}

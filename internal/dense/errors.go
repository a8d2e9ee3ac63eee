package dense

import "errors"

// Common errors.
var (
	// ErrShapeMismatch is returned when operand dimensions disagree or a buffer
	// length does not match the product of its dimension tuple.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidShape is returned for empty tuples or non-positive dimensions.
	ErrInvalidShape = errors.New("invalid shape")
)

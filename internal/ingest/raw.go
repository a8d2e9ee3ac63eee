package ingest

import (
	"fmt"
	"io"

	"github.com/born-ml/tensortrain/internal/dense"
)

// Order is the memory layout of a source buffer.
type Order string

// Supported layouts.
const (
	RowMajor    Order = "row-major"
	ColumnMajor Order = "column-major"
)

// ParseOrder maps "row-major"/"C" and "column-major"/"F" to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "row-major", "C", "c":
		return RowMajor, nil
	case "column-major", "F", "f":
		return ColumnMajor, nil
	default:
		return "", fmt.Errorf("%w: unknown order %q", ErrIngestion, s)
	}
}

// RawOptions configures ReadRaw.
type RawOptions struct {
	DType      DType // Element type (default Float64)
	Order      Order // Source layout (default RowMajor)
	ChunkElems int   // Elements per chunk (default DefaultChunkElems)
}

// ReadRaw reads shape.NumElements() elements from r into a row-major dense
// tensor.
func ReadRaw(r io.Reader, shape dense.Shape, opts RawOptions) (*dense.Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	dtype := opts.DType
	if dtype == "" {
		dtype = Float64
	}

	data := make([]float64, shape.NumElements())
	if err := CopyChunked(data, r, dtype, opts.ChunkElems); err != nil {
		return nil, err
	}

	var (
		x   *dense.Tensor
		err error
	)
	switch opts.Order {
	case "", RowMajor:
		x, err = dense.New(shape.Clone(), data)
	case ColumnMajor:
		x, err = dense.FromColumnMajor(shape.Clone(), data)
	default:
		return nil, fmt.Errorf("%w: unknown order %q", ErrIngestion, opts.Order)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	return x, nil
}

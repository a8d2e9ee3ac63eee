package ingest

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// DefaultChunkElems is the number of elements moved per chunk (256×256).
const DefaultChunkElems = 256 * 256

// DType is the element type of a source buffer.
type DType string

// Supported source dtypes.
const (
	Float64 DType = "F64"
	Float32 DType = "F32"
)

// ParseDType maps a dtype name ("F64", "float64", "F32", "float32") to a DType.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(s) {
	case "", "f64", "float64", "double":
		return Float64, nil
	case "f32", "float32", "float":
		return Float32, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, s)
	}
}

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case Float64:
		return 8
	case Float32:
		return 4
	default:
		return 0
	}
}

// CopyChunked fills dst from src, decoding little-endian elements of dtype
// and converting them to float64. At most chunkElems elements are buffered at
// a time; a final chunk shorter than chunkElems is handled.
//
// Returns an error wrapping ErrIngestion and io.ErrUnexpectedEOF when src
// holds fewer than len(dst) elements.
func CopyChunked(dst []float64, src io.Reader, dtype DType, chunkElems int) error {
	size := dtype.Size()
	if size == 0 {
		return fmt.Errorf("%w: %w: %s", ErrIngestion, ErrUnsupportedDType, dtype)
	}
	if chunkElems <= 0 {
		chunkElems = DefaultChunkElems
	}

	buf := make([]byte, min(chunkElems, len(dst))*size)
	copied := 0
	for remaining := len(dst); remaining > 0; {
		n := min(chunkElems, remaining)
		chunk := buf[:n*size]
		if _, err := io.ReadFull(src, chunk); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("%w: read %d of %d elements: %w", ErrIngestion, copied, len(dst), err)
		}
		decode(dst[copied:copied+n], chunk, dtype)
		copied += n
		remaining -= n
	}
	return nil
}

func decode(dst []float64, src []byte, dtype DType) {
	switch dtype {
	case Float64:
		for i := range dst {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:]))
		}
	case Float32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
		}
	}
}

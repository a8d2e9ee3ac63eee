package sink

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/sweep"
)

// DefaultVariable is the variable name written when none is configured.
const DefaultVariable = "compressedTensor"

const extension = ".safetensors"

// SafeTensorHeader represents a tensor in the safetensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// SafeTensorsSink writes one safetensors file per threshold into Dir.
type SafeTensorsSink struct {
	Dir      string
	Variable string // Defaults to DefaultVariable
}

var _ sweep.Sink = (*SafeTensorsSink)(nil)

// NewSafeTensorsSink creates dir and returns a sink writing into it.
func NewSafeTensorsSink(dir, variable string) (*SafeTensorsSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if variable == "" {
		variable = DefaultVariable
	}
	return &SafeTensorsSink{Dir: dir, Variable: variable}, nil
}

// FileName returns the file name used for threshold eps.
func FileName(variable string, eps float64) string {
	return variable + "_" + strconv.FormatFloat(eps, 'g', -1, 64) + extension
}

// Path returns the file written for threshold eps.
func (s *SafeTensorsSink) Path(eps float64) string {
	return filepath.Join(s.Dir, FileName(s.variable(), eps))
}

func (s *SafeTensorsSink) variable() string {
	if s.Variable == "" {
		return DefaultVariable
	}
	return s.Variable
}

// Write stores approx under the record's threshold. The record's threshold,
// ranks and errors are kept in __metadata__.
func (s *SafeTensorsSink) Write(ctx context.Context, rec sweep.Record, approx *dense.Tensor) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(rec.Threshold)
	tmp, err := os.CreateTemp(s.Dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = WriteSafeTensors(tmp, s.variable(), approx, recordMetadata(rec)); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func recordMetadata(rec sweep.Record) map[string]string {
	ranks, _ := json.Marshal(rec.Ranks)
	return map[string]string{
		"threshold":         strconv.FormatFloat(rec.Threshold, 'g', -1, 64),
		"ranks":             string(ranks),
		"relative_error":    strconv.FormatFloat(rec.RelativeError, 'g', -1, 64),
		"squared_error":     strconv.FormatFloat(rec.SquaredError, 'g', -1, 64),
		"compression_ratio": strconv.FormatFloat(rec.CompressionRatio, 'g', -1, 64),
	}
}

// WriteSafeTensors writes x as a single F64 variable in safetensors format.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
func WriteSafeTensors(w io.Writer, name string, x *dense.Tensor, metadata map[string]string) error {
	shape := x.Shape()
	shapeInt64 := make([]int64, len(shape))
	for i, dim := range shape {
		shapeInt64[i] = int64(dim)
	}
	size := int64(x.Len() * 8)

	header := map[string]any{
		name: SafeTensorHeader{
			DType:       "F64",
			Shape:       shapeInt64,
			DataOffsets: [2]int64{0, size},
		},
	}
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Stream the payload in fixed blocks.
	const block = 8192
	buf := make([]byte, block*8)
	data := x.Data()
	for start := 0; start < len(data); start += block {
		end := min(start+block, len(data))
		for i, v := range data[start:end] {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		if _, err := w.Write(buf[:(end-start)*8]); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

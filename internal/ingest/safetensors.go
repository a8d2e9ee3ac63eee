package ingest

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/tensortrain/internal/dense"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

const maxSafeTensorsHeader = 100 * 1024 * 1024

// SafeTensorInfo describes a variable in a safetensors file.
type SafeTensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end]
}

// SafeTensorsHeader is the JSON header in safetensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string
	Tensors  map[string]SafeTensorInfo
}

// UnmarshalJSON splits the flat safetensors header into metadata and variables.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// SafeTensorsReader reads variables from a safetensors file.
type SafeTensorsReader struct {
	file       *os.File
	header     SafeTensorsHeader
	dataOffset int64
	dataSize   int64
}

// NewSafeTensorsReader opens path and parses its header.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: path is supplied by the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	r, err := parseSafeTensors(file)
	if err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("%w: %s: %w", ErrIngestion, path, err)
	}
	return r, nil
}

func parseSafeTensors(file *os.File) (*SafeTensorsReader, error) {
	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > maxSafeTensorsHeader {
		return nil, fmt.Errorf("invalid header size: %d (too large)", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var header SafeTensorsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: bounded by maxSafeTensorsHeader
	return &SafeTensorsReader{
		file:       file,
		header:     header,
		dataOffset: dataOffset,
		dataSize:   info.Size() - dataOffset,
	}, nil
}

// Close closes the underlying file.
func (r *SafeTensorsReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Metadata returns the __metadata__ map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the variable names in sorted order.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a variable.
func (r *SafeTensorsReader) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: variable %q not found", ErrIngestion, name)
	}
	return &info, nil
}

// Load reads variable name into a row-major dense tensor, converting F32 to
// float64. Data is streamed through CopyChunked with chunkElems elements per
// step.
func (r *SafeTensorsReader) Load(name string, chunkElems int) (*dense.Tensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	dtype := DType(info.DType)
	if dtype != Float64 && dtype != Float32 {
		return nil, fmt.Errorf("%w: variable %q: %w: %s", ErrIngestion, name, ErrUnsupportedDType, info.DType)
	}

	shape := dense.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: variable %q: %w", ErrIngestion, name, err)
	}

	start, end := info.DataOffsets[0], info.DataOffsets[1]
	want := int64(shape.NumElements() * dtype.Size())
	if start < 0 || end < start || end > r.dataSize || end-start != want {
		return nil, fmt.Errorf("%w: variable %q: data offsets [%d, %d] do not hold %d bytes", ErrIngestion, name, start, end, want)
	}

	section := io.NewSectionReader(r.file, r.dataOffset+start, end-start)
	return ReadRaw(section, shape, RawOptions{DType: dtype, ChunkElems: chunkElems})
}

// ReadSafeTensors loads variable from the safetensors file at path.
func ReadSafeTensors(path, variable string, chunkElems int) (*dense.Tensor, error) {
	r, err := NewSafeTensorsReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return r.Load(variable, chunkElems)
}

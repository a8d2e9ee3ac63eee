package serialization

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/tt"
)

// ReaderOptions configures how objects are read.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
	// ExpectShape, when set, rejects objects whose dimension tuple differs.
	ExpectShape dense.Shape
}

// Inspect decodes the headers of a .ttc stream without reading the payload.
func Inspect(r io.Reader) (*Header, Kind, error) {
	fixed, header, err := readHeaders(r)
	if err != nil {
		return nil, 0, err
	}
	return header, fixed.Kind, nil
}

// Verify checks the headers of a .ttc stream and streams its payload through
// the checksum without decoding it. Use it to audit cache entries whose
// payload is too large to hold twice.
func Verify(r io.Reader) (*Header, Kind, error) {
	fixed, header, err := readHeaders(r)
	if err != nil {
		return nil, 0, err
	}
	if err := ValidateHeader(header, fixed.Kind, ValidationStrict); err != nil {
		return nil, 0, fmt.Errorf("validation failed: %w", err)
	}
	if err := checkPayloadSize(fixed, header); err != nil {
		return nil, 0, err
	}
	sum, err := ComputeChecksumReader(r, int64(fixed.PayloadSize)) //nolint:gosec // G115: bounded by checkPayloadSize
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read payload: %w", err)
	}
	if err := ValidateChecksum(sum, fixed.Checksum); err != nil {
		return nil, 0, err
	}
	return header, fixed.Kind, nil
}

// ReadDense reads a dense tensor written by WriteDense.
func ReadDense(r io.Reader, opts ReaderOptions) (*dense.Tensor, *Header, error) {
	header, values, err := readObject(r, KindDense, opts)
	if err != nil {
		return nil, nil, err
	}
	x, err := dense.New(dense.Shape(header.Shape), values)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build tensor: %w", err)
	}
	return x, header, nil
}

// ReadTT reads a tensor train written by WriteTT.
func ReadTT(r io.Reader, opts ReaderOptions) (*tt.Tensor, *Header, error) {
	header, values, err := readObject(r, KindTT, opts)
	if err != nil {
		return nil, nil, err
	}

	cores := make([]*tt.Core, len(header.Shape))
	offset := 0
	for k, n := range header.Shape {
		size := header.Ranks[k] * n * header.Ranks[k+1]
		if offset+size > len(values) {
			return nil, nil, &ValidationError{Type: "payload_size", Field: "ranks", Details: fmt.Sprintf("core %d needs %d values, %d left", k, size, len(values)-offset)}
		}
		c, err := tt.NewCore(header.Ranks[k], n, header.Ranks[k+1], values[offset:offset+size:offset+size])
		if err != nil {
			return nil, nil, fmt.Errorf("core %d: %w", k, err)
		}
		cores[k] = c
		offset += size
	}
	if offset != len(values) {
		return nil, nil, &ValidationError{Type: "payload_size", Field: "ranks", Details: fmt.Sprintf("%d trailing values after the last core", len(values)-offset)}
	}
	t, err := tt.New(cores)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build tensor train: %w", err)
	}
	return t, header, nil
}

// LoadDenseFile reads a dense tensor from path.
func LoadDenseFile(path string, opts ReaderOptions) (*dense.Tensor, *Header, error) {
	//nolint:gosec // G304: path is supplied by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadDense(f, opts)
}

// LoadTTFile reads a tensor train from path.
func LoadTTFile(path string, opts ReaderOptions) (*tt.Tensor, *Header, error) {
	//nolint:gosec // G304: path is supplied by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadTT(f, opts)
}

func readHeaders(r io.Reader) (*fixedHeader, *Header, error) {
	buf := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	fixed, err := unmarshalFixedHeader(buf)
	if err != nil {
		return nil, nil, err
	}
	if fixed.HeaderSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, fixed.HeaderSize)
	}

	headerJSON := make([]byte, fixed.HeaderSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	if pad := padding(fixed.HeaderSize); pad > 0 {
		if _, err := io.CopyN(io.Discard, r, pad); err != nil {
			return nil, nil, fmt.Errorf("failed to skip padding: %w", err)
		}
	}
	return fixed, &header, nil
}

//nolint:gocyclo,cyclop // Sequential decode with one check per stage
func readObject(r io.Reader, kind Kind, opts ReaderOptions) (*Header, []float64, error) {
	fixed, header, err := readHeaders(r)
	if err != nil {
		return nil, nil, err
	}
	if fixed.Kind != kind {
		return nil, nil, fmt.Errorf("%w: want %s, file holds %s", ErrKindMismatch, kind, fixed.Kind)
	}
	if err := ValidateHeader(header, kind, opts.ValidationLevel); err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}
	if opts.ExpectShape != nil && !opts.ExpectShape.Equal(dense.Shape(header.Shape)) {
		return nil, nil, fmt.Errorf("%w: file holds %v, expected %v", dense.ErrShapeMismatch, dense.Shape(header.Shape), opts.ExpectShape)
	}
	if err := checkRawSize(header); err != nil {
		return nil, nil, err
	}
	if err := checkPayloadSize(fixed, header); err != nil {
		return nil, nil, err
	}

	stored, err := io.ReadAll(io.LimitReader(r, int64(fixed.PayloadSize))) //nolint:gosec // G115: bounded by checkPayloadSize
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if uint64(len(stored)) != fixed.PayloadSize {
		return nil, nil, fmt.Errorf("failed to read payload: %w", io.ErrUnexpectedEOF)
	}
	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(stored), fixed.Checksum); err != nil {
			return nil, nil, err
		}
	}

	raw, err := decompress(Compression(header.Compression), stored, int(header.RawSize))
	if err != nil {
		return nil, nil, err
	}
	if int64(len(raw)) != header.RawSize || len(raw)%bytesPerElement != 0 {
		return nil, nil, &ValidationError{
			Type:    "payload_size",
			Field:   "raw_size",
			Details: fmt.Sprintf("decoded %d bytes, header declares %d", len(raw), header.RawSize),
		}
	}
	return header, decodeFloats(raw), nil
}

// checkPayloadSize bounds the stored payload by the raw size before anything
// is allocated. Writers only keep a compressed payload when it is smaller
// than the raw one.
func checkPayloadSize(fixed *fixedHeader, header *Header) error {
	raw := uint64(header.RawSize) //nolint:gosec // G115: RawSize matches a positive geometry
	compressed := fixed.Flags&FlagCompressed != 0
	codec, err := ParseCompression(header.Compression)
	if err != nil {
		return &ValidationError{Type: "compression", Field: "compression", Details: err.Error()}
	}
	switch {
	case compressed != (codec != CompressionNone):
		return &ValidationError{Type: "payload_size", Field: "compression", Details: fmt.Sprintf("flags %#x disagree with codec %q", fixed.Flags, header.Compression)}
	case !compressed && fixed.PayloadSize != raw:
		return &ValidationError{Type: "payload_size", Field: "raw_size", Details: fmt.Sprintf("stored %d bytes uncompressed, header declares %d", fixed.PayloadSize, raw)}
	case compressed && fixed.PayloadSize >= raw:
		return &ValidationError{Type: "payload_size", Field: "raw_size", Details: fmt.Sprintf("compressed payload of %d bytes for %d raw bytes", fixed.PayloadSize, raw)}
	}
	return nil
}

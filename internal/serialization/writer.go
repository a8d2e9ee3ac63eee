package serialization

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/tt"
)

// WriterOptions configures how objects are written.
type WriterOptions struct {
	// Compression selects the payload codec. Empty means CompressionNone.
	Compression Compression
	// Metadata is stored verbatim in the JSON header.
	Metadata map[string]string
}

// WriteDense writes x in .ttc format.
func WriteDense(w io.Writer, x *dense.Tensor, opts WriterOptions) error {
	raw := make([]byte, x.Len()*bytesPerElement)
	encodeFloats(raw, x.Data())
	header := Header{
		Shape: []int(x.Shape().Clone()),
	}
	return writeObject(w, KindDense, header, raw, opts)
}

// WriteTT writes t in .ttc format. Cores are stored in chain order.
func WriteTT(w io.Writer, t *tt.Tensor, opts WriterOptions) error {
	raw := make([]byte, t.NumParams()*bytesPerElement)
	offset := 0
	for k := 0; k < t.Order(); k++ {
		c := t.Core(k)
		encodeFloats(raw[offset:], c.Data)
		offset += len(c.Data) * bytesPerElement
	}
	header := Header{
		Shape: []int(t.Dims()),
		Ranks: t.FullRanks(),
	}
	return writeObject(w, KindTT, header, raw, opts)
}

//nolint:gocyclo,cyclop // Sequential binary layout
func writeObject(w io.Writer, kind Kind, header Header, raw []byte, opts WriterOptions) error {
	stored, codec, err := compress(opts.Compression, raw)
	if err != nil {
		return err
	}

	header.FormatVersion = FormatVersion
	header.Version = libraryVersion
	header.Kind = kind.String()
	header.CreatedAt = time.Now().UTC()
	header.Compression = string(codec)
	header.RawSize = int64(len(raw))
	header.Metadata = opts.Metadata

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, len(headerJSON))
	}

	fixed := fixedHeader{
		Version:     FormatVersion,
		Kind:        kind,
		HeaderSize:  uint64(len(headerJSON)),
		PayloadSize: uint64(len(stored)),
		Checksum:    ComputeChecksum(stored),
	}
	if codec != CompressionNone {
		fixed.Flags |= FlagCompressed
	}
	if len(header.Metadata) > 0 {
		fixed.Flags |= FlagHasMetadata
	}

	if _, err := w.Write(fixed.marshal()); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if pad := padding(fixed.HeaderSize); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	if _, err := w.Write(stored); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// SaveFile writes an object to path atomically. write is typically a closure
// over WriteDense or WriteTT.
func SaveFile(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

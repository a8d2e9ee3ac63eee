package serialization

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Format constants.
const (
	MagicBytes       = "BTTC"
	FormatVersion    = 1
	HeaderAlignment  = 64   // Align payload to 64 bytes
	FixedHeaderSize  = 64   // Fixed header size (0x40 bytes)
	ChecksumSize     = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset   = 0x20 // Checksum offset in fixed header
	bytesPerElement  = 8
	libraryVersion   = "0.1.0"
	compressionRatio = 0.9 // Store uncompressed when compression saves less than 10%
)

// Kind identifies the object stored in a file.
type Kind uint32

// Object kinds.
const (
	KindDense Kind = 1
	KindTT    Kind = 2
)

// String returns the kind name used in the JSON header.
func (k Kind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindTT:
		return "tt"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Flags for the .ttc format.
const (
	FlagCompressed  uint32 = 1 << 0 // bit 0: payload is compressed
	FlagHasMetadata uint32 = 1 << 2 // bit 2: custom metadata included
)

// Header represents the JSON header in a .ttc file.
type Header struct {
	FormatVersion int               `json:"format_version"`      // Version of the .ttc format
	Version       string            `json:"library_version"`     // Version of the library that wrote the file
	Kind          string            `json:"kind"`                // "dense" or "tt"
	CreatedAt     time.Time         `json:"created_at"`          // When the file was created
	Shape         []int             `json:"shape"`               // Dimension tuple
	Ranks         []int             `json:"ranks,omitempty"`     // r_0 … r_d, tensor trains only
	Compression   string            `json:"compression"`         // "none", "lz4" or "zstd"
	RawSize       int64             `json:"raw_size"`            // Uncompressed payload size in bytes
	Metadata      map[string]string `json:"metadata,omitempty"`  // Custom metadata
}

// fixedHeader is the binary prefix of every file.
type fixedHeader struct {
	Version     uint32
	Flags       uint32
	Kind        Kind
	HeaderSize  uint64
	PayloadSize uint64
	Checksum    [32]byte
}

func (h *fixedHeader) marshal() []byte {
	buf := make([]byte, FixedHeaderSize)
	copy(buf[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.Kind))
	binary.LittleEndian.PutUint64(buf[16:24], h.HeaderSize)
	binary.LittleEndian.PutUint64(buf[24:32], h.PayloadSize)
	copy(buf[ChecksumOffset:ChecksumOffset+ChecksumSize], h.Checksum[:])
	return buf
}

func unmarshalFixedHeader(buf []byte) (*fixedHeader, error) {
	if string(buf[0:4]) != MagicBytes {
		return nil, fmt.Errorf("%w: got %q, expected %q", ErrInvalidMagic, string(buf[0:4]), MagicBytes)
	}
	h := &fixedHeader{
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		Flags:       binary.LittleEndian.Uint32(buf[8:12]),
		Kind:        Kind(binary.LittleEndian.Uint32(buf[12:16])),
		HeaderSize:  binary.LittleEndian.Uint64(buf[16:24]),
		PayloadSize: binary.LittleEndian.Uint64(buf[24:32]),
	}
	copy(h.Checksum[:], buf[ChecksumOffset:ChecksumOffset+ChecksumSize])
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, h.Version, FormatVersion)
	}
	return h, nil
}

// padding returns the number of zero bytes after a JSON header of n bytes.
func padding(n uint64) int64 {
	pos := int64(FixedHeaderSize) + int64(n) //nolint:gosec // G115: header size is bounded by MaxHeaderSize
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}

// encodeFloats writes values as little-endian float64.
func encodeFloats(dst []byte, values []float64) {
	for i, v := range values {
		binary.LittleEndian.PutUint64(dst[i*bytesPerElement:], math.Float64bits(v))
	}
}

// decodeFloats reads little-endian float64 values.
func decodeFloats(src []byte) []float64 {
	out := make([]float64, len(src)/bytesPerElement)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*bytesPerElement:]))
	}
	return out
}

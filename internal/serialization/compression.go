package serialization

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the payload codec.
type Compression string

// Supported codecs.
const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZSTD Compression = "zstd"
)

// ParseCompression maps a codec name to a Compression. The empty string
// selects CompressionNone.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionLZ4:
		return CompressionLZ4, nil
	case CompressionZSTD:
		return CompressionZSTD, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

var (
	zstdEncoderPool = sync.Pool{
		New: func() any {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
			if err != nil {
				panic(err)
			}
			return enc
		},
	}
	zstdDecoderPool = sync.Pool{
		New: func() any {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				panic(err)
			}
			return dec
		},
	}
)

// compress encodes raw with codec. When the codec saves less than 10% the raw
// bytes are returned with CompressionNone.
func compress(codec Compression, raw []byte) ([]byte, Compression, error) {
	var out []byte
	switch codec {
	case "", CompressionNone:
		return raw, CompressionNone, nil
	case CompressionZSTD:
		enc := zstdEncoderPool.Get().(*zstd.Encoder)
		out = enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
		zstdEncoderPool.Put(enc)
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		var c lz4.Compressor
		n, err := c.CompressBlock(raw, buf)
		if err != nil {
			return nil, "", fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			// Incompressible.
			return raw, CompressionNone, nil
		}
		out = buf[:n]
	default:
		return nil, "", fmt.Errorf("unknown compression %q", codec)
	}

	if float64(len(out)) > compressionRatio*float64(len(raw)) {
		return raw, CompressionNone, nil
	}
	return out, codec, nil
}

// decompress restores rawSize bytes from stored.
func decompress(codec Compression, stored []byte, rawSize int) ([]byte, error) {
	switch codec {
	case "", CompressionNone:
		return stored, nil
	case CompressionZSTD:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case CompressionLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("unknown compression %q", codec)
	}
}

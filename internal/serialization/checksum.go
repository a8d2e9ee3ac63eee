package serialization

import (
	"crypto/sha256"
	"fmt"
	"io"
)

// ComputeChecksum computes the SHA-256 checksum of a stored payload.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ComputeChecksumReader hashes exactly size bytes from r without buffering
// them. A stream shorter than size yields io.ErrUnexpectedEOF.
func ComputeChecksumReader(r io.Reader, size int64) ([32]byte, error) {
	h := sha256.New()
	n, err := io.CopyN(h, r, size)
	if err != nil {
		if n < size {
			return [32]byte{}, fmt.Errorf("payload has %d of %d bytes: %w", n, size, io.ErrUnexpectedEOF)
		}
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// ValidateChecksum compares computed checksum against stored checksum.
// Returns ErrChecksumMismatch if they don't match.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}

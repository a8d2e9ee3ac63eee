package serialization

import (
	"fmt"
	"strings"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize   = 1 << 20 // 1MB - maximum JSON header size
	MaxOrder        = 64      // Maximum number of modes
	MaxNameLen      = 255     // Maximum object name length
	MaxMetadataSize = 64 * 1024
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict checks the header against the payload size (default).
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks the header structure only. Readers still
	// reject payloads that disagree with the geometry.
	ValidationNormal
)

// ValidateName checks object names for path traversal and malicious patterns.
// Names are used as file and object-store keys.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: length %d > max %d", ErrInvalidName, len(name), MaxNameLen)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains '..'", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("%w: contains null byte", ErrInvalidName)
	}
	return nil
}

// ValidateHeader checks that a decoded header describes a well-formed object
// of the given kind whose raw payload fits the declared geometry.
//
//nolint:gocyclo,cyclop // One check per header field
func ValidateHeader(h *Header, kind Kind, level ValidationLevel) error {
	if h.Kind != kind.String() {
		return fmt.Errorf("%w: header says %q, fixed header says %q", ErrKindMismatch, h.Kind, kind)
	}
	if h.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: header version %d", ErrUnsupportedVersion, h.FormatVersion)
	}
	if _, err := ParseCompression(h.Compression); err != nil {
		return &ValidationError{Type: "compression", Field: "compression", Details: err.Error()}
	}

	if len(h.Shape) == 0 || len(h.Shape) > MaxOrder {
		return &ValidationError{Type: "shape", Field: "shape", Details: fmt.Sprintf("order %d outside [1, %d]", len(h.Shape), MaxOrder)}
	}
	for i, n := range h.Shape {
		if n <= 0 {
			return &ValidationError{Type: "shape", Field: "shape", Details: fmt.Sprintf("dimension %d is %d", i, n)}
		}
	}

	metaSize := 0
	for k, v := range h.Metadata {
		metaSize += len(k) + len(v)
	}
	if metaSize > MaxMetadataSize {
		return &ValidationError{Type: "metadata", Field: "metadata", Details: fmt.Sprintf("%d bytes > max %d", metaSize, MaxMetadataSize)}
	}

	switch kind {
	case KindDense:
		if len(h.Ranks) != 0 {
			return &ValidationError{Type: "ranks", Field: "ranks", Details: "dense object carries ranks"}
		}
	case KindTT:
		if len(h.Ranks) != len(h.Shape)+1 {
			return &ValidationError{Type: "rank_chain", Field: "ranks", Details: fmt.Sprintf("%d ranks for order %d", len(h.Ranks), len(h.Shape))}
		}
		if h.Ranks[0] != 1 || h.Ranks[len(h.Ranks)-1] != 1 {
			return &ValidationError{Type: "rank_chain", Field: "ranks", Details: fmt.Sprintf("boundary ranks %v", h.Ranks)}
		}
		for k := range h.Shape {
			if h.Ranks[k] <= 0 || h.Ranks[k+1] <= 0 {
				return &ValidationError{Type: "rank_chain", Field: "ranks", Details: fmt.Sprintf("non-positive rank at bond %d", k)}
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrKindMismatch, kind)
	}

	if level == ValidationStrict {
		return checkRawSize(h)
	}
	return nil
}

// geometrySize returns the payload bytes implied by a validated header:
// the element count for dense objects, the sum of core sizes for trains.
func geometrySize(h *Header) int64 {
	var elements int64
	if len(h.Ranks) == 0 {
		elements = 1
		for _, n := range h.Shape {
			elements *= int64(n)
		}
	} else {
		for k, n := range h.Shape {
			elements += int64(h.Ranks[k]) * int64(n) * int64(h.Ranks[k+1])
		}
	}
	return elements * bytesPerElement
}

func checkRawSize(h *Header) error {
	if want := geometrySize(h); want != h.RawSize {
		return &ValidationError{
			Type:    "payload_size",
			Field:   "raw_size",
			Details: fmt.Sprintf("geometry needs %d bytes, header declares %d", want, h.RawSize),
		}
	}
	return nil
}

package tt

import "errors"

// Common errors.
var (
	// ErrUnsupportedRank is returned when a bond factorization cannot be
	// computed (SVD/QR failure, NaN or Inf input). It is not retried.
	ErrUnsupportedRank = errors.New("unsupported rank: factorization failed")
	// ErrInvalidThreshold is returned for a non-positive or NaN accuracy target.
	ErrInvalidThreshold = errors.New("invalid accuracy threshold")
)

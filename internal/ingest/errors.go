package ingest

import "errors"

// Common errors.
var (
	// ErrIngestion wraps every failure to produce a tensor from a source.
	ErrIngestion = errors.New("ingestion failed")
	// ErrUnsupportedDType is returned for element types other than F64 and F32.
	ErrUnsupportedDType = errors.New("unsupported dtype")
)

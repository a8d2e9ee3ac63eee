// Package ingest loads dense tensors from external files.
//
// Two sources are supported: raw little-endian float64 or float32 buffers
// with a caller-supplied shape, and named variables inside safetensors files.
// Data is transferred in bounded chunks so the source never has to be held in
// memory twice. Column-major sources are reordered to the row-major layout
// used everywhere else.
//
// Loaders never return a partially filled tensor: any short read, unknown
// dtype or shape disagreement fails with an error wrapping ErrIngestion.
package ingest

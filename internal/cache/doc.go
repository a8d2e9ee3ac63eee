// Package cache reuses dense tensors and tensor trains across runs.
//
// A Cache wraps a Store and drives every entry through the lifecycle
// miss → compute → store → hit. Entries are encoded with the serialization
// package, so a cached object that fails to decode (corruption, format
// version or shape mismatch) is reported as an error instead of being
// silently recomputed.
//
// Stores are pluggable: LocalStore keeps entries in a directory,
// MemoryStore keeps them in process, and the minio subpackage uses
// S3-compatible object storage.
package cache

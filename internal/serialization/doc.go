// Package serialization provides the native .ttc format used to cache dense
// tensors and tensor trains between runs.
//
// The .ttc format is a small, checksummed binary container:
//
//	Format Structure:
//	  [4 bytes: Magic "BTTC"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [4 bytes: Kind (uint32 LE): 1 = dense, 2 = tensor train]
//	  [8 bytes: Header Size (uint64 LE)]
//	  [8 bytes: Payload Size (uint64 LE), bytes as stored]
//	  [32 bytes: SHA-256 of the stored payload]
//	  [Header: JSON metadata, padded to 64-byte alignment]
//	  [Payload: float64 LE values, optionally zstd or lz4 compressed]
//
// For a dense tensor the payload is its row-major buffer. For a tensor train
// it is the concatenation of the cores in chain order; the header carries the
// dimension tuple and the full rank sequence r_0 … r_d.
//
// Readers fail loudly: an unknown magic, version or kind, a checksum
// mismatch, or a payload that disagrees with the declared shape all return
// errors and no partial object.
//
// Example usage:
//
//	var buf bytes.Buffer
//	if err := serialization.WriteTT(&buf, exact, serialization.WriterOptions{
//	    Compression: serialization.CompressionZSTD,
//	}); err != nil {
//	    return err
//	}
//	restored, header, err := serialization.ReadTT(&buf, serialization.ReaderOptions{})
package serialization

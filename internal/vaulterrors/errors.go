// Package vaulterrors defines the engine-wide error taxonomy (spec §7).
// Each sentinel is a distinct kind a caller can discriminate with errors.Is,
// even after being wrapped with fmt.Errorf("...: %w", err) at call
// boundaries.
package vaulterrors

import "errors"

var (
	// ErrDeviceError wraps an underlying device read/write or boundary
	// violation.
	ErrDeviceError = errors.New("device error")

	// ErrOutOfSpace is returned when the allocator cannot satisfy a request
	// and no high-water room remains.
	ErrOutOfSpace = errors.New("out of space")

	// ErrMetadataCorrupted is returned when metadata load found no valid
	// section and the region was non-empty. The engine enters the
	// MetadataCorrupted terminal state.
	ErrMetadataCorrupted = errors.New("metadata corrupted")

	// ErrObjectNotFound is returned when an object id is not in the index.
	ErrObjectNotFound = errors.New("object not found")

	// ErrChunkMissing is returned when a chunk referenced by an object has
	// no table entry. A strict object read also returns it for a chunk that
	// could not be read, including one whose replicas all failed
	// verification.
	ErrChunkMissing = errors.New("chunk missing")

	// ErrChunkUnrecoverable is returned when all replicas of a chunk failed
	// verification.
	ErrChunkUnrecoverable = errors.New("chunk unrecoverable")

	// ErrGlobalChecksumMismatch is returned when a strict read's reassembled
	// bytes hash differs from the object's stored global checksum.
	ErrGlobalChecksumMismatch = errors.New("global checksum mismatch")

	// ErrRecoveryRateBelowThreshold is returned when a graceful read
	// recovers less than the caller's requested minimum rate.
	ErrRecoveryRateBelowThreshold = errors.New("recovery rate below threshold")

	// ErrDecompressionFailed is returned when gzip input is structurally
	// invalid; treated as chunk corruption at the chunk-store layer.
	ErrDecompressionFailed = errors.New("decompression failed")

	// ErrSuperseded names the case of a concurrent write replacing the
	// object an operation was acting on. No operation in this module
	// returns it: the engine's exclusive lock serializes writes.
	ErrSuperseded = errors.New("superseded by a concurrent write")

	// ErrEngineNotReady is returned when an operation is attempted outside
	// the Ready state (e.g. before Open completes, or after Shutdown).
	ErrEngineNotReady = errors.New("engine not ready")
)

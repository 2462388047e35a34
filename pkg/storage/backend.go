package storage

import (
	"errors"
)

var (
	ErrInvalidSize   = errors.New("invalid size")
	ErrBackendClosed = errors.New("backend is closed")
	ErrShortRead     = errors.New("failed to fill whole buffer")
)

// Backend defines the storage contract an embedding engine consumes.
// Offsets and lengths are absolute byte positions from the start of the
// file. Read and Write transfer exactly len(buf) bytes or fail.
type Backend interface {
	// Len returns the current length of the backing file in bytes
	Len() (uint64, error)

	// Read fills out with the bytes stored at offset
	Read(offset uint64, out []byte) error

	// Write stores data at offset, extending the file if needed
	Write(offset uint64, data []byte) error

	// SetLen shrinks or zero-extends the file to exactly n bytes
	SetLen(n uint64) error

	// SyncData makes written file content durable. File metadata
	// may not be synchronized.
	SyncData() error

	// Close releases the backend
	Close() error
}

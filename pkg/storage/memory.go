package storage

import (
	"fmt"
	"math"
	"sync"
)

// MemoryBackend implements the Backend interface using in-memory storage
type MemoryBackend struct {
	data   []byte
	closed bool
	mu     sync.RWMutex
}

// NewMemory creates a new in-memory storage backend
func NewMemory() *MemoryBackend {
	return &MemoryBackend{
		data: make([]byte, 0),
	}
}

// Len returns the current data size
func (m *MemoryBackend) Len() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrBackendClosed
	}
	return uint64(len(m.data)), nil
}

// Read copies len(out) bytes starting at offset
func (m *MemoryBackend) Read(offset uint64, out []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrBackendClosed
	}

	size := uint64(len(m.data))
	if offset > size || uint64(len(out)) > size-offset {
		return fmt.Errorf("read of %d bytes at offset %d beyond data size %d: %w",
			len(out), offset, size, ErrShortRead)
	}

	copy(out, m.data[offset:])
	return nil
}

// Write stores data at offset, growing the buffer if needed
func (m *MemoryBackend) Write(offset uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed
	}

	end := offset + uint64(len(data))
	if end < offset || end > math.MaxInt {
		return ErrInvalidSize
	}

	// Expand data slice if needed
	if end > uint64(len(m.data)) {
		newData := make([]byte, end)
		copy(newData, m.data)
		m.data = newData
	}

	copy(m.data[offset:], data)
	return nil
}

// SetLen resizes the memory buffer
func (m *MemoryBackend) SetLen(n uint64) error {
	if n > math.MaxInt {
		return ErrInvalidSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed
	}

	if n > uint64(len(m.data)) {
		// Expand
		newData := make([]byte, n)
		copy(newData, m.data)
		m.data = newData
	} else {
		// Shrink
		m.data = m.data[:n]
	}

	return nil
}

// SyncData is a no-op for memory backend (data is always "synced")
func (m *MemoryBackend) SyncData() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrBackendClosed
	}
	return nil
}

// Close clears the memory
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil
	m.closed = true
	return nil
}

// Data returns a copy of the underlying data (for testing/snapshots)
func (m *MemoryBackend) Data() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]byte, len(m.data))
	copy(result, m.data)
	return result
}

// LoadFromData loads data from a byte slice (for restoring snapshots)
func (m *MemoryBackend) LoadFromData(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make([]byte, len(data))
	copy(m.data, data)
}

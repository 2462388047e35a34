package storage

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// DiskBackend implements the Backend interface using ordinary file I/O.
// It is the fallback used where no origin private file system exists.
type DiskBackend struct {
	file     afero.File
	filePath string
	mu       sync.Mutex
}

// OpenDisk opens or creates a disk-based storage backend at path within fs.
// Missing parent directories are created. Existing content is kept.
func OpenDisk(fs afero.Fs, path string) (*DiskBackend, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &DiskBackend{
		file:     file,
		filePath: path,
	}, nil
}

// Len returns the current file size
func (d *DiskBackend) Len() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return 0, ErrBackendClosed
	}

	stat, err := d.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return uint64(stat.Size()), nil
}

// Read reads exactly len(out) bytes from the file at offset
func (d *DiskBackend) Read(offset uint64, out []byte) error {
	if offset > math.MaxInt64 {
		return ErrInvalidSize
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return ErrBackendClosed
	}

	n, err := d.file.ReadAt(out, int64(offset))
	if n == len(out) {
		return nil
	} else if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}
	// Some afero files report a short ReadAt without an error.
	return fmt.Errorf("read %d of %d bytes at offset %d: %w", n, len(out), offset, ErrShortRead)
}

// Write writes all of data to the file at offset
func (d *DiskBackend) Write(offset uint64, data []byte) error {
	if offset > math.MaxInt64 {
		return ErrInvalidSize
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return ErrBackendClosed
	}

	_, err := d.file.WriteAt(data, int64(offset))
	return err
}

// SetLen resizes the file
func (d *DiskBackend) SetLen(n uint64) error {
	if n > math.MaxInt64 {
		return ErrInvalidSize
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return ErrBackendClosed
	}

	return d.file.Truncate(int64(n))
}

// SyncData ensures all data is written to disk
func (d *DiskBackend) SyncData() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return ErrBackendClosed
	}

	return d.file.Sync()
}

// Close closes the file
func (d *DiskBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}

	err := d.file.Close()
	d.file = nil
	return err
}

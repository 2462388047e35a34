package opfs

import (
	"context"
	"fmt"
)

// MaxSafeInteger is the largest integer the host represents exactly
// (2^53 - 1). Byte positions and lengths above it are refused.
const MaxSafeInteger = 1<<53 - 1

// GetOptions are passed to DirectoryHandle lookups.
type GetOptions struct {
	// Create the entry if it does not exist.
	Create bool
}

// StorageManager yields the root of the origin private storage area.
type StorageManager interface {
	// GetDirectory resolves the storage area root. It blocks until the
	// host settles the request.
	GetDirectory(ctx context.Context) (DirectoryHandle, error)
}

// DirectoryHandle names one directory of the storage area.
type DirectoryHandle interface {
	Name() string
	GetDirectoryHandle(ctx context.Context, name string, opts GetOptions) (DirectoryHandle, error)
	GetFileHandle(ctx context.Context, name string, opts GetOptions) (FileHandle, error)
}

// FileHandle names one file of the storage area.
type FileHandle interface {
	Name() string
	// CreateSyncAccessHandle upgrades the FileHandle to an exclusive,
	// synchronous access handle. At most one may be live per file.
	CreateSyncAccessHandle(ctx context.Context) (SyncAccessHandle, error)
}

// SyncAccessHandle grants exclusive, blocking, offset-addressed access to
// the content of a single file.
type SyncAccessHandle interface {
	GetSize() (uint64, error)
	Truncate(size uint64) error
	Flush() error
	// Read reads into p from byte position |at|, returning the number of
	// bytes read. A count short of len(p) is not an error.
	Read(p []byte, at uint64) (int, error)
	// Write writes p at byte position |at|, returning the number of
	// bytes written.
	Write(p []byte, at uint64) (int, error)
	Close() error
}

// Legacy DOMException codes signaled by the host.
const (
	IndexSizeErr             = 1
	NoDataAllowedErr         = 6
	NoModificationAllowedErr = 7
	NotFoundErr              = 8
	NotSupportedErr          = 9
	InvalidStateErr          = 11
	SyntaxErr                = 12
	InvalidModificationErr   = 13
	TypeMismatchErr          = 17
	SecurityErr              = 18
	AbortErr                 = 20
	QuotaExceededErr         = 22
)

// DOMException is a failure signaled by the host storage area.
type DOMException struct {
	Name    string
	Code    int
	Message string
}

func (e *DOMException) Error() string { return fmt.Sprintf("%s: %s", e.Name, e.Message) }

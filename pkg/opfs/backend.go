package opfs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cobaltdb/opfs/pkg/storage"
)

// Backend implements storage.Backend over a single exclusive
// SyncAccessHandle of the origin private file system. Every operation
// holds one mutex for its duration: the host may interleave other tasks
// on the same execution context, and the guard makes that serialization
// explicit rather than incidental.
type Backend struct {
	path string
	file *File
	mu   sync.Mutex
}

var _ storage.Backend = (*Backend)(nil)

// Open resolves |path| within the storage area of |sm|, creating missing
// directories and the file itself, and acquires the file's exclusive sync
// access handle. It is the only operation of Backend which waits on the
// host. Either a ready Backend or an error is returned; a failure after
// some directories were created leaves them in place.
//
// If another context holds the file's handle, Open fails with a Contention
// Error and is not retried.
func Open(ctx context.Context, sm StorageManager, path string) (*Backend, error) {
	var b, err = open(ctx, sm, path)
	if err != nil {
		OpenTotal.WithLabelValues(Fail).Inc()
		ErrorsTotal.WithLabelValues(KindOf(err).String()).Inc()
		return nil, errors.WithMessagef(err, "opening %q", path)
	}
	OpenTotal.WithLabelValues(Ok).Inc()
	return b, nil
}

func open(ctx context.Context, sm StorageManager, path string) (*Backend, error) {
	var segments, err = Virtualize(path)
	if err != nil {
		return nil, err
	} else if len(segments) == 0 {
		return nil, invalidInput("open", "path has no file name")
	}
	var dirs, name = segments[:len(segments)-1], segments[len(segments)-1]

	log.WithFields(log.Fields{
		"path":     path,
		"segments": segments,
	}).Debug("opfs: opening backend")

	dir, err := ResolveDir(ctx, sm, dirs)
	if err != nil {
		return nil, err
	}
	handle, err := Acquire(ctx, dir, name)
	if err != nil {
		return nil, err
	}

	log.WithField("path", strings.Join(segments, "/")).Debug("opfs: acquired sync access handle")

	return &Backend{
		path: strings.Join(segments, "/"),
		file: NewFile(handle),
	}, nil
}

// Path is the virtualized path of the Backend's file.
func (b *Backend) Path() string { return b.path }

// Len returns the length of the file in bytes.
func (b *Backend) Len() (n uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { observe("len", 0, err) }()

	if b.file == nil {
		return 0, closedErr("len")
	}
	return b.file.Size()
}

// Read fills |out| with the bytes at |offset|. Reading fewer than
// len(out) bytes is an error.
func (b *Backend) Read(offset uint64, out []byte) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { observe("read", len(out), err) }()

	if b.file == nil {
		return closedErr("read")
	}
	b.file.seekTo(offset)

	var n int
	if n, err = io.ReadFull(b.file, out); err == io.EOF || err == io.ErrUnexpectedEOF {
		return &Error{
			Kind: Other,
			Op:   "read",
			Msg:  fmt.Sprintf("failed to fill whole buffer: read %d of %d bytes at offset %d", n, len(out), offset),
			Err:  io.ErrUnexpectedEOF,
		}
	}
	return err
}

// Write stores all of |data| at |offset|, extending the file as needed.
// Writing fewer than len(data) bytes is an error.
func (b *Backend) Write(offset uint64, data []byte) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { observe("write", len(data), err) }()

	if b.file == nil {
		return closedErr("write")
	}
	b.file.seekTo(offset)

	_, err = b.file.Write(data)
	return err
}

// SetLen shrinks or zero-extends the file to exactly |n| bytes.
func (b *Backend) SetLen(n uint64) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { observe("set_len", 0, err) }()

	if b.file == nil {
		return closedErr("set_len")
	}
	return b.file.SetLen(n)
}

// SyncData flushes file content to the storage area.
func (b *Backend) SyncData() (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() { observe("sync_data", 0, err) }()

	if b.file == nil {
		return closedErr("sync_data")
	}
	return b.file.Flush()
}

// Close releases the exclusive sync access handle, allowing the file to be
// opened again. Closing a closed Backend is a no-op.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	var err = b.file.Close()
	b.file = nil

	log.WithFields(log.Fields{"path": b.path, "err": err}).Debug("opfs: closed backend")
	return err
}

func closedErr(op string) error {
	return &Error{Kind: Other, Op: op, Err: storage.ErrBackendClosed}
}

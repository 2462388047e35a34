// Package hostfs emulates an origin private storage area over an afero.Fs.
//
// It reproduces the host behaviors the opfs adapter depends on: entries are
// created on request, a lookup of the wrong entry kind is a
// TypeMismatchError, a missing entry is a NotFoundError, a read-only area
// refuses modification, and a file yields at most one live sync access
// handle. Over afero.NewMemMapFs it is a test double; over a base-path
// OsFs it is a native file system fallback.
package hostfs

import (
	"context"
	"io"
	"math"
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"

	"github.com/cobaltdb/opfs/pkg/opfs"
)

// Area is an emulated storage area. It implements opfs.StorageManager.
type Area struct {
	fs   afero.Fs
	mu   sync.Mutex
	held map[string]struct{}
}

var _ opfs.StorageManager = (*Area)(nil)

// New returns an Area rooted at the root of |fs|.
func New(fs afero.Fs) *Area {
	return &Area{
		fs:   fs,
		held: make(map[string]struct{}),
	}
}

// NewMem returns an empty, in-memory Area.
func NewMem() *Area { return New(afero.NewMemMapFs()) }

// Fs returns the file system backing the Area.
func (a *Area) Fs() afero.Fs { return a.fs }

// GetDirectory returns the root DirectoryHandle of the Area.
func (a *Area) GetDirectory(ctx context.Context) (opfs.DirectoryHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fi, err := a.fs.Stat("/"); err != nil {
		return nil, fromOS(err)
	} else if !fi.IsDir() {
		return nil, typeMismatch()
	}
	return &dirHandle{area: a, path: "/"}, nil
}

type dirHandle struct {
	area *Area
	path string
}

func (d *dirHandle) Name() string {
	if d.path == "/" {
		return ""
	}
	return path.Base(d.path)
}

func (d *dirHandle) GetDirectoryHandle(ctx context.Context, name string, opts opfs.GetOptions) (opfs.DirectoryHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	} else if err := checkName(name); err != nil {
		return nil, err
	}
	var p = path.Join(d.path, name)

	fi, err := d.area.fs.Stat(p)
	switch {
	case err == nil && !fi.IsDir():
		return nil, typeMismatch()
	case err == nil:
		return &dirHandle{area: d.area, path: p}, nil
	case !os.IsNotExist(err):
		return nil, fromOS(err)
	case !opts.Create:
		return nil, notFound()
	}

	if err = d.area.fs.Mkdir(p, 0755); err != nil && !os.IsExist(err) {
		return nil, fromOS(err)
	}
	return &dirHandle{area: d.area, path: p}, nil
}

func (d *dirHandle) GetFileHandle(ctx context.Context, name string, opts opfs.GetOptions) (opfs.FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	} else if err := checkName(name); err != nil {
		return nil, err
	}
	var p = path.Join(d.path, name)

	fi, err := d.area.fs.Stat(p)
	switch {
	case err == nil && fi.IsDir():
		return nil, typeMismatch()
	case err == nil:
		return &fileHandle{area: d.area, path: p}, nil
	case !os.IsNotExist(err):
		return nil, fromOS(err)
	case !opts.Create:
		return nil, notFound()
	}

	f, err := d.area.fs.OpenFile(p, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fromOS(err)
	}
	if err = f.Close(); err != nil {
		return nil, fromOS(err)
	}
	return &fileHandle{area: d.area, path: p}, nil
}

type fileHandle struct {
	area *Area
	path string
}

func (f *fileHandle) Name() string { return path.Base(f.path) }

func (f *fileHandle) CreateSyncAccessHandle(ctx context.Context) (opfs.SyncAccessHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.area.mu.Lock()
	defer f.area.mu.Unlock()

	if _, ok := f.area.held[f.path]; ok {
		return nil, &opfs.DOMException{
			Name: "NoModificationAllowedError",
			Code: opfs.NoModificationAllowedErr,
			Message: "Access Handles cannot be created if there is another open Access Handle " +
				"or Writable stream associated with the same file.",
		}
	}

	file, err := f.area.fs.OpenFile(f.path, os.O_RDWR, 0)
	if os.IsPermission(err) {
		return nil, &opfs.DOMException{Name: "NotAllowedError", Message: err.Error()}
	} else if err != nil {
		return nil, fromOS(err)
	}
	f.area.held[f.path] = struct{}{}

	return &syncHandle{area: f.area, path: f.path, file: file}, nil
}

type syncHandle struct {
	area   *Area
	path   string
	file   afero.File
	closed bool
}

func (h *syncHandle) GetSize() (uint64, error) {
	if h.closed {
		return 0, invalidState()
	}
	fi, err := h.file.Stat()
	if err != nil {
		return 0, fromOS(err)
	}
	return uint64(fi.Size()), nil
}

func (h *syncHandle) Truncate(size uint64) error {
	if h.closed {
		return invalidState()
	} else if size > math.MaxInt64 {
		return rangeError()
	}
	if err := h.file.Truncate(int64(size)); err != nil {
		return fromOS(err)
	}
	return nil
}

func (h *syncHandle) Flush() error {
	if h.closed {
		return invalidState()
	}
	if err := h.file.Sync(); err != nil {
		return fromOS(err)
	}
	return nil
}

func (h *syncHandle) Read(p []byte, at uint64) (int, error) {
	if h.closed {
		return 0, invalidState()
	} else if at > math.MaxInt64 {
		return 0, rangeError()
	}

	// Reads at or beyond the end are short, not failed.
	var n, err = h.file.ReadAt(p, int64(at))
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	if err != nil {
		return n, fromOS(err)
	}
	return n, nil
}

func (h *syncHandle) Write(p []byte, at uint64) (int, error) {
	if h.closed {
		return 0, invalidState()
	} else if at > math.MaxInt64 {
		return 0, rangeError()
	}

	var n, err = h.file.WriteAt(p, int64(at))
	if err != nil {
		return n, fromOS(err)
	}
	return n, nil
}

func (h *syncHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	h.area.mu.Lock()
	delete(h.area.held, h.path)
	h.area.mu.Unlock()

	if err := h.file.Close(); err != nil {
		return fromOS(err)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || path.Base(name) != name {
		return &opfs.ForeignError{Name: "TypeError", Message: "Name is not allowed."}
	}
	return nil
}

func fromOS(err error) error {
	switch {
	case os.IsNotExist(err):
		return notFound()
	case os.IsPermission(err):
		return &opfs.DOMException{
			Name:    "NoModificationAllowedError",
			Code:    opfs.NoModificationAllowedErr,
			Message: err.Error(),
		}
	default:
		return &opfs.DOMException{Name: "UnknownError", Message: err.Error()}
	}
}

func notFound() error {
	return &opfs.DOMException{
		Name:    "NotFoundError",
		Code:    opfs.NotFoundErr,
		Message: "A requested file or directory could not be found at the time an operation was processed.",
	}
}

func typeMismatch() error {
	return &opfs.DOMException{
		Name:    "TypeMismatchError",
		Code:    opfs.TypeMismatchErr,
		Message: "The path supplied exists, but was not an entry of requested type.",
	}
}

func invalidState() error {
	return &opfs.DOMException{
		Name:    "InvalidStateError",
		Code:    opfs.InvalidStateErr,
		Message: "The access handle was already closed.",
	}
}

func rangeError() error {
	return &opfs.ForeignError{Name: "TypeError", Message: "Value is outside the 'unsigned long long' value range."}
}

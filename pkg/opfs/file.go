package opfs

import (
	"fmt"
	"io"
	"math"
)

// File is a blocking, cursor-based file over a SyncAccessHandle. It is not
// safe for concurrent use; Backend serializes access to it.
//
// The cursor is advanced by exactly the number of bytes transferred, and
// may lie beyond the end of the file.
type File struct {
	handle SyncAccessHandle
	pos    uint64
}

// NewFile returns a File over |handle| with its cursor at zero.
// The File takes ownership of |handle|.
func NewFile(handle SyncAccessHandle) *File {
	return &File{handle: handle}
}

// Size returns the current length of the file in bytes.
func (f *File) Size() (uint64, error) {
	var size, err = f.handle.GetSize()
	if err != nil {
		return 0, withOp("getSize", err)
	}
	return size, nil
}

// Read reads into p from the cursor and advances it by the bytes read.
// Fewer than len(p) bytes may be read at end of file; io.EOF is returned
// when none are available.
func (f *File) Read(p []byte) (int, error) {
	if f.pos > MaxSafeInteger {
		return 0, invalidInput("read", fmt.Sprintf("position %d exceeds %d", f.pos, uint64(MaxSafeInteger)))
	}

	var n, err = f.handle.Read(p, f.pos)
	if err != nil {
		return 0, withOp("read", err)
	}
	f.pos += uint64(n)

	if n == 0 && len(p) != 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes p at the cursor and advances it by the bytes written.
// A short write returns io.ErrShortWrite within an *Error.
func (f *File) Write(p []byte) (int, error) {
	if f.pos > MaxSafeInteger {
		return 0, invalidInput("write", fmt.Sprintf("position %d exceeds %d", f.pos, uint64(MaxSafeInteger)))
	}

	var n, err = f.handle.Write(p, f.pos)
	if err != nil {
		return 0, withOp("write", err)
	}
	f.pos += uint64(n)

	if n < len(p) {
		return n, &Error{Kind: Other, Op: "write",
			Msg: fmt.Sprintf("wrote %d of %d bytes", n, len(p)), Err: io.ErrShortWrite}
	}
	return n, nil
}

// Seek sets the cursor relative to the start of the file, the cursor, or
// the end of the file, per io.Seeker. Seeking past the end is allowed and
// does not extend the file.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var base uint64

	switch whence {
	case io.SeekStart:
		if offset < 0 {
			return 0, invalidInput("seek", "negative position")
		}
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		var size, err = f.Size()
		if err != nil {
			return 0, err
		}
		base = size
	default:
		return 0, invalidInput("seek", fmt.Sprintf("invalid whence %d", whence))
	}

	var pos, ok = addSigned(base, offset)
	if !ok || pos > math.MaxInt64 {
		return 0, invalidInput("seek", "over/underflow seeking from "+whenceName(whence))
	}
	f.pos = pos
	return int64(pos), nil
}

// seekTo places the cursor at absolute position |pos|.
func (f *File) seekTo(pos uint64) { f.pos = pos }

// SetLen shrinks or zero-extends the file to exactly |size| bytes. The
// cursor is unchanged, and after a shrink may lie beyond the end.
// Sizes above MaxSafeInteger are refused without consulting the host.
func (f *File) SetLen(size uint64) error {
	if size > MaxSafeInteger {
		return invalidInput("truncate", fmt.Sprintf(
			"requested size %d too large, max allowed is %d", size, uint64(MaxSafeInteger)))
	}
	if err := f.handle.Truncate(size); err != nil {
		return withOp("truncate", err)
	}
	return nil
}

// Flush makes written content durable. Directory metadata may not be.
func (f *File) Flush() error {
	if err := f.handle.Flush(); err != nil {
		return withOp("flush", err)
	}
	return nil
}

// Close releases the SyncAccessHandle.
func (f *File) Close() error {
	if err := f.handle.Close(); err != nil {
		return withOp("close", err)
	}
	return nil
}

// addSigned returns base+offset, and false on overflow or underflow.
func addSigned(base uint64, offset int64) (uint64, bool) {
	if offset >= 0 {
		var sum = base + uint64(offset)
		return sum, sum >= base
	}
	var delta = uint64(-(offset + 1)) + 1
	if delta > base {
		return 0, false
	}
	return base - delta, true
}

func whenceName(whence int) string {
	switch whence {
	case io.SeekStart:
		return "file start"
	case io.SeekEnd:
		return "file end"
	default:
		return "current position"
	}
}

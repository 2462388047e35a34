package opfs

import (
	"io"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeHandle is a SyncAccessHandle which records its calls. Content past
// len(data) and below size reads as zero, so very large sizes are cheap.
type fakeHandle struct {
	data  []byte
	size  uint64
	calls []string
	err   error // Returned by the next call, if set.
	short bool  // Writes transfer half of their input.
}

func (h *fakeHandle) fail(op string) error {
	h.calls = append(h.calls, op)
	var err = h.err
	h.err = nil
	return err
}

func (h *fakeHandle) GetSize() (uint64, error) {
	if err := h.fail("getSize"); err != nil {
		return 0, err
	}
	return h.size, nil
}

func (h *fakeHandle) Truncate(size uint64) error {
	if err := h.fail("truncate"); err != nil {
		return err
	}
	if size < uint64(len(h.data)) {
		h.data = h.data[:size]
	}
	h.size = size
	return nil
}

func (h *fakeHandle) Flush() error { return h.fail("flush") }
func (h *fakeHandle) Close() error { return h.fail("close") }

func (h *fakeHandle) Read(p []byte, at uint64) (int, error) {
	if err := h.fail("read"); err != nil {
		return 0, err
	}
	if at >= h.size {
		return 0, nil
	}
	var n = len(p)
	if avail := h.size - at; uint64(n) > avail {
		n = int(avail)
	}
	for i := 0; i != n; i++ {
		if at+uint64(i) < uint64(len(h.data)) {
			p[i] = h.data[at+uint64(i)]
		} else {
			p[i] = 0
		}
	}
	return n, nil
}

func (h *fakeHandle) Write(p []byte, at uint64) (int, error) {
	if err := h.fail("write"); err != nil {
		return 0, err
	}
	if h.short {
		p = p[:len(p)/2]
	}
	var end = at + uint64(len(p))
	if end > uint64(len(h.data)) {
		var grown = make([]byte, end)
		copy(grown, h.data)
		h.data = grown
	}
	copy(h.data[at:], p)

	if end > h.size {
		h.size = end
	}
	return len(p), nil
}

func TestFileFreshIsEmpty(t *testing.T) {
	var f = NewFile(&fakeHandle{})

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(0), size)

	n, err := f.Read(make([]byte, 4))
	require.Equal(t, 0, n)
	require.Equal(t, io.EOF, err)

	// An empty read is not an EOF.
	n, err = f.Read(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestFileCursorTracksTransfers(t *testing.T) {
	var f = NewFile(&fakeHandle{})

	n, err := f.Write([]byte("hello, world"))
	require.NoError(t, err)
	require.Equal(t, 12, n)
	requirePos(t, f, 12)

	pos, err := f.Seek(7, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(7), pos)

	var buf = make([]byte, 10)
	n, err = f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf[:n]))
	requirePos(t, f, 12)

	n, err = f.Read(buf)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)
	requirePos(t, f, 12)
}

func TestFileSeek(t *testing.T) {
	var h = &fakeHandle{}
	var f = NewFile(h)
	require.NoError(t, f.SetLen(3))

	for _, tc := range []struct {
		offset int64
		whence int
		want   int64
	}{
		{0, io.SeekEnd, 3},
		{-1, io.SeekEnd, 2},
		{-1, io.SeekCurrent, 1},
		{100, io.SeekCurrent, 101}, // Past the end is allowed.
		{5, io.SeekStart, 5},
		{math.MaxInt64, io.SeekStart, math.MaxInt64},
	} {
		var pos, err = f.Seek(tc.offset, tc.whence)
		require.NoError(t, err)
		require.Equal(t, tc.want, pos)
	}
	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(3), size, "seeking does not extend the file")

	_, _ = f.Seek(2, io.SeekStart)
	for _, tc := range []struct {
		offset int64
		whence int
		err    string
	}{
		{-3, io.SeekCurrent, "seek: over/underflow seeking from current position"},
		{-4, io.SeekEnd, "seek: over/underflow seeking from file end"},
		{math.MinInt64, io.SeekCurrent, "seek: over/underflow seeking from current position"},
		{math.MaxInt64, io.SeekCurrent, "seek: over/underflow seeking from current position"},
		{-1, io.SeekStart, "seek: negative position"},
		{0, 42, "seek: invalid whence 42"},
	} {
		var _, err = f.Seek(tc.offset, tc.whence)
		require.True(t, IsKind(err, InvalidInput), "%v", err)
		require.EqualError(t, err, tc.err)
		requirePos(t, f, 2) // Unchanged by a failed seek.
	}
}

func TestFileSeekEndPropagatesHostError(t *testing.T) {
	var h = &fakeHandle{err: &DOMException{Name: "InvalidStateError", Code: InvalidStateErr, Message: "closed"}}
	var _, err = NewFile(h).Seek(0, io.SeekEnd)
	require.EqualError(t, err, "getSize: InvalidStateError: closed")
	require.Equal(t, Other, KindOf(err))
}

func TestFileSetLen(t *testing.T) {
	var h = &fakeHandle{}
	var f = NewFile(h)

	_, err := f.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	// Extension zero-fills.
	require.NoError(t, f.SetLen(6))
	_, _ = f.Seek(0, io.SeekStart)
	var buf = make([]byte, 6)
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 0, 0, 0}, buf)
	requirePos(t, f, 6)

	// Shrinking below the cursor leaves it in place, past the end.
	require.NoError(t, f.SetLen(2))
	requirePos(t, f, 6)

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(2), size)

	n, err := f.Read(buf)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)
}

func TestFileSetLenMaxSafeInteger(t *testing.T) {
	var h = &fakeHandle{}
	var f = NewFile(h)

	var err = f.SetLen(1 << 53)
	require.True(t, IsKind(err, InvalidInput))
	require.EqualError(t, err,
		"truncate: requested size 9007199254740992 too large, max allowed is 9007199254740991")
	require.Empty(t, h.calls, "the host is not consulted")

	require.NoError(t, f.SetLen(1<<53-1))
	require.Equal(t, []string{"truncate"}, h.calls)

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(MaxSafeInteger), size)
}

func TestFileRejectsUnsafePositions(t *testing.T) {
	var h = &fakeHandle{}
	var f = NewFile(h)

	_, err := f.Seek(MaxSafeInteger+1, io.SeekStart)
	require.NoError(t, err)

	_, err = f.Read(make([]byte, 1))
	require.True(t, IsKind(err, InvalidInput), "%v", err)
	_, err = f.Write([]byte{1})
	require.True(t, IsKind(err, InvalidInput), "%v", err)
	require.Empty(t, h.calls)
}

func TestFileTranslatesHostErrors(t *testing.T) {
	var h = &fakeHandle{}
	var f = NewFile(h)
	var denied = &DOMException{Name: "NoModificationAllowedError", Code: NoModificationAllowedErr, Message: "denied"}

	for _, tc := range []struct {
		op  string
		run func() error
	}{
		{"write", func() error { _, err := f.Write([]byte{1}); return err }},
		{"read", func() error { _, err := f.Read(make([]byte, 1)); return err }},
		{"truncate", func() error { return f.SetLen(1) }},
		{"flush", f.Flush},
		{"getSize", func() error { _, err := f.Size(); return err }},
		{"close", f.Close},
	} {
		h.err = denied

		var err = tc.run()
		require.True(t, IsKind(err, PermissionDenied), "%s: %v", tc.op, err)
		require.EqualError(t, err, tc.op+": NoModificationAllowedError: denied")

		var e *Error
		require.True(t, errors.As(err, &e))
		require.Equal(t, tc.op, e.Op)
	}
	requirePos(t, f, 0)
}

func TestFileShortWrite(t *testing.T) {
	var f = NewFile(&fakeHandle{short: true})

	var n, err = f.Write([]byte{1, 2, 3, 4})
	require.Equal(t, 2, n)
	require.True(t, errors.Is(err, io.ErrShortWrite))
	require.EqualError(t, err, "write: wrote 2 of 4 bytes: short write")
	requirePos(t, f, 2)
}

func TestAddSigned(t *testing.T) {
	for _, tc := range []struct {
		base   uint64
		offset int64
		want   uint64
		ok     bool
	}{
		{0, 0, 0, true},
		{10, -10, 0, true},
		{10, -11, 0, false},
		{math.MaxUint64, 0, math.MaxUint64, true},
		{math.MaxUint64, 1, 0, false},
		{1 << 63, math.MinInt64, 0, true},
		{1<<63 - 1, math.MinInt64, 0, false},
	} {
		var got, ok = addSigned(tc.base, tc.offset)
		require.Equal(t, tc.ok, ok, "%d%+d", tc.base, tc.offset)
		if ok {
			require.Equal(t, tc.want, got)
		}
	}
}

func requirePos(t *testing.T, f *File, want int64) {
	t.Helper()

	var pos, err = f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, want, pos)
}

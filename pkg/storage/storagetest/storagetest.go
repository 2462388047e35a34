// Package storagetest provides a conformance suite for implementations of
// storage.Backend.
package storagetest

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/cobaltdb/opfs/pkg/storage"
)

// Factory returns a fresh, empty Backend. The suite closes it.
type Factory func(t *testing.T) storage.Backend

// Run exercises the Backend contract against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("FreshIsEmpty", func(t *testing.T) {
		var b = newBackend(t)
		defer b.Close()

		n, err := b.Len()
		require.NoError(t, err)
		require.Equal(t, uint64(0), n)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		var b = newBackend(t)
		defer b.Close()

		require.NoError(t, b.SetLen(64))
		for _, tc := range []struct {
			offset uint64
			data   string
		}{
			{0, "hello"},
			{5, ", "},
			{7, "world"},
			{40, "tail bytes"},
			{63, "!"},
		} {
			require.NoError(t, b.Write(tc.offset, []byte(tc.data)))

			var out = make([]byte, len(tc.data))
			require.NoError(t, b.Read(tc.offset, out))
			require.Equal(t, tc.data, string(out))
		}

		var out = make([]byte, 12)
		require.NoError(t, b.Read(0, out))
		require.Equal(t, "hello, world", string(out))
	})

	t.Run("WriteExtends", func(t *testing.T) {
		var b = newBackend(t)
		defer b.Close()

		require.NoError(t, b.Write(10, []byte{0xff, 0xfe}))

		n, err := b.Len()
		require.NoError(t, err)
		require.Equal(t, uint64(12), n)

		var out = make([]byte, 12)
		require.NoError(t, b.Read(0, out))
		require.Equal(t, append(make([]byte, 10), 0xff, 0xfe), out)
	})

	t.Run("SetLenExtendsWithZeros", func(t *testing.T) {
		var b = newBackend(t)
		defer b.Close()

		require.NoError(t, b.Write(0, []byte("abc")))
		require.NoError(t, b.SetLen(9))

		n, err := b.Len()
		require.NoError(t, err)
		require.Equal(t, uint64(9), n)

		var out = make([]byte, 9)
		require.NoError(t, b.Read(0, out))
		require.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0, 0, 0, 0}, out)
	})

	t.Run("SetLenShrinks", func(t *testing.T) {
		var b = newBackend(t)
		defer b.Close()

		require.NoError(t, b.Write(0, []byte("abcdef")))
		require.NoError(t, b.SetLen(2))

		n, err := b.Len()
		require.NoError(t, err)
		require.Equal(t, uint64(2), n)

		// Bytes beyond the new end are gone, and re-extension zero-fills.
		require.Error(t, b.Read(0, make([]byte, 3)))
		require.NoError(t, b.SetLen(4))

		var out = make([]byte, 4)
		require.NoError(t, b.Read(0, out))
		require.Equal(t, []byte{'a', 'b', 0, 0}, out)
	})

	t.Run("ShortReadFails", func(t *testing.T) {
		var b = newBackend(t)
		defer b.Close()

		require.NoError(t, b.Write(0, []byte{1, 2, 3}))
		require.Error(t, b.Read(1, make([]byte, 3)))
		require.Error(t, b.Read(100, make([]byte, 1)))
	})

	t.Run("Scenario", func(t *testing.T) {
		var b = newBackend(t)
		defer b.Close()

		require.NoError(t, b.Write(0, []byte{1, 2, 3}))

		var out = make([]byte, 3)
		require.NoError(t, b.Read(0, out))
		require.Equal(t, []byte{1, 2, 3}, out)

		n, err := b.Len()
		require.NoError(t, err)
		require.Equal(t, uint64(3), n)

		require.NoError(t, b.SetLen(1))
		n, err = b.Len()
		require.NoError(t, err)
		require.Equal(t, uint64(1), n)

		out = make([]byte, 1)
		require.NoError(t, b.Read(0, out))
		require.Equal(t, []byte{1}, out)

		require.NoError(t, b.SyncData())
	})

	t.Run("UseAfterClose", func(t *testing.T) {
		var b = newBackend(t)
		require.NoError(t, b.Close())

		_, err := b.Len()
		require.True(t, errors.Is(err, storage.ErrBackendClosed), "got %v", err)
		require.True(t, errors.Is(b.Read(0, nil), storage.ErrBackendClosed))
		require.True(t, errors.Is(b.Write(0, []byte{1}), storage.ErrBackendClosed))
		require.True(t, errors.Is(b.SetLen(0), storage.ErrBackendClosed))
		require.True(t, errors.Is(b.SyncData(), storage.ErrBackendClosed))
	})
}

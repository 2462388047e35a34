package store

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/cobaltdb/opfs/pkg/opfs"
	"github.com/cobaltdb/opfs/pkg/opfs/hostfs"
	"github.com/cobaltdb/opfs/pkg/storage"
)

func TestLifecycle(t *testing.T) {
	var s Store
	var ctx = context.Background()
	var area = hostfs.NewMem()

	_, err := s.Backend()
	require.Equal(t, ErrNotInitialized, err)
	require.Equal(t, ErrNotInitialized, s.Close())

	require.NoError(t, s.Init(ctx, OpenerFor(area, "app/clicks.db")))
	require.Equal(t, ErrAlreadyInitialized, s.Init(ctx, OpenerFor(area, "app/other.db")))

	b, err := s.Backend()
	require.NoError(t, err)
	require.NoError(t, b.Write(0, []byte{42}))

	require.NoError(t, s.Close())
	_, err = s.Backend()
	require.Equal(t, ErrNotInitialized, err)

	// The file was released, and the Store can be initialized anew.
	require.NoError(t, s.Init(ctx, OpenerFor(area, "app/clicks.db")))
	b, err = s.Backend()
	require.NoError(t, err)

	var buf = make([]byte, 1)
	require.NoError(t, b.Read(0, buf))
	require.Equal(t, []byte{42}, buf)
	require.NoError(t, s.Close())
}

func TestInitFailureLeavesStoreUninitialized(t *testing.T) {
	var s Store
	var ctx = context.Background()
	var area = hostfs.NewMem()

	// Hold the file elsewhere so that Init contends for it.
	held, err := opfs.Open(ctx, area, "db")
	require.NoError(t, err)

	err = s.Init(ctx, OpenerFor(area, "db"))
	require.True(t, opfs.IsKind(err, opfs.Contention), "%v", err)
	require.Contains(t, err.Error(), "initializing store")

	_, err = s.Backend()
	require.Equal(t, ErrNotInitialized, err)

	require.NoError(t, held.Close())
	require.NoError(t, s.Init(ctx, OpenerFor(area, "db")))
	require.NoError(t, s.Close())
}

func TestConcurrentInit(t *testing.T) {
	var s Store
	var ctx = context.Background()

	var entered = make(chan struct{})
	var release = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, s.Init(ctx, func(context.Context) (storage.Backend, error) {
			close(entered)
			<-release
			return storage.NewMemory(), nil
		}))
	}()

	<-entered
	var err = s.Init(ctx, func(context.Context) (storage.Backend, error) {
		return nil, errors.New("not called")
	})
	require.Equal(t, ErrAlreadyInitialized, err)

	close(release)
	wg.Wait()

	b, err := s.Backend()
	require.NoError(t, err)
	require.IsType(t, &storage.MemoryBackend{}, b)
	require.NoError(t, s.Close())
}

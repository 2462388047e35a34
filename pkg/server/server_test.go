package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cobaltdb/opfs/pkg/opfs"
	"github.com/cobaltdb/opfs/pkg/opfs/hostfs"
	"github.com/cobaltdb/opfs/pkg/storage"
	"github.com/cobaltdb/opfs/pkg/storage/storagetest"
	"github.com/cobaltdb/opfs/pkg/wire"
)

func TestRemoteBackendConformance(t *testing.T) {
	var srv = New(hostfs.NewMem())
	defer srv.Close()

	var client = pipeClient(t, srv)
	var seq int64

	storagetest.Run(t, func(t *testing.T) storage.Backend {
		var path = fmt.Sprintf("conformance/%d.db", atomic.AddInt64(&seq, 1))

		b, err := client.Open(context.Background(), path)
		require.NoError(t, err)
		return b
	})
}

func TestPing(t *testing.T) {
	var srv = New(hostfs.NewMem())
	defer srv.Close()

	require.NoError(t, pipeClient(t, srv).Ping(context.Background()))
}

func TestRemoteErrorsKeepTheirKind(t *testing.T) {
	var area = hostfs.NewMem()
	var srv = New(area)
	defer srv.Close()

	var ctx = context.Background()
	var c1, c2 = pipeClient(t, srv), pipeClient(t, srv)

	b1, err := c1.Open(ctx, "a/b/data.db")
	require.NoError(t, err)

	_, err = c2.Open(ctx, "a/b/data.db")
	require.True(t, opfs.IsKind(err, opfs.Contention), "%v", err)
	require.Contains(t, err.Error(), `opening "a/b/data.db"`)

	_, err = c2.Open(ctx, "a/../data.db")
	require.True(t, opfs.IsKind(err, opfs.InvalidInput), "%v", err)

	_, err = c2.Open(ctx, "a/b")
	require.True(t, opfs.IsKind(err, opfs.TypeMismatch), "%v", err)

	require.NoError(t, b1.Close())
	b2, err := c2.Open(ctx, "a/b/data.db")
	require.NoError(t, err)
	require.NoError(t, b2.Close())
}

func TestDisconnectReleasesBackends(t *testing.T) {
	var srv = New(hostfs.NewMem())
	defer srv.Close()

	var ctx = context.Background()
	var c1, c2 = pipeClient(t, srv), pipeClient(t, srv)

	var b, err = c1.Open(ctx, "data.db")
	require.NoError(t, err)
	require.NoError(t, b.Write(0, []byte("kept")))
	require.NoError(t, c1.Close())

	var reopened *RemoteBackend
	require.Eventually(t, func() bool {
		reopened, err = c2.Open(ctx, "data.db")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	var out = make([]byte, 4)
	require.NoError(t, reopened.Read(0, out))
	require.Equal(t, "kept", string(out))
}

func TestSessionRejectsBadRequests(t *testing.T) {
	var session = New(hostfs.NewMem()).NewSession()
	defer session.Close()

	var ctx = context.Background()

	var expectError = func(msgType wire.MsgType, payload interface{}, kind opfs.Kind, msg string) {
		var frame, err = wire.EncodeMessage(msgType, payload)
		require.NoError(t, err)

		frame, err = session.HandleFrame(ctx, frame)
		require.NoError(t, err)

		reply, err := wire.DecodeMessage(frame)
		require.NoError(t, err)
		require.Equal(t, wire.MsgError, reply.Type)

		var remote wire.ErrorMessage
		require.NoError(t, reply.DecodePayload(&remote))
		require.Equal(t, kind.Name(), remote.Name)
		require.Equal(t, msg, remote.Message)
	}

	expectError(wire.MsgLen, wire.NewOpMessage(9, 0, 0, nil), opfs.InvalidInput, "len: unknown handle 9")
	expectError(wire.MsgResult, nil, opfs.InvalidInput, "handle: unknown message type result")
	expectError(wire.MsgOpen, "not an open message", opfs.InvalidInput, "open: malformed message")

	// Open, then read past the size limit of a frame.
	frame, err := wire.EncodeMessage(wire.MsgOpen, &wire.OpenMessage{Path: "x"})
	require.NoError(t, err)
	frame, err = session.HandleFrame(ctx, frame)
	require.NoError(t, err)

	reply, err := wire.DecodeMessage(frame)
	require.NoError(t, err)
	require.Equal(t, wire.MsgResult, reply.Type)

	var result wire.ResultMessage
	require.NoError(t, reply.DecodePayload(&result))
	require.Equal(t, uint32(1), result.Handle)

	expectError(wire.MsgRead, wire.NewOpMessage(1, 0, wire.MaxPayloadSize, nil), opfs.InvalidInput,
		fmt.Sprintf("read: read of %d bytes exceeds the limit of %d", wire.MaxPayloadSize, maxReadLen))

	// A frame which doesn't decode is answered, not dropped.
	frame, err = session.HandleFrame(ctx, []byte{1, 2})
	require.NoError(t, err)
	reply, err = wire.DecodeMessage(frame)
	require.NoError(t, err)
	require.Equal(t, wire.MsgError, reply.Type)
}

func TestServeAndClose(t *testing.T) {
	var srv = New(hostfs.NewMem())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var served = make(chan error, 1)
	go func() { served <- srv.Serve(listener) }()

	var ctx = context.Background()
	client, err := Dial(ctx, listener.Addr().String())
	require.NoError(t, err)

	b, err := client.Open(ctx, "tcp/data.db")
	require.NoError(t, err)
	require.NoError(t, b.Write(0, []byte{1, 2, 3}))

	n, err := b.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	require.NoError(t, srv.Close())
	require.NoError(t, <-served)
	require.NoError(t, srv.Close())

	// The server closed the connection.
	require.Error(t, client.Ping(ctx))
	require.Equal(t, ErrServerClosed, srv.Serve(listener))
}

func TestCancelledRoundTrip(t *testing.T) {
	var srv = New(hostfs.NewMem())
	defer srv.Close()

	var ctx, cancel = context.WithCancel(context.Background())
	cancel()

	var _, err = pipeClient(t, srv).Open(ctx, "data.db")
	require.Equal(t, context.Canceled, err)
}

func pipeClient(t *testing.T, srv *Server) *Client {
	var local, remote = net.Pipe()
	go srv.ServeConn(context.Background(), remote)

	var client = NewClient(local)
	t.Cleanup(func() { client.Close() })
	return client
}

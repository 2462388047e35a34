package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/cobaltdb/opfs/pkg/opfs"
	"github.com/cobaltdb/opfs/pkg/storage"
	"github.com/cobaltdb/opfs/pkg/wire"
)

// Client issues requests to a Server over a single connection. Requests
// are serialized; each waits for its reply.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
}

// Dial connects to the Server at |address|.
func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.WithMessagef(err, "dialing %s", address)
	}
	return NewClient(conn), nil
}

// NewClient returns a Client over an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// Ping round-trips a ping message.
func (c *Client) Ping(ctx context.Context) error {
	var msg, err = c.roundTrip(ctx, wire.MsgPing, nil)
	if err != nil {
		return err
	} else if msg.Type != wire.MsgPong {
		return errors.Errorf("unexpected %s reply to ping", msg.Type)
	}
	return nil
}

// Open opens the backend at |path| on the Server. If |ctx| is cancelled
// while awaiting the reply, the connection is left unusable.
func (c *Client) Open(ctx context.Context, path string) (*RemoteBackend, error) {
	var result, err = c.call(ctx, wire.MsgOpen, &wire.OpenMessage{Path: path})
	if err != nil {
		return nil, err
	}
	return &RemoteBackend{client: c, handle: result.Handle, path: path}, nil
}

// Close closes the connection. The Server releases backends left open.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, msgType wire.MsgType, payload interface{}) (*wire.ResultMessage, error) {
	var msg, err = c.roundTrip(ctx, msgType, payload)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case wire.MsgResult:
		var result wire.ResultMessage
		if err = msg.DecodePayload(&result); err != nil {
			return nil, err
		}
		return &result, nil
	case wire.MsgError:
		var remote wire.ErrorMessage
		if err = msg.DecodePayload(&remote); err != nil {
			return nil, err
		}
		return nil, remote.Err()
	default:
		return nil, errors.Errorf("unexpected %s reply to %s", msg.Type, msgType)
	}
}

func (c *Client) roundTrip(ctx context.Context, msgType wire.MsgType, payload interface{}) (*wire.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Interrupt blocked I/O if |ctx| is done before the reply arrives.
	if done := ctx.Done(); done != nil {
		var stop = make(chan struct{})
		defer close(stop)

		go func() {
			select {
			case <-done:
				_ = c.conn.SetDeadline(time.Unix(1, 0))
			case <-stop:
			}
		}()
	}

	var msg *wire.Message
	var err = wire.WriteMessage(c.conn, msgType, payload)
	if err == nil {
		msg, err = wire.ReadMessage(c.conn)
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return msg, err
}

// RemoteBackend is a storage.Backend served by a Server.
type RemoteBackend struct {
	client *Client
	handle uint32
	path   string

	mu     sync.Mutex
	closed bool
}

var _ storage.Backend = (*RemoteBackend)(nil)

// Path is the path the RemoteBackend was opened with.
func (b *RemoteBackend) Path() string { return b.path }

// Len returns the length of the remote file.
func (b *RemoteBackend) Len() (uint64, error) {
	var result, err = b.call(wire.MsgLen, 0, 0, nil)
	if err != nil {
		return 0, err
	}
	return result.Len, nil
}

// Read fills |out| with the bytes at |offset|.
func (b *RemoteBackend) Read(offset uint64, out []byte) error {
	var result, err = b.call(wire.MsgRead, offset, uint64(len(out)), nil)
	if err != nil {
		return err
	} else if len(result.Data) != len(out) {
		return &opfs.Error{
			Kind: opfs.Other,
			Op:   "read",
			Msg:  fmt.Sprintf("received %d of %d bytes", len(result.Data), len(out)),
			Err:  storage.ErrShortRead,
		}
	}
	copy(out, result.Data)
	return nil
}

// Write stores |data| at |offset|.
func (b *RemoteBackend) Write(offset uint64, data []byte) error {
	var _, err = b.call(wire.MsgWrite, offset, 0, data)
	return err
}

// SetLen shrinks or zero-extends the remote file to |n| bytes.
func (b *RemoteBackend) SetLen(n uint64) error {
	var _, err = b.call(wire.MsgSetLen, 0, n, nil)
	return err
}

// SyncData flushes the remote file.
func (b *RemoteBackend) SyncData() error {
	var _, err = b.call(wire.MsgSyncData, 0, 0, nil)
	return err
}

// Close releases the remote backend. Closing a closed RemoteBackend is
// a no-op.
func (b *RemoteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var _, err = b.client.call(context.Background(), wire.MsgClose,
		wire.NewOpMessage(b.handle, 0, 0, nil))
	return err
}

func (b *RemoteBackend) call(msgType wire.MsgType, offset, length uint64, data []byte) (*wire.ResultMessage, error) {
	b.mu.Lock()
	var closed = b.closed
	b.mu.Unlock()

	if closed {
		return nil, &opfs.Error{Kind: opfs.Other, Op: msgType.String(), Err: storage.ErrBackendClosed}
	}
	return b.client.call(context.Background(), msgType, wire.NewOpMessage(b.handle, offset, length, data))
}

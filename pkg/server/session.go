package server

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/cobaltdb/opfs/pkg/opfs"
	"github.com/cobaltdb/opfs/pkg/wire"
)

// maxReadLen bounds a single read so that its result fits in one frame.
const maxReadLen = wire.MaxPayloadSize - 1024

// Session holds the backends opened by one client, keyed by the handle
// returned from their open.
type Session struct {
	sm       opfs.StorageManager
	backends map[uint32]*opfs.Backend
	nextID   uint32
	mu       sync.Mutex
}

func newSession(sm opfs.StorageManager) *Session {
	return &Session{
		sm:       sm,
		backends: make(map[uint32]*opfs.Backend),
	}
}

// Handle dispatches a request, returning the type and payload of its reply.
// Failures are replied with a wire.ErrorMessage rather than returned.
func (s *Session) Handle(ctx context.Context, msg *wire.Message) (wire.MsgType, interface{}) {
	switch msg.Type {
	case wire.MsgPing:
		return wire.MsgPong, nil

	case wire.MsgOpen:
		var open wire.OpenMessage
		if err := msg.DecodePayload(&open); err != nil {
			return reply(nil, malformed(msg.Type.String(), err))
		}
		return reply(s.open(ctx, open.Path))

	case wire.MsgLen, wire.MsgRead, wire.MsgWrite, wire.MsgSetLen, wire.MsgSyncData, wire.MsgClose:
		var op wire.OpMessage
		if err := msg.DecodePayload(&op); err != nil {
			return reply(nil, malformed(msg.Type.String(), err))
		}
		return reply(s.do(msg.Type, &op))

	default:
		return reply(nil, &opfs.Error{
			Kind: opfs.InvalidInput,
			Op:   "handle",
			Msg:  fmt.Sprintf("unknown message type %s", msg.Type),
		})
	}
}

// HandleFrame is Handle for encoded frames.
func (s *Session) HandleFrame(ctx context.Context, frame []byte) ([]byte, error) {
	var msg, err = wire.DecodeMessage(frame)
	if err != nil {
		return wire.EncodeMessage(reply(nil, malformed("frame", err)))
	}
	return wire.EncodeMessage(s.Handle(ctx, msg))
}

// Close releases every backend of the Session. It returns the first
// error encountered.
func (s *Session) Close() error {
	s.mu.Lock()
	var backends = s.backends
	s.backends = make(map[uint32]*opfs.Backend)
	s.mu.Unlock()

	var first error
	for handle, b := range backends {
		if err := b.Close(); err != nil {
			log.WithFields(log.Fields{"handle": handle, "path": b.Path(), "err": err}).
				Warn("failed to close backend")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (s *Session) open(ctx context.Context, path string) (*wire.ResultMessage, error) {
	var b, err = opfs.Open(ctx, s.sm, path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextID++
	var handle = s.nextID
	s.backends[handle] = b
	s.mu.Unlock()

	log.WithFields(log.Fields{"handle": handle, "path": b.Path()}).Debug("opened backend")
	return &wire.ResultMessage{Handle: handle}, nil
}

func (s *Session) do(msgType wire.MsgType, op *wire.OpMessage) (*wire.ResultMessage, error) {
	s.mu.Lock()
	var b, ok = s.backends[op.Handle]
	if ok && msgType == wire.MsgClose {
		delete(s.backends, op.Handle)
	}
	s.mu.Unlock()

	if !ok {
		return nil, &opfs.Error{
			Kind: opfs.InvalidInput,
			Op:   msgType.String(),
			Msg:  fmt.Sprintf("unknown handle %d", op.Handle),
		}
	}

	switch msgType {
	case wire.MsgLen:
		var n, err = b.Len()
		if err != nil {
			return nil, err
		}
		return &wire.ResultMessage{Handle: op.Handle, Len: n}, nil

	case wire.MsgRead:
		if op.Len > maxReadLen {
			return nil, &opfs.Error{
				Kind: opfs.InvalidInput,
				Op:   "read",
				Msg:  fmt.Sprintf("read of %d bytes exceeds the limit of %d", op.Len, maxReadLen),
			}
		}
		var out = make([]byte, op.Len)
		if err := b.Read(op.Offset, out); err != nil {
			return nil, err
		}
		return &wire.ResultMessage{Handle: op.Handle, Len: op.Len, Data: out}, nil

	case wire.MsgWrite:
		if err := b.Write(op.Offset, op.Data); err != nil {
			return nil, err
		}
		return &wire.ResultMessage{Handle: op.Handle, Len: uint64(len(op.Data))}, nil

	case wire.MsgSetLen:
		if err := b.SetLen(op.Len); err != nil {
			return nil, err
		}
		return &wire.ResultMessage{Handle: op.Handle, Len: op.Len}, nil

	case wire.MsgSyncData:
		if err := b.SyncData(); err != nil {
			return nil, err
		}
		return &wire.ResultMessage{Handle: op.Handle}, nil

	default: // wire.MsgClose
		if err := b.Close(); err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"handle": op.Handle, "path": b.Path()}).Debug("closed backend")
		return &wire.ResultMessage{Handle: op.Handle}, nil
	}
}

func reply(result *wire.ResultMessage, err error) (wire.MsgType, interface{}) {
	if err != nil {
		return wire.MsgError, wire.NewErrorMessage(err)
	}
	return wire.MsgResult, result
}

func malformed(op string, err error) error {
	return &opfs.Error{Kind: opfs.InvalidInput, Op: op, Msg: "malformed message", Err: err}
}

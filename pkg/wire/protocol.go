package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cobaltdb/opfs/pkg/opfs"
)

// MsgType represents the type of a protocol message
type MsgType uint8

const (
	MsgOpen     MsgType = 0x01 // Open a backend by path
	MsgLen      MsgType = 0x02
	MsgRead     MsgType = 0x03
	MsgWrite    MsgType = 0x04
	MsgSetLen   MsgType = 0x05
	MsgSyncData MsgType = 0x06
	MsgClose    MsgType = 0x07 // Release an open backend
	MsgResult   MsgType = 0x10 // Operation result
	MsgError    MsgType = 0x12 // Error response
	MsgPing     MsgType = 0x20
	MsgPong     MsgType = 0x21
)

func (t MsgType) String() string {
	switch t {
	case MsgOpen:
		return "open"
	case MsgLen:
		return "len"
	case MsgRead:
		return "read"
	case MsgWrite:
		return "write"
	case MsgSetLen:
		return "set_len"
	case MsgSyncData:
		return "sync_data"
	case MsgClose:
		return "close"
	case MsgResult:
		return "result"
	case MsgError:
		return "error"
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	default:
		return fmt.Sprintf("MsgType(%#x)", uint8(t))
	}
}

// Message represents a protocol message
type Message struct {
	Type    MsgType
	Payload []byte
}

// OpenMessage requests that the backend at Path be opened
type OpenMessage struct {
	Path string `msgpack:"path"`
}

// OpMessage addresses an operation to an open backend. Offset, Len and
// Data are set as the operation requires: Read uses Offset and Len, Write
// uses Offset and Data, and SetLen uses Len.
type OpMessage struct {
	Handle uint32 `msgpack:"handle"`
	Offset uint64 `msgpack:"offset,omitempty"`
	Len    uint64 `msgpack:"len,omitempty"`
	Data   []byte `msgpack:"data,omitempty"`
}

// ResultMessage represents a successful operation
type ResultMessage struct {
	Handle uint32 `msgpack:"handle,omitempty"`
	Len    uint64 `msgpack:"len,omitempty"`
	Data   []byte `msgpack:"data,omitempty"`
}

// ErrorMessage represents an error response, one level of its causal
// chain per message.
type ErrorMessage struct {
	Name    string        `msgpack:"name"`
	Message string        `msgpack:"message"`
	Cause   *ErrorMessage `msgpack:"cause,omitempty"`
}

// Encode encodes a value using MessagePack
func Encode(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode decodes a value using MessagePack
func Decode(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// NewOpMessage creates a new operation message for |handle|
func NewOpMessage(handle uint32, offset, length uint64, data []byte) *OpMessage {
	return &OpMessage{
		Handle: handle,
		Offset: offset,
		Len:    length,
		Data:   data,
	}
}

// NewErrorMessage creates an error message carrying the chain of |err|
func NewErrorMessage(err error) *ErrorMessage {
	return fromForeign(opfs.ToForeign(err))
}

func fromForeign(f *opfs.ForeignError) *ErrorMessage {
	if f == nil {
		return nil
	}
	return &ErrorMessage{
		Name:    f.Name,
		Message: f.Message,
		Cause:   fromForeign(f.Cause),
	}
}

// Err rebuilds the error carried by the message. If the outermost level is
// named after an opfs.Kind, the result is an *opfs.Error of that Kind, so
// that opfs.IsKind holds on both sides of the protocol.
func (m *ErrorMessage) Err() error {
	var kind, ok = opfs.ParseKind(m.Name)
	if !ok {
		return m.foreign()
	}

	var out = &opfs.Error{Kind: kind, Msg: m.Message}
	if m.Cause != nil {
		out.Err = m.Cause.foreign()
	}
	return out
}

func (m *ErrorMessage) foreign() *opfs.ForeignError {
	var out = &opfs.ForeignError{Name: m.Name, Message: m.Message}
	if m.Cause != nil {
		out.Cause = m.Cause.foreign()
	}
	return out
}

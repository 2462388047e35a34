package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxPayloadSize bounds the encoded payload of a single message.
const MaxPayloadSize = 64 << 20

// headerSize is the length prefix plus the type byte.
const headerSize = 5

// ErrFrameTooLarge is returned for messages whose payload exceeds
// MaxPayloadSize.
var ErrFrameTooLarge = errors.New("frame too large")

// EncodeMessage encodes a complete frame: a little-endian uint32 length of
// the remainder, the message type, and the MessagePack encoded |payload|.
// A nil |payload| produces a frame with no payload bytes.
func EncodeMessage(msgType MsgType, payload interface{}) ([]byte, error) {
	var pay []byte
	if payload != nil {
		var err error
		if pay, err = Encode(payload); err != nil {
			return nil, errors.WithMessagef(err, "encoding %s payload", msgType)
		}
	}
	if len(pay) > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	var frame = make([]byte, headerSize+len(pay))
	binary.LittleEndian.PutUint32(frame, uint32(1+len(pay)))
	frame[4] = byte(msgType)
	copy(frame[headerSize:], pay)

	return frame, nil
}

// DecodeMessage decodes a complete frame produced by EncodeMessage.
func DecodeMessage(frame []byte) (*Message, error) {
	if len(frame) < headerSize {
		return nil, errors.Errorf("frame of %d bytes is shorter than its header", len(frame))
	}
	var length = binary.LittleEndian.Uint32(frame)

	if length == 0 {
		return nil, errors.New("frame has zero length")
	} else if uint64(length)-1 > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	} else if int(length) != len(frame)-4 {
		return nil, errors.Errorf("frame length %d doesn't match %d received bytes", length, len(frame)-4)
	}
	return &Message{
		Type:    MsgType(frame[4]),
		Payload: frame[headerSize:],
	}, nil
}

// WriteMessage writes a single frame to |w|.
func WriteMessage(w io.Writer, msgType MsgType, payload interface{}) error {
	var frame, err = EncodeMessage(msgType, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads a single frame from |r|. It returns io.EOF only if |r|
// ends cleanly between frames.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	var length = binary.LittleEndian.Uint32(header[:])

	if length == 0 {
		return nil, errors.New("frame has zero length")
	} else if uint64(length)-1 > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	var msg = &Message{
		Type:    MsgType(header[4]),
		Payload: make([]byte, length-1),
	}
	if _, err := io.ReadFull(r, msg.Payload); err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodePayload decodes the message payload into |v|.
func (m *Message) DecodePayload(v interface{}) error {
	if err := Decode(m.Payload, v); err != nil {
		return errors.WithMessagef(err, "decoding %s payload", m.Type)
	}
	return nil
}

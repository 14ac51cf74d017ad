// Package wire implements the length-framed binary encoding used on the
// replication UDP socket. Every datagram on that socket is either a framed
// PaxosMessage variant or unframed client traffic; see Decode.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxDatagramSize is the receive-buffer ceiling for the replication socket.
// Larger payloads are truncated at the socket layer — a documented limit,
// not something this package negotiates.
const MaxDatagramSize = 1024

// ErrMalformedFrame is returned by Decode when the discriminator byte is
// unrecognized or the frame is shorter than its declared length.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// tag is the one-byte discriminator that precedes every gob-encoded payload.
// It lets Decode reject unknown variants without asking gob to guess at an
// untagged byte stream.
type tag byte

const (
	tagRegisterFollower tag = iota + 1
	tagClientRequest
	tagFollowerAck
)

// RegisterFollower announces a follower's address to the coordinator.
type RegisterFollower struct {
	FollowerAddr string
}

// ClientRequest carries an opaque client payload through the cluster,
// correlated by a 128-bit request id.
type ClientRequest struct {
	RequestID uuid.UUID
	Payload   []byte
}

// FollowerAck acknowledges receipt of a ClientRequest.
type FollowerAck struct {
	RequestID uuid.UUID
}

// Message is implemented by the three wire variants above. It exists only
// to let Encode accept any of them without an empty interface at call sites.
type Message interface {
	isMessage()
}

func (RegisterFollower) isMessage() {}
func (ClientRequest) isMessage()    {}
func (FollowerAck) isMessage()      {}

// Encode serializes msg as [4-byte big-endian length][1-byte tag][gob payload].
// The length prefix covers the tag byte and the gob payload; over UDP the
// datagram boundary already frames the message; the prefix exists so a
// truncated receive buffer (see MaxDatagramSize) is detectable as
// ErrMalformedFrame rather than a silent gob decode error.
func Encode(msg Message) ([]byte, error) {
	var body bytes.Buffer

	switch m := msg.(type) {
	case RegisterFollower:
		body.WriteByte(byte(tagRegisterFollower))
		if err := gob.NewEncoder(&body).Encode(m); err != nil {
			return nil, fmt.Errorf("wire: encode: %w", err)
		}
	case ClientRequest:
		body.WriteByte(byte(tagClientRequest))
		if err := gob.NewEncoder(&body).Encode(m); err != nil {
			return nil, fmt.Errorf("wire: encode: %w", err)
		}
	case FollowerAck:
		body.WriteByte(byte(tagFollowerAck))
		if err := gob.NewEncoder(&body).Encode(m); err != nil {
			return nil, fmt.Errorf("wire: encode: %w", err)
		}
	default:
		return nil, fmt.Errorf("wire: encode: unsupported message type %T", msg)
	}

	frame := make([]byte, 4+body.Len())
	binary.BigEndian.PutUint32(frame, uint32(body.Len()))
	copy(frame[4:], body.Bytes())
	return frame, nil
}

// Decode parses a frame produced by Encode. It returns ErrMalformedFrame if
// the frame is too short, the declared length doesn't match the remaining
// bytes, or the discriminator byte names no known variant. The coordinator
// and follower receive loops drop such a datagram; they do not treat it as
// raw client traffic. The dispatcher wraps every datagram that is neither a
// registration nor a FollowerAck frame in a fresh ClientRequest itself.
func Decode(frame []byte) (Message, error) {
	if len(frame) < 5 {
		return nil, ErrMalformedFrame
	}

	n := binary.BigEndian.Uint32(frame[:4])
	body := frame[4:]
	if uint32(len(body)) != n {
		return nil, ErrMalformedFrame
	}

	t := tag(body[0])
	dec := gob.NewDecoder(bytes.NewReader(body[1:]))

	switch t {
	case tagRegisterFollower:
		var m RegisterFollower
		if err := decodeInto(dec, &m); err != nil {
			return nil, err
		}
		return m, nil
	case tagClientRequest:
		var m ClientRequest
		if err := decodeInto(dec, &m); err != nil {
			return nil, err
		}
		return m, nil
	case tagFollowerAck:
		var m FollowerAck
		if err := decodeInto(dec, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, ErrMalformedFrame
	}
}

func decodeInto(dec *gob.Decoder, out Message) error {
	if err := dec.Decode(out); err != nil {
		return ErrMalformedFrame
	}
	return nil
}

/*
Package protocol defines the fixed-layout wire message shared by the chat server and the
client session, the catalogue of control message types carried inside it, and the stream
framing used on every transport.

Every frame is FrameSize bytes, little-endian, without padding:

	u32 sender | u32 channel | u64 timestamp | u32 content_length | [512]byte content

Content is either UTF-8 chat text or, for control messages, a 4-byte MessageType
discriminant followed by that type's fields.
*/
package protocol

import (
	"encoding/binary"
	"time"

	"relaychat/internal/pkg/errs"
)

// UserID identifies a connected user for the lifetime of one server run.
type UserID uint32

// ChannelID identifies a channel.
type ChannelID uint32

const (
	// ServerUserID is the sender of every server-originated message.
	ServerUserID UserID = 0

	// ChannelServer addresses the server itself; content is a control payload.
	ChannelServer ChannelID = 0

	// ChannelGlobal is the public channel every connected user belongs to.
	ChannelGlobal ChannelID = 1

	// FirstUserChannel is the lowest ID handed out to created channels. 2-99 stay reserved.
	FirstUserChannel ChannelID = 100
)

const (
	// ContentCapacity is the fixed size of the content buffer.
	ContentCapacity = 512

	// HeaderSize is the size of the fields preceding the content buffer.
	HeaderSize = 4 + 4 + 8 + 4

	// FrameSize is the size of one encoded message on the wire.
	FrameSize = HeaderSize + ContentCapacity
)

// Message is the unit exchanged between client and server.
type Message struct {
	Sender        UserID
	Channel       ChannelID
	Timestamp     uint64
	ContentLength uint32
	Content       [ContentCapacity]byte
}

// NewTextMessage builds a chat message stamped with at.
// Text longer than ContentCapacity is truncated.
func NewTextMessage(channel ChannelID, text string, at time.Time) Message {
	m := Message{
		Channel:   channel,
		Timestamp: UnixSeconds(at),
	}
	m.SetContent([]byte(text))
	return m
}

// UnixSeconds converts t to the wire timestamp (seconds since epoch, UTC).
func UnixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}

// SetContent copies b into the content buffer, clamping at ContentCapacity.
// It reports whether b had to be truncated.
func (m *Message) SetContent(b []byte) bool {
	n := copy(m.Content[:], b)
	clear(m.Content[n:])
	m.ContentLength = uint32(n)
	return n < len(b)
}

// Payload returns the valid part of the content buffer.
func (m Message) Payload() []byte {
	return m.Content[:min(m.ContentLength, ContentCapacity)]
}

// Text returns the payload as a string.
func (m Message) Text() string {
	return string(m.Payload())
}

// Time returns the timestamp as a UTC time.
func (m Message) Time() time.Time {
	return time.Unix(int64(m.Timestamp), 0).UTC()
}

// FromServer reports whether the message was originated by the server.
func (m Message) FromServer() bool {
	return m.Sender == ServerUserID
}

// ToServer reports whether the message addresses the server-control channel.
func (m Message) ToServer() bool {
	return m.Channel == ChannelServer
}

// Encode packs m into a frame. A ContentLength above capacity is clamped.
func Encode(m Message) [FrameSize]byte {
	var frame [FrameSize]byte

	binary.LittleEndian.PutUint32(frame[0:4], uint32(m.Sender))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(m.Channel))
	binary.LittleEndian.PutUint64(frame[8:16], m.Timestamp)
	binary.LittleEndian.PutUint32(frame[16:20], min(m.ContentLength, ContentCapacity))
	copy(frame[HeaderSize:], m.Content[:])

	return frame
}

// Decode unpacks a frame produced by Encode.
func Decode(frame []byte) (Message, error) {
	var m Message

	if len(frame) != FrameSize {
		return m, errs.NewError(errs.ErrMalformedFrame)
	}

	m.Sender = UserID(binary.LittleEndian.Uint32(frame[0:4]))
	m.Channel = ChannelID(binary.LittleEndian.Uint32(frame[4:8]))
	m.Timestamp = binary.LittleEndian.Uint64(frame[8:16])
	m.ContentLength = binary.LittleEndian.Uint32(frame[16:20])
	if m.ContentLength > ContentCapacity {
		return Message{}, errs.NewError(errs.ErrMalformedFrame)
	}
	copy(m.Content[:], frame[HeaderSize:])

	return m, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m Message) MarshalBinary() ([]byte, error) {
	frame := Encode(m)
	return frame[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Message) UnmarshalBinary(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

package protocol

import (
	"encoding/binary"
	"time"

	"relaychat/internal/pkg/errs"
)

const discriminantSize = 4

// MaxSyncIDs is the number of user IDs that fit in one UserListSync frame.
const MaxSyncIDs = (ContentCapacity - discriminantSize) / 4

// Control is the decoded form of a control payload. Only the fields in the
// type's layout are encoded; the others are ignored.
type Control struct {
	Type      MessageType
	UserID    UserID
	ChannelID ChannelID
	Code      uint32
	UserIDs   []UserID
	Text      string
}

// Encode packs c into a content payload. Trailing IDs or text that do not fit
// are dropped; an unknown type encodes as a bare discriminant.
func (c Control) Encode() []byte {
	buf := make([]byte, 0, ContentCapacity)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Type))

	for _, f := range catalogue[c.Type].layout {
		switch f {
		case fieldUserID:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(c.UserID))
		case fieldChannelID:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(c.ChannelID))
		case fieldCode:
			buf = binary.LittleEndian.AppendUint32(buf, c.Code)
		case fieldUserIDs:
			for _, id := range c.UserIDs {
				if len(buf)+4 > ContentCapacity {
					break
				}
				buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
			}
		case fieldText:
			room := ContentCapacity - len(buf)
			text := c.Text
			if len(text) > room {
				text = text[:room]
			}
			buf = append(buf, text...)
		}
	}

	return buf
}

// DecodeControl unpacks a content payload. Unknown discriminants and payloads
// shorter than the type's fixed fields are rejected.
func DecodeControl(payload []byte) (Control, error) {
	var c Control

	if len(payload) < discriminantSize {
		return c, errs.NewError(errs.ErrPayloadTooShort)
	}

	c.Type = MessageType(binary.LittleEndian.Uint32(payload))
	spec, ok := catalogue[c.Type]
	if !ok {
		return Control{}, errs.NewError(errs.ErrUnknownControlType, uint32(c.Type))
	}

	rest := payload[discriminantSize:]
	for _, f := range spec.layout {
		switch f {
		case fieldUserID, fieldChannelID, fieldCode:
			if len(rest) < 4 {
				return Control{}, errs.NewError(errs.ErrPayloadTooShort)
			}
			v := binary.LittleEndian.Uint32(rest)
			rest = rest[4:]
			switch f {
			case fieldUserID:
				c.UserID = UserID(v)
			case fieldChannelID:
				c.ChannelID = ChannelID(v)
			default:
				c.Code = v
			}
		case fieldUserIDs:
			if len(rest)%4 != 0 {
				return Control{}, errs.NewError(errs.ErrMalformedFrame)
			}
			c.UserIDs = make([]UserID, 0, len(rest)/4)
			for ; len(rest) > 0; rest = rest[4:] {
				c.UserIDs = append(c.UserIDs, UserID(binary.LittleEndian.Uint32(rest)))
			}
		case fieldText:
			c.Text = string(rest)
			rest = nil
		}
	}

	return c, nil
}

// Control decodes the message content as a control payload.
func (m Message) Control() (Control, error) {
	return DecodeControl(m.Payload())
}

// NewControlMessage wraps c in a message addressed to channel.
func NewControlMessage(channel ChannelID, c Control, at time.Time) Message {
	m := Message{
		Sender:    ServerUserID,
		Channel:   channel,
		Timestamp: UnixSeconds(at),
	}
	m.SetContent(c.Encode())
	return m
}

// ChunkUserIDs splits ids into slices of at most MaxSyncIDs. An empty input
// yields one empty chunk so a sync for an empty channel still goes out.
func ChunkUserIDs(ids []UserID) [][]UserID {
	if len(ids) == 0 {
		return [][]UserID{{}}
	}

	chunks := make([][]UserID, 0, (len(ids)+MaxSyncIDs-1)/MaxSyncIDs)
	for len(ids) > 0 {
		n := min(len(ids), MaxSyncIDs)
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}

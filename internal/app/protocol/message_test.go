package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"relaychat/internal/pkg/errs"
)

func TestRoundTrip(t *testing.T) {
	full := strings.Repeat("x", ContentCapacity)

	tests := []struct {
		name string
		msg  Message
	}{
		{name: "Empty message", msg: Message{}},
		{name: "Chat text", msg: NewTextMessage(ChannelGlobal, "hi", time.Unix(1700000000, 0))},
		{name: "Full buffer", msg: NewTextMessage(FirstUserChannel, full, time.Unix(1, 0))},
		{
			name: "Relayed message with max header values",
			msg: func() Message {
				m := NewTextMessage(ChannelID(^uint32(0)), "héllo wörld", time.Now())
				m.Sender = UserID(^uint32(0))
				m.Timestamp = ^uint64(0)
				return m
			}(),
		},
		{
			name: "Control payload",
			msg:  NewControlMessage(ChannelGlobal, Control{Type: TypeUserJoin, UserID: 7, Text: "Alice"}, time.Now()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := Encode(tt.msg)
			got, err := Decode(frame[:])
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tt.msg {
				t.Errorf("round trip mismatch: expected %+v but got %+v", tt.msg.Text(), got.Text())
			}
		})
	}
}

func TestWireLayout(t *testing.T) {
	m := Message{Sender: 0x01020304, Channel: 1, Timestamp: 2, ContentLength: 2}
	copy(m.Content[:], "ok")

	frame := Encode(m)

	if want, got := FrameSize, len(frame); want != got {
		t.Fatalf("expected frame size %d but got %d", want, got)
	}
	header := []byte{
		0x04, 0x03, 0x02, 0x01,
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(header, frame[:HeaderSize]) {
		t.Errorf("unexpected header bytes: % x", frame[:HeaderSize])
	}
	if want, got := "ok", string(frame[HeaderSize:HeaderSize+2]); want != got {
		t.Errorf("expected content %q but got %q", want, got)
	}
}

func TestTruncation(t *testing.T) {
	long := strings.Repeat("abcdefgh", 100)

	m := NewTextMessage(ChannelGlobal, long, time.Now())

	if want, got := uint32(ContentCapacity), m.ContentLength; want != got {
		t.Fatalf("expected content length %d but got %d", want, got)
	}
	if want, got := long[:ContentCapacity], m.Text(); want != got {
		t.Errorf("expected the first %d bytes of the input", ContentCapacity)
	}

	var short Message
	if short.SetContent([]byte("fits")) {
		t.Error("SetContent reported truncation for a short payload")
	}
	if !short.SetContent([]byte(long)) {
		t.Error("SetContent did not report truncation for a long payload")
	}
}

func TestEncodeClampsLength(t *testing.T) {
	m := Message{ContentLength: ContentCapacity + 50}

	frame := Encode(m)
	got, err := Decode(frame[:])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if want := uint32(ContentCapacity); got.ContentLength != want {
		t.Errorf("expected clamped length %d but got %d", want, got.ContentLength)
	}
	if want, got := ContentCapacity, len(m.Payload()); want != got {
		t.Errorf("Payload should clamp to %d bytes but returned %d", want, got)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid := Encode(NewTextMessage(ChannelGlobal, "hi", time.Now()))

	badLength := valid
	badLength[16] = 0xFF
	badLength[17] = 0xFF

	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "Error: Short frame", frame: valid[:FrameSize-1]},
		{name: "Error: Long frame", frame: append(valid[:], 0)},
		{name: "Error: Content length above capacity", frame: badLength[:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			if want, got := errs.ErrMalformedFrame, errs.Code(err); want != got {
				t.Errorf("expected code %d but got %d (%v)", want, got, err)
			}
		})
	}
}

func TestBinaryMarshalerInterfaces(t *testing.T) {
	in := NewTextMessage(ChannelGlobal, "marshal", time.Unix(42, 0))
	in.Sender = 3

	data, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	var out Message
	if err := out.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if out != in {
		t.Error("UnmarshalBinary did not restore the message")
	}
	if !out.Time().Equal(time.Unix(42, 0)) {
		t.Errorf("unexpected time %s", out.Time())
	}

	if err := out.UnmarshalBinary(data[:10]); !errors.Is(err, errs.NewError(errs.ErrMalformedFrame)) {
		t.Errorf("expected malformed frame error but got %v", err)
	}
}

package protocol

import (
	"errors"
	"io"
)

// Decoder reads whole frames from a stream. Bytes of a frame received before a
// read error (typically a deadline) are kept, so the next call resumes the same
// frame instead of desynchronizing the stream.
type Decoder struct {
	r   io.Reader
	buf [FrameSize]byte
	n   int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Buffered returns the number of bytes of the current, incomplete frame.
func (d *Decoder) Buffered() int {
	return d.n
}

// Decode returns the next message. A stream that ends inside a frame yields
// io.ErrUnexpectedEOF.
func (d *Decoder) Decode() (Message, error) {
	for d.n < FrameSize {
		n, err := d.r.Read(d.buf[d.n:])
		d.n += n
		if d.n == FrameSize {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) && d.n > 0 {
				d.n = 0
				return Message{}, io.ErrUnexpectedEOF
			}
			return Message{}, err
		}
	}

	d.n = 0
	return Decode(d.buf[:])
}

// WriteMessage writes m to w as one frame.
func WriteMessage(w io.Writer, m Message) error {
	frame := Encode(m)
	_, err := w.Write(frame[:])
	return err
}

package registry

import "relaychat/internal/app/protocol"

// ring is a bounded FIFO that overwrites its oldest entry once full.
// Storage grows on demand up to capacity.
type ring struct {
	buf      []protocol.Message
	capacity int
	start    int
}

func newRing(capacity int) *ring {
	return &ring{capacity: capacity}
}

func (r *ring) push(m protocol.Message) {
	if len(r.buf) < r.capacity {
		r.buf = append(r.buf, m)
		return
	}
	r.buf[r.start] = m
	r.start = (r.start + 1) % r.capacity
}

func (r *ring) len() int {
	return len(r.buf)
}

func (r *ring) items() []protocol.Message {
	out := make([]protocol.Message, len(r.buf))
	for i := range r.buf {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

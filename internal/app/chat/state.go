package chat

import "sync/atomic"

// ConnState is the lifecycle stage of a chat connection.
type ConnState int32

const (
	// StateConnecting covers the time between accept and hub registration.
	StateConnecting ConnState = iota
	// StateActive means the user is registered and frames are dispatched.
	StateActive
	// StateClosing means the connection is being torn down; queued frames are discarded.
	StateClosing
	// StateClosed means both workers have exited.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// connState holds a ConnState that only ever moves forward.
type connState struct {
	v atomic.Int32
}

func (c *connState) Load() ConnState {
	return ConnState(c.v.Load())
}

// advance moves to the given state if it is later than the current one and
// reports whether it did.
func (c *connState) advance(to ConnState) bool {
	for {
		cur := c.v.Load()
		if int32(to) <= cur {
			return false
		}
		if c.v.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

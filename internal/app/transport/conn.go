/*
Package transport abstracts a bidirectional frame connection so that the chat hub serves
raw TCP clients and WebSocket clients identically. Each implementation moves exactly one
protocol.Message per read or write.
*/
package transport

import (
	"time"

	"relaychat/internal/app/protocol"
)

// Conn carries whole protocol frames. ReadMessage and WriteMessage may be
// called concurrently with each other, but neither concurrently with itself.
// Close may be called at any time and unblocks a pending read.
type Conn interface {
	// ReadMessage blocks until a full frame arrives or the read deadline passes.
	ReadMessage() (protocol.Message, error)

	// WriteMessage sends one frame.
	WriteMessage(m protocol.Message) error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	// RemoteAddr returns the peer address for admission and logging.
	RemoteAddr() string

	// Kind names the transport ("tcp" or "websocket").
	Kind() string

	Close() error
}

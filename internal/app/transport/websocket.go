package transport

import (
	"time"

	"github.com/gorilla/websocket"

	"relaychat/internal/app/protocol"
	"relaychat/internal/pkg/errs"
)

// WebSocketConn carries one frame per binary WebSocket message.
type WebSocketConn struct {
	conn *websocket.Conn
}

// NewWebSocketConn wraps an upgraded (or dialed) WebSocket connection.
func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	conn.SetReadLimit(protocol.FrameSize)
	return &WebSocketConn{conn: conn}
}

// ReadMessage rejects text messages and binary messages of the wrong size.
func (c *WebSocketConn) ReadMessage() (protocol.Message, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, err
	}
	if messageType != websocket.BinaryMessage {
		return protocol.Message{}, errs.NewError(errs.ErrMalformedFrame)
	}
	return protocol.Decode(data)
}

func (c *WebSocketConn) WriteMessage(m protocol.Message) error {
	frame := protocol.Encode(m)
	return c.conn.WriteMessage(websocket.BinaryMessage, frame[:])
}

func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *WebSocketConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *WebSocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *WebSocketConn) Kind() string {
	return "websocket"
}

// Close sends a normal-closure frame on a best-effort basis, then closes the socket.
func (c *WebSocketConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

package transport

import (
	"net"
	"time"

	"relaychat/internal/app/protocol"
)

// TCPConn frames messages over a stream socket.
type TCPConn struct {
	conn net.Conn
	dec  *protocol.Decoder
}

// NewTCPConn wraps an established stream connection.
func NewTCPConn(conn net.Conn) *TCPConn {
	return &TCPConn{
		conn: conn,
		dec:  protocol.NewDecoder(conn),
	}
}

func (c *TCPConn) ReadMessage() (protocol.Message, error) {
	return c.dec.Decode()
}

func (c *TCPConn) WriteMessage(m protocol.Message) error {
	return protocol.WriteMessage(c.conn, m)
}

func (c *TCPConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *TCPConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *TCPConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *TCPConn) Kind() string {
	return "tcp"
}

func (c *TCPConn) Close() error {
	return c.conn.Close()
}

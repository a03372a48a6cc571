/*
Package chat contains the server side of the chat service: the connection manager, the hub
that owns the channel registry, and the per-connection workers.

This file defines the Client struct, representing one accepted connection. It manages the
connection's lifecycle and its two communication loops (readPump and writePump), and hands
every inbound frame to the Hub.
*/
package chat

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/transport"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

// sendQueueSize is the number of outbound frames buffered per client. A client
// whose queue is full when the hub delivers to it is disconnected.
const sendQueueSize = 256

// Client struct represents an accepted connection and the user it carries.
type Client struct {
	// the hub the client is registered with.
	hub *Hub

	// underlying frame connection (raw TCP or WebSocket).
	conn transport.Conn

	// user ID assigned by the hub at registration; 0 until then.
	id protocol.UserID

	// connID identifies the connection in the logs.
	connID string

	// a buffered channel of frames waiting to be written. Only the hub sends on
	// it and closes it.
	send chan protocol.Message

	state connState

	// named is set once the user chose a name and was announced. Owned by the hub goroutine.
	named bool

	idleTimeout  time.Duration
	writeTimeout time.Duration

	// closed when writePump returns.
	writerDone chan struct{}

	// structured logger with connection context.
	logger zerolog.Logger
}

// newClient constructs a Client in the Connecting state.
func newClient(hub *Hub, conn transport.Conn, idleTimeout, writeTimeout time.Duration) *Client {
	connID := randx.ConnectionID()

	return &Client{
		hub:          hub,
		conn:         conn,
		connID:       connID,
		send:         make(chan protocol.Message, sendQueueSize),
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
		writerDone:   make(chan struct{}),
		logger: logx.Component("client").With().
			Str("conn_id", connID).
			Str("transport", conn.Kind()).
			Str("remote", logx.AnonymizeIP(conn.RemoteAddr())).
			Logger(),
	}
}

// ID returns the assigned user ID.
func (c *Client) ID() protocol.UserID {
	return c.id
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	return c.state.Load()
}

// enqueue queues a frame without blocking and reports whether it was accepted.
// Must only be called from the hub goroutine.
func (c *Client) enqueue(m protocol.Message) bool {
	if c.state.Load() >= StateClosing {
		return false
	}

	select {
	case c.send <- m:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full.")
		return false
	}
}

// readPump reads frames until the connection fails, stays idle past the idle
// timeout or is closed by the writer. Every frame is handed to the hub.
func (c *Client) readPump() {
	defer c.cleanupOnDisconnect()

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to set read deadline")
			return
		}

		msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.hub.Dispatch(c, msg) {
			return
		}
	}
}

func (c *Client) logReadError(err error) {
	var netErr net.Error

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Info().Msg("Peer closed the connection.")
	case errors.As(err, &netErr) && netErr.Timeout():
		c.logger.Info().Dur("idle_timeout", c.idleTimeout).Msg("Connection idle for too long.")
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.logger.Warn().Msg("Connection closed inside a frame.")
	default:
		c.logger.Warn().Err(err).Msg("Error reading frame.")
	}
}

// cleanupOnDisconnect moves the client to Closing, removes it from the hub and
// closes the connection, which also stops writePump.
func (c *Client) cleanupOnDisconnect() {
	c.state.advance(StateClosing)
	c.hub.Unregister(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Connection close error in readPump")
	}
}

// writePump writes queued frames until the hub closes the send channel or a
// write fails.
func (c *Client) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in writePump")
		}
		close(c.writerDone)
	}()

	for msg := range c.send {
		if c.state.Load() >= StateClosing {
			return
		}

		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to set write deadline")
			return
		}

		if err := c.conn.WriteMessage(msg); err != nil {
			c.logger.Warn().Err(err).Msg("Error writing frame")
			return
		}
	}
}

// writeDirect writes one frame bypassing the queue. It is only used before
// writePump starts, to tell a rejected peer why.
func (c *Client) writeDirect(m protocol.Message) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return
	}
	if err := c.conn.WriteMessage(m); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to write rejection frame")
	}
}

/*
Package chat contains the server side of the chat service: the connection manager, the hub
that owns the channel registry, and the per-connection workers.

This file defines the Hub struct, the single goroutine that owns the Registry. Workers talk
to it only through channels: registration, unregistration, inbound frames and snapshot
queries are serialized in its Run loop, so membership and history never need a lock and
every channel sees its frames in the order the hub processed them.
*/
package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/registry"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
)

const inboundChannelBuffer = 1024

type registerRequest struct {
	client *Client
	reply  chan error
}

type inboundFrame struct {
	client *Client
	msg    protocol.Message
}

// Hub owns the registry and the set of live clients.
type Hub struct {
	registry *registry.Registry

	// live clients keyed by user ID.
	clients map[protocol.UserID]*Client

	// next user ID to assign; IDs are never reused within a run.
	nextUserID protocol.UserID

	// maxClients caps concurrently registered clients; 0 means no cap.
	maxClients int

	register   chan registerRequest
	unregister chan *Client
	inbound    chan inboundFrame
	queries    chan func()

	// clients whose send queue overflowed during the current event.
	slow []*Client

	startedAt time.Time
	now       func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// structured logger with hub context.
	logger zerolog.Logger
}

// NewHub creates a Hub over a fresh registry. Call Run to start it.
func NewHub(limits registry.Limits, maxClients int) *Hub {
	return &Hub{
		registry:   registry.New(limits),
		clients:    make(map[protocol.UserID]*Client),
		nextUserID: protocol.ServerUserID + 1,
		maxClients: maxClients,
		register:   make(chan registerRequest),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, inboundChannelBuffer),
		queries:    make(chan func()),
		startedAt:  time.Now(),
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logx.Component("hub"),
	}
}

// Run is the hub's event loop. It returns after Stop, once every client's
// send channel has been closed.
func (h *Hub) Run() {
	defer close(h.done)

	h.logger.Info().Msg("Hub started.")

	for {
		select {
		case req := <-h.register:
			req.reply <- h.addClient(req.client)

		case c := <-h.unregister:
			h.removeClient(c, "disconnected")

		case in := <-h.inbound:
			h.dispatch(in.client, in.msg)

		case fn := <-h.queries:
			fn()

		case <-h.stop:
			h.closeAll()
			h.logger.Info().Msg("Hub stopped.")
			return
		}

		h.dropSlow()
	}
}

// Stop ends the Run loop and waits for it to finish. It is safe to call more
// than once, but Run must have been started.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// Register assigns the client a user ID, joins it to the global channel and
// queues its handshake frames. It fails with ErrServerFull at the client cap
// and with ErrServerClosed once the hub stopped.
func (h *Hub) Register(c *Client) error {
	req := registerRequest{client: c, reply: make(chan error, 1)}

	select {
	case h.register <- req:
	case <-h.done:
		return errs.NewError(errs.ErrServerClosed)
	}

	return <-req.reply
}

// Unregister removes the client and notifies its former channel-mates.
// Unregistering a client that is already gone is a no-op.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch hands an inbound frame to the hub. It reports false once the hub
// has stopped.
func (h *Hub) Dispatch(c *Client, msg protocol.Message) bool {
	select {
	case h.inbound <- inboundFrame{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// do runs fn on the hub goroutine and waits for it.
func (h *Hub) do(fn func()) error {
	finished := make(chan struct{})

	select {
	case h.queries <- func() { fn(); close(finished) }:
	case <-h.done:
		return errs.NewError(errs.ErrServerClosed)
	}

	<-finished
	return nil
}

func (h *Hub) addClient(c *Client) error {
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		h.logger.Warn().
			Int("max_clients", h.maxClients).
			Str("conn_id", c.connID).
			Msg("Server is full. New client rejected.")
		return errs.NewError(errs.ErrServerFull)
	}

	c.id = h.nextUserID
	h.nextUserID++

	h.registry.AddUser(c.id, "")
	if _, err := h.registry.AddMember(protocol.ChannelGlobal, c.id); err != nil {
		h.registry.RemoveUser(c.id)
		h.logger.Warn().Err(err).Str("conn_id", c.connID).Msg("Global channel rejected new client.")
		return err
	}

	h.clients[c.id] = c
	c.logger = c.logger.With().Uint32("user_id", uint32(c.id)).Logger()

	h.logger.Info().
		Uint32("user_id", uint32(c.id)).
		Str("conn_id", c.connID).
		Int("total_users", len(h.clients)).
		Msg("Client registered.")

	h.deliverControl(c, protocol.ChannelServer, protocol.Control{Type: protocol.TypeUserIDGet, UserID: c.id})
	h.sendSync(c, protocol.ChannelGlobal)

	return nil
}

// removeClient forgets the client, closes its send channel and tells the
// remaining members of each channel it was in. Frames already queued are
// still written unless the client was moved to Closing first.
func (h *Hub) removeClient(c *Client, reason string) {
	current, ok := h.clients[c.id]
	if !ok || current != c {
		return
	}

	name := h.registry.LookupName(c.id)
	delete(h.clients, c.id)
	close(c.send)

	left := h.registry.RemoveUser(c.id)

	h.logger.Info().
		Uint32("user_id", uint32(c.id)).
		Str("reason", reason).
		Int("channels", len(left)).
		Int("total_users", len(h.clients)).
		Msg("Client removed.")

	for _, cid := range left {
		if !h.registry.HasChannel(cid) {
			continue
		}
		h.broadcastControl(cid, 0, protocol.Control{
			Type:   protocol.TypeUserLeave,
			UserID: c.id,
			Text:   name,
		})
	}
}

// dropSlow disconnects clients whose queue overflowed. Removing one may
// overflow another, so it loops until the list is empty.
func (h *Hub) dropSlow() {
	for len(h.slow) > 0 {
		c := h.slow[0]
		h.slow = h.slow[1:]
		c.state.advance(StateClosing)
		h.removeClient(c, "send queue full")
	}
	h.slow = h.slow[:0]
}

func (h *Hub) closeAll() {
	for id, c := range h.clients {
		c.state.advance(StateClosing)
		close(c.send)
		delete(h.clients, id)
	}
	h.slow = nil
}

// deliver queues msg for one client and marks the client slow on overflow.
// Delivery to one client never blocks delivery to another.
func (h *Hub) deliver(c *Client, msg protocol.Message) {
	if !c.enqueue(msg) && c.state.Load() < StateClosing {
		h.slow = append(h.slow, c)
	}
}

func (h *Hub) deliverControl(c *Client, channel protocol.ChannelID, ctrl protocol.Control) {
	h.deliver(c, protocol.NewControlMessage(channel, ctrl, h.now()))
}

// broadcast delivers msg to every member of the channel except skip.
func (h *Hub) broadcast(cid protocol.ChannelID, skip protocol.UserID, msg protocol.Message) {
	for _, uid := range h.registry.Members(cid) {
		if uid == skip {
			continue
		}
		if c, ok := h.clients[uid]; ok {
			h.deliver(c, msg)
		}
	}
}

func (h *Hub) broadcastControl(cid protocol.ChannelID, skip protocol.UserID, ctrl protocol.Control) {
	h.broadcast(cid, skip, protocol.NewControlMessage(cid, ctrl, h.now()))
}

// sendSync queues the member list of a channel, split across as many
// UserListSync frames as needed.
func (h *Hub) sendSync(c *Client, cid protocol.ChannelID) {
	for _, chunk := range protocol.ChunkUserIDs(h.registry.Members(cid)) {
		h.deliverControl(c, cid, protocol.Control{Type: protocol.TypeUserListSync, UserIDs: chunk})
	}
}

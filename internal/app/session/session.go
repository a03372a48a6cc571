/*
Package session implements the client side of the chat protocol.

A Session owns one TCP connection and a local replica of the channels, users and history the
server has told it about. It is driven entirely by its caller: every method returns promptly,
and PollIncoming drains whatever frames are already available without waiting for more, so
the caller can interleave it with presentation work on a single goroutine. A Session is not
safe for concurrent use.
*/
package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/registry"
	"relaychat/internal/app/transport"
	"relaychat/internal/app/user"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
)

const (
	// DefaultDialTimeout bounds address resolution plus connect.
	DefaultDialTimeout = 5 * time.Second

	// DefaultPollWait is how long PollIncoming waits for the next frame before
	// concluding that nothing is pending.
	DefaultPollWait = time.Millisecond

	// DefaultKeepAlive is the send silence after which PollIncoming pings.
	DefaultKeepAlive = 30 * time.Second

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second

	// maxFramesPerPoll keeps one PollIncoming call from starving the caller
	// under a flood.
	maxFramesPerPoll = 256
)

// Options configures a Session. Zero durations take the defaults above.
type Options struct {
	// Address is the server's host:port.
	Address string

	// Username is announced after every successful connect when non-empty.
	Username string

	DialTimeout  time.Duration
	PollWait     time.Duration
	KeepAlive    time.Duration
	WriteTimeout time.Duration

	// Limits bounds the local replica.
	Limits registry.Limits
}

// Session is a client's logical connection to the server.
type Session struct {
	opts Options

	conn      *transport.TCPConn
	connected bool
	lastErr   error

	id   protocol.UserID
	name string

	// reg is the local replica; it always holds the global channel.
	reg *registry.Registry

	// users whose name was requested and not yet received.
	requested map[protocol.UserID]struct{}

	lastSend time.Time
	now      func() time.Time

	// base is the logger without the assigned user ID.
	base   zerolog.Logger
	logger zerolog.Logger
}

// New returns a disconnected Session. Call Connect to open the connection.
func New(opts Options) *Session {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.PollWait <= 0 {
		opts.PollWait = DefaultPollWait
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	logger := logx.Component("session").With().Str("server", opts.Address).Logger()

	return &Session{
		opts:      opts,
		name:      opts.Username,
		reg:       registry.New(opts.Limits),
		requested: make(map[protocol.UserID]struct{}),
		now:       time.Now,
		base:      logger,
		logger:    logger,
	}
}

// Connect resolves the server address and opens the connection, closing any
// previous one. A session that already completed a handshake drops what the
// previous server told it, as Reconnect does. On failure the session stays
// disconnected and LastError reports ErrConnectFailed.
func (s *Session) Connect(ctx context.Context) error {
	s.closeConn()
	if s.id != protocol.ServerUserID {
		s.resetReplica()
	}

	dialer := net.Dialer{Timeout: s.opts.DialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", s.opts.Address)
	if err != nil {
		s.lastErr = errs.Wrap(errs.ErrConnectFailed, err)
		s.logger.Warn().Err(err).Msg("Connect failed.")
		return s.lastErr
	}

	s.conn = transport.NewTCPConn(nc)
	s.connected = true
	s.lastErr = nil
	s.lastSend = s.now()
	s.logger.Info().Msg("Connected.")

	if s.name != "" {
		return s.sendControl(protocol.Control{Type: protocol.TypeUserNameSet, Text: s.name})
	}
	return nil
}

// Reconnect discards everything the server will resend (private channels, the
// user list, the own ID), keeps the global channel's history and connects
// again. It is safe to call after any failure.
func (s *Session) Reconnect(ctx context.Context) error {
	s.closeConn()
	s.resetReplica()

	return s.Connect(ctx)
}

// resetReplica forgets users, private channels, global membership and the own
// ID. Global history survives.
func (s *Session) resetReplica() {
	for _, uid := range s.reg.UserIDs() {
		s.reg.RemoveUser(uid)
	}
	for _, cid := range s.reg.ChannelIDs() {
		s.reg.DestroyChannel(cid)
	}
	s.reg.ClearMembers(protocol.ChannelGlobal)
	clear(s.requested)
	s.id = protocol.ServerUserID
	s.logger = s.base
}

// Close closes the connection. The replica is kept.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.connected = false
	return err
}

func (s *Session) closeConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connected = false
}

// markDisconnected records err and drops the connection.
func (s *Session) markDisconnected(err error) {
	if s.connected {
		s.logger.Warn().Err(err).Msg("Connection lost.")
	}
	s.lastErr = err
	s.closeConn()
}

func (s *Session) send(m protocol.Message) error {
	if !s.connected {
		return errs.NewError(errs.ErrNotConnected)
	}

	if err := s.conn.SetWriteDeadline(s.now().Add(s.opts.WriteTimeout)); err != nil {
		s.markDisconnected(errs.Wrap(errs.ErrSendFailed, err))
		return s.lastErr
	}
	if err := s.conn.WriteMessage(m); err != nil {
		s.markDisconnected(errs.Wrap(errs.ErrSendFailed, err))
		return s.lastErr
	}

	s.lastSend = s.now()
	return nil
}

func (s *Session) sendControl(ctrl protocol.Control) error {
	return s.send(protocol.NewControlMessage(protocol.ChannelServer, ctrl, s.now()))
}

// SendText sends a chat line to a channel and records it in the local
// history, since the server does not echo it back. Text beyond the frame's
// capacity is truncated.
func (s *Session) SendText(channel protocol.ChannelID, text string) error {
	if channel == protocol.ChannelServer {
		return errs.NewError(errs.ErrInvalidParams)
	}

	m := protocol.NewTextMessage(channel, text, s.now())
	m.Sender = s.id
	if err := s.send(m); err != nil {
		return err
	}

	if err := s.reg.RecordHistory(channel, m); err != nil {
		s.logger.Debug().Err(err).Msg("Sent to a channel missing from the replica.")
	}
	return nil
}

// SendUsername validates and announces a display name. The name is kept and
// re-announced on every later connect, even when sending it fails now.
func (s *Session) SendUsername(name string) error {
	name, err := user.CleanName(name)
	if err != nil {
		return err
	}

	s.name = name
	if s.id != protocol.ServerUserID {
		s.reg.AddUser(s.id, name)
	}

	return s.sendControl(protocol.Control{Type: protocol.TypeUserNameSet, Text: name})
}

// Ping checks the connection is alive. A failure marks the session disconnected.
func (s *Session) Ping() error {
	return s.sendControl(protocol.Control{Type: protocol.TypePing})
}

// CreatePrivateChannel asks the server for a new channel shared with uid, or a
// channel of one's own when uid is 0. The channel appears after the server's
// reply is polled.
func (s *Session) CreatePrivateChannel(uid protocol.UserID) error {
	return s.sendControl(protocol.Control{Type: protocol.TypeCreateChannel, UserID: uid})
}

// InviteUser asks the server to add uid to a channel the session belongs to.
func (s *Session) InviteUser(uid protocol.UserID, channel protocol.ChannelID) error {
	return s.sendControl(protocol.Control{Type: protocol.TypeUserInvite, ChannelID: channel, UserID: uid})
}

// LeaveChannel leaves a non-global channel and forgets it locally.
func (s *Session) LeaveChannel(channel protocol.ChannelID) error {
	if channel == protocol.ChannelGlobal {
		return errs.NewError(errs.ErrGlobalChannel)
	}

	if err := s.sendControl(protocol.Control{Type: protocol.TypeUserLeaveChannel, ChannelID: channel}); err != nil {
		return err
	}

	members := s.reg.Members(channel)
	s.reg.DestroyChannel(channel)
	for _, uid := range members {
		s.forgetIfOrphaned(uid)
	}
	return nil
}

// RequestUserList asks for the member lists of every channel the session is in.
func (s *Session) RequestUserList() error {
	return s.sendControl(protocol.Control{Type: protocol.TypeUserListSync})
}

// RequestUserName asks for a user's name.
func (s *Session) RequestUserName(uid protocol.UserID) error {
	if err := s.sendControl(protocol.Control{Type: protocol.TypeUserNameRequest, UserID: uid}); err != nil {
		return err
	}
	s.requested[uid] = struct{}{}
	return nil
}

// PollIncoming applies every frame that is already available and returns the
// history entries it appended, in arrival order. It never waits longer than
// the poll wait for a frame. When nothing was sent for the keep-alive interval
// it also pings.
func (s *Session) PollIncoming() []protocol.Message {
	if !s.connected {
		return nil
	}

	var (
		appended []protocol.Message
		rejected error
	)

	for range maxFramesPerPoll {
		if err := s.conn.SetReadDeadline(s.now().Add(s.opts.PollWait)); err != nil {
			s.markDisconnected(errs.Wrap(errs.ErrNotConnected, err))
			return appended
		}

		m, err := s.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			if rejected != nil {
				s.markDisconnected(rejected)
			} else {
				s.markDisconnected(errs.Wrap(errs.ErrNotConnected, err))
			}
			return appended
		}

		entries, serverErr := s.apply(m)
		appended = append(appended, entries...)
		if serverErr != nil {
			rejected = serverErr
		}

		// a name request sent while applying may have failed and dropped the connection
		if !s.connected {
			return appended
		}
	}

	if s.connected && s.now().Sub(s.lastSend) >= s.opts.KeepAlive {
		_ = s.Ping()
	}

	return appended
}

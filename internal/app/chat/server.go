/*
Package chat contains the server side of the chat service: the connection manager, the hub
that owns the channel registry, and the per-connection workers.

This file defines the Server struct, which owns the TCP listener, admits connections and
tracks every worker so that shutdown can wait for all of them before the listening socket is
released.
*/
package chat

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"relaychat/internal/app/registry"
	"relaychat/internal/app/transport"
	"relaychat/internal/configs"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/limiter"
	"relaychat/internal/pkg/logx"
)

// Server accepts chat connections and serves them through a Hub.
type Server struct {
	// config holds the application's read-only configuration settings.
	config *configs.AppConfig

	hub       *Hub
	admission *limiter.IPRateLimiter
	listener  *net.TCPListener

	// mu guards closed and the Add side of the wait groups.
	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
	workers sync.WaitGroup

	stopAccept chan struct{}
	hubOnce    sync.Once

	// structured logger with server context.
	logger zerolog.Logger
}

// NewServer constructs a Server. Call Init before Run or ServeConn.
func NewServer(cfg *configs.AppConfig) *Server {
	limits := registry.Limits{
		MaxChannels: cfg.MaxChannels,
		MaxMembers:  cfg.MaxChannelMembers,
		MaxHistory:  cfg.MaxChannelHistory,
	}

	return &Server{
		config:     cfg,
		hub:        NewHub(limits, cfg.MaxClients),
		admission:  limiter.NewIPRateLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst),
		stopAccept: make(chan struct{}),
		logger:     logx.Component("server"),
	}
}

// Init opens the listening socket and starts the hub.
func (s *Server) Init() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr())
	if err != nil {
		return errs.Wrap(errs.ErrConnectFailed, err)
	}

	s.listener = ln.(*net.TCPListener)
	s.startHub()

	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("Chat server listening.")
	return nil
}

func (s *Server) startHub() {
	s.hubOnce.Do(func() { go s.hub.Run() })
}

// Addr returns the listening address, or nil before Init.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Hub returns the hub serving this server's connections.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Admit applies the per-IP connection rate limit to a new peer.
func (s *Server) Admit(remoteAddr string) error {
	if !s.admission.AllowAddr(remoteAddr) {
		return errs.NewError(errs.ErrRateLimitExceeded)
	}
	return nil
}

// Run accepts TCP connections until ctx is cancelled or Shutdown is called.
// Accept waits at most one poll interval so that both are noticed promptly.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errs.NewError(errs.ErrServerClosed)
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopAccept:
			return nil
		default:
		}

		if err := s.listener.SetDeadline(time.Now().Add(s.config.PollInterval)); err != nil {
			return errs.Wrap(errs.ErrConnectFailed, err)
		}

		nc, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn().Err(err).Msg("Accept failed.")
			continue
		}

		conn := transport.NewTCPConn(nc)
		if err := s.Admit(conn.RemoteAddr()); err != nil {
			s.reject(conn, err)
			continue
		}

		go func() {
			_ = s.ServeConn(conn)
		}()
	}
}

// ServeConn registers the connection with the hub and serves it until it
// closes. It blocks, so HTTP handlers can call it on the upgraded socket.
func (s *Server) ServeConn(conn transport.Conn) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		err := errs.NewError(errs.ErrServerClosed)
		s.reject(conn, err)
		return err
	}
	s.workers.Add(1)
	s.mu.Unlock()
	defer s.workers.Done()

	c := newClient(s.hub, conn, s.config.IdleTimeout, s.config.WriteTimeout)
	if err := s.hub.Register(c); err != nil {
		c.writeDirect(errorMessage(err, time.Now()))
		c.state.advance(StateClosed)
		_ = conn.Close()
		return err
	}
	c.state.advance(StateActive)

	go c.writePump()
	c.readPump()
	<-c.writerDone

	c.state.advance(StateClosed)
	c.logger.Debug().Msg("Connection closed.")

	return nil
}

// reject tells the peer why it was refused and closes the connection.
func (s *Server) reject(conn transport.Conn, err error) {
	s.logger.Warn().
		Err(err).
		Str("remote", logx.AnonymizeIP(conn.RemoteAddr())).
		Str("transport", conn.Kind()).
		Msg("Connection rejected.")

	if deadlineErr := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); deadlineErr == nil {
		_ = conn.WriteMessage(errorMessage(err, time.Now()))
	}
	_ = conn.Close()
}

// Shutdown stops accepting, stops the hub, waits for every worker and then
// closes the listening socket.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stopAccept)
	s.mu.Unlock()

	s.logger.Info().Msg("Shutting down chat server...")

	s.running.Wait()

	s.startHub()
	s.hub.Stop()
	s.workers.Wait()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Listener close error")
		}
	}
	s.admission.Stop()

	s.logger.Info().Msg("Chat server shutdown complete.")
}

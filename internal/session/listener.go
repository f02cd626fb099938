package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"stock_auction/internal/domain"
	"stock_auction/internal/infra"
)

// ServerConfig tunes per-connection behaviour.
type ServerConfig struct {
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	OutboxSize   int
	MaxLineBytes int
}

// Server accepts TCP connections and runs one session per connection.
type Server struct {
	cfg      ServerConfig
	protocol *Protocol
	registry *Registry
	metrics  *infra.Metrics

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server registering its sessions in registry.
func NewServer(cfg ServerConfig, bidder Bidder, registry *Registry) *Server {
	return &Server{
		cfg:      cfg,
		protocol: NewProtocol(bidder, cfg.IdleTimeout, cfg.MaxLineBytes),
		registry: registry,
		metrics:  infra.GlobalMetrics,
	}
}

// Listen binds addr. Bind failures are fatal startup errors.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, domain.NewFatalNetworkError("listen", err)
	}
	return ln, nil
}

// Serve accepts on ln until ctx is done or Shutdown is called, and then
// returns ErrServerClosed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return domain.ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-stop:
		}
	}()

	slog.Info("Auction server listening", slog.String("addr", ln.Addr().String()))

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return domain.ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				slog.Warn("Accept error, retrying", slog.Any("error", err), slog.Duration("delay", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			return domain.NewFatalNetworkError("accept", err)
		}
		tempDelay = 0

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return domain.ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, closes every session and waits for their
// handlers to return.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.ln != nil {
			s.ln.Close()
		}
	}
	s.mu.Unlock()

	s.registry.CloseAll()
	s.wg.Wait()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	sess := New(NewLineTransport(conn, s.cfg.WriteTimeout), s.cfg.OutboxSize)
	s.registry.Register(sess)
	s.metrics.SessionOpened()
	slog.Info("Session opened", slog.Uint64("session", sess.ID()), slog.String("peer", sess.Peer()))

	var reason error
	defer func() {
		s.registry.Unregister(sess)
		sess.Close()
		s.metrics.SessionClosed()
		if err := sess.Err(); err != nil {
			reason = err
		}
		logClose(sess, reason)
	}()

	// Registered after Shutdown's CloseAll pass
	if s.isClosed() {
		reason = domain.ErrServerClosed
		return
	}

	go sess.WriteLoop()
	reason = s.protocol.Serve(sess, conn)
}

func logClose(sess *Session, reason error) {
	attrs := []any{
		slog.Uint64("session", sess.ID()),
		slog.String("peer", sess.Peer()),
		slog.String("user", sess.UserID()),
	}
	switch {
	case reason == nil, errors.Is(reason, io.EOF):
		slog.Info("Session closed", attrs...)
	default:
		slog.Info("Session terminated", append(attrs, slog.Any("reason", reason))...)
	}
}

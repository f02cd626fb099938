package session

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"stock_auction/internal/domain"
)

// Phase is the dialog state of a session.
type Phase int

const (
	PhaseAwaitID Phase = iota
	PhaseAwaitSymbol
	PhaseAwaitAmount
	PhaseAwaitCode
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitID:
		return "AWAIT_ID"
	case PhaseAwaitSymbol:
		return "AWAIT_SYMBOL"
	case PhaseAwaitAmount:
		return "AWAIT_AMOUNT"
	case PhaseAwaitCode:
		return "AWAIT_CODE"
	case PhaseTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Transport writes whole frames to a peer.
type Transport interface {
	WriteFrame(frame string) error
	Close() error
	RemoteAddr() string
}

type lineTransport struct {
	conn         net.Conn
	writeTimeout time.Duration
}

// NewLineTransport frames every write as one '\n'-terminated line.
func NewLineTransport(conn net.Conn, writeTimeout time.Duration) Transport {
	return &lineTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *lineTransport) WriteFrame(frame string) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(t.conn, frame+"\n")
	return err
}

func (t *lineTransport) Close() error      { return t.conn.Close() }
func (t *lineTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

var sessionSeq atomic.Uint64

// Session is one connected peer. Every outbound frame, replies and
// broadcast notices alike, goes through the bounded outbox and is written
// by a single writer goroutine, so frames reach the peer in enqueue order.
type Session struct {
	id        uint64
	peer      string
	transport Transport
	outbox    chan string
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	userID string
	phase  Phase
	err    error
}

// New creates a session with an outbox of outboxSize frames.
func New(t Transport, outboxSize int) *Session {
	if outboxSize <= 0 {
		outboxSize = 1
	}
	return &Session{
		id:        sessionSeq.Add(1),
		peer:      t.RemoteAddr(),
		transport: t,
		outbox:    make(chan string, outboxSize),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() uint64   { return s.id }
func (s *Session) Peer() string { return s.peer }

// UserID returns the id given at login, or "" before it.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) setUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// Phase returns the current dialog phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// Send enqueues a frame without blocking. A full outbox fails the session
// with ErrOutboxFull.
func (s *Session) Send(frame string) error {
	select {
	case <-s.done:
		return domain.ErrSessionClosed
	default:
	}

	select {
	case s.outbox <- frame:
		return nil
	default:
		s.Fail(domain.ErrOutboxFull)
		return domain.ErrOutboxFull
	}
}

// WriteLoop drains the outbox to the transport until the session closes.
func (s *Session) WriteLoop() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.outbox:
			if err := s.transport.WriteFrame(frame); err != nil {
				s.Fail(domain.NewFatalNetworkError("write", err))
				return
			}
		}
	}
}

// Fail records the first failure cause and closes the session.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.Close()
}

// Err returns the failure that terminated the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Failed reports whether the session was evicted for backpressure.
func (s *Session) Failed() bool {
	return errors.Is(s.Err(), domain.ErrOutboxFull)
}

// Close tears down the transport. Blocked reads on it return an error.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setPhase(PhaseTerminated)
		close(s.done)
		_ = s.transport.Close()
	})
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

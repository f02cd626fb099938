package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"stock_auction/internal/domain"
	"stock_auction/internal/event"
	"stock_auction/internal/infra"
)

// Sink receives every notice after it has been fanned out to sessions.
// Consume is called from the broadcaster goroutine and must not block.
type Sink interface {
	Consume(n event.Notice)
}

// Broadcaster decouples the engine from peers. Publish appends to an
// unbounded FIFO in O(1); a single consumer goroutine walks the registry
// and pushes each notice into every session's outbox. Sessions whose
// outbox is full are evicted instead of waited on.
type Broadcaster struct {
	registry *Registry
	sinks    []Sink
	metrics  *infra.Metrics

	mu     sync.Mutex
	queue  []event.Notice
	seq    uint64
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewBroadcaster creates a broadcaster over registry. Run must be started.
func NewBroadcaster(registry *Registry, sinks ...Sink) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		sinks:    sinks,
		metrics:  infra.GlobalMetrics,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Publish enqueues a notice and stamps its sequence number.
// Notices published after Close are dropped.
func (b *Broadcaster) Publish(n event.Notice) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.seq++
	n.Seq = b.seq
	b.queue = append(b.queue, n)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run delivers notices until ctx is done or Close is called, then drains
// what is already queued and returns.
func (b *Broadcaster) Run(ctx context.Context) {
	defer close(b.done)
	slog.Info("Broadcaster started")

	for {
		select {
		case <-b.wake:
			b.drain()
		case <-ctx.Done():
			b.shutdown()
			return
		case <-b.stop:
			b.shutdown()
			return
		}
	}
}

// Close stops accepting notices and lets Run drain and exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.stop)
	}
}

// Done is closed when Run has returned.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

func (b *Broadcaster) shutdown() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.drain()
	slog.Info("Broadcaster stopped")
}

func (b *Broadcaster) drain() {
	for {
		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, n := range batch {
			b.deliver(n)
		}
	}
}

func (b *Broadcaster) deliver(n event.Notice) {
	frame := n.Text()
	for _, s := range b.registry.Snapshot() {
		err := s.Send(frame)
		if errors.Is(err, domain.ErrOutboxFull) {
			b.registry.Unregister(s)
			b.metrics.RecordEviction()
			slog.Warn("Evicted slow session",
				slog.Uint64("session", s.ID()),
				slog.String("peer", s.Peer()),
				slog.String("user", s.UserID()))
		}
	}
	for _, sink := range b.sinks {
		sink.Consume(n)
	}
	b.metrics.RecordBroadcast()
}

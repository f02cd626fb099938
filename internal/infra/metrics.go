package infra

import (
	"sync/atomic"
	"time"

	"stock_auction/internal/domain"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	bidsAccepted       atomic.Uint64
	bidsRejectedLow    atomic.Uint64
	bidsRejectedAuth   atomic.Uint64
	bidsRejectedClosed atomic.Uint64
	bidsUnknownSymbol  atomic.Uint64
	auctionsClosed     atomic.Uint64
	noticesBroadcast   atomic.Uint64
	sessionsOpened     atomic.Uint64
	sessionsEvicted    atomic.Uint64
	journalDropped     atomic.Uint64

	// Latency tracking (bid submission under the stock lock)
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeSessions atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordBid records a bid outcome with its latency.
func (m *Metrics) RecordBid(kind domain.OutcomeKind, latencyNs int64) {
	switch kind {
	case domain.OutcomeAccepted:
		m.bidsAccepted.Add(1)
	case domain.OutcomeRejectedLow:
		m.bidsRejectedLow.Add(1)
	case domain.OutcomeRejectedAuth:
		m.bidsRejectedAuth.Add(1)
	case domain.OutcomeRejectedClosed:
		m.bidsRejectedClosed.Add(1)
	case domain.OutcomeUnknownSymbol:
		m.bidsUnknownSymbol.Add(1)
	}
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordAuctionClosed records a stock transitioning to CLOSED.
func (m *Metrics) RecordAuctionClosed() {
	m.auctionsClosed.Add(1)
}

// RecordBroadcast records one notice fanned out to all sessions.
func (m *Metrics) RecordBroadcast() {
	m.noticesBroadcast.Add(1)
}

// RecordEviction records a session torn down for outbox overflow.
func (m *Metrics) RecordEviction() {
	m.sessionsEvicted.Add(1)
}

// RecordJournalDrop records a journal entry dropped on a full queue.
func (m *Metrics) RecordJournalDrop() {
	m.journalDropped.Add(1)
}

// SessionOpened increments active sessions by 1.
func (m *Metrics) SessionOpened() {
	m.sessionsOpened.Add(1)
	m.activeSessions.Add(1)
}

// SessionClosed decrements active sessions by 1.
func (m *Metrics) SessionClosed() {
	m.activeSessions.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	BidsAccepted       uint64    `json:"bids_accepted"`
	BidsRejectedLow    uint64    `json:"bids_rejected_low"`
	BidsRejectedAuth   uint64    `json:"bids_rejected_auth"`
	BidsRejectedClosed uint64    `json:"bids_rejected_closed"`
	BidsUnknownSymbol  uint64    `json:"bids_unknown_symbol"`
	AuctionsClosed     uint64    `json:"auctions_closed"`
	NoticesBroadcast   uint64    `json:"notices_broadcast"`
	SessionsOpened     uint64    `json:"sessions_opened"`
	SessionsEvicted    uint64    `json:"sessions_evicted"`
	JournalDropped     uint64    `json:"journal_dropped"`
	AvgBidLatencyNs    int64     `json:"avg_bid_latency_ns"`
	ActiveSessions     int32     `json:"active_sessions"`
	Timestamp          time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		BidsAccepted:       m.bidsAccepted.Load(),
		BidsRejectedLow:    m.bidsRejectedLow.Load(),
		BidsRejectedAuth:   m.bidsRejectedAuth.Load(),
		BidsRejectedClosed: m.bidsRejectedClosed.Load(),
		BidsUnknownSymbol:  m.bidsUnknownSymbol.Load(),
		AuctionsClosed:     m.auctionsClosed.Load(),
		NoticesBroadcast:   m.noticesBroadcast.Load(),
		SessionsOpened:     m.sessionsOpened.Load(),
		SessionsEvicted:    m.sessionsEvicted.Load(),
		JournalDropped:     m.journalDropped.Load(),
		AvgBidLatencyNs:    avgLatency,
		ActiveSessions:     m.activeSessions.Load(),
		Timestamp:          time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.bidsAccepted.Store(0)
	m.bidsRejectedLow.Store(0)
	m.bidsRejectedAuth.Store(0)
	m.bidsRejectedClosed.Store(0)
	m.bidsUnknownSymbol.Store(0)
	m.auctionsClosed.Store(0)
	m.noticesBroadcast.Store(0)
	m.sessionsOpened.Store(0)
	m.sessionsEvicted.Store(0)
	m.journalDropped.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeSessions.Store(0)
}

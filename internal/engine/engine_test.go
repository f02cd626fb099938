package engine

import (
	"sync"
	"testing"
	"time"

	"stock_auction/internal/domain"
	"stock_auction/internal/event"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []event.Notice
}

func (r *recordingNotifier) Publish(n event.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) list() []event.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Notice(nil), r.notices...)
}

var t0 = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *manualClock, *recordingNotifier) {
	t.Helper()
	book, err := NewBook(testStocks())
	require.NoError(t, err)

	clock := newManualClock(t0)
	notifier := &recordingNotifier{}
	e := NewEngine(book, notifier, clock, DefaultWindows())
	e.Start()
	t.Cleanup(e.Stop)
	return e, clock, notifier
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEngine_Start(t *testing.T) {
	e, _, _ := newTestEngine(t)

	s, ok := e.Book().Get("ACME")
	require.True(t, ok)
	assert.Equal(t, t0, s.LastBidTime)
	assert.Equal(t, t0.Add(InitialWindow), s.CloseDeadline)
	assert.Equal(t, 2, e.timers.Pending())
}

func TestEngine_SubmitBid(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		e, _, notifier := newTestEngine(t)

		out := e.SubmitBid("A", "ACME", dec("150"), "x")
		require.Equal(t, domain.OutcomeAccepted, out.Kind)
		assert.True(t, out.NewHighest.Equal(dec("150")))
		assert.Equal(t, t0.Add(InitialWindow), out.NewDeadline)

		s, _ := e.Book().Get("ACME")
		assert.Equal(t, "A", s.TopBidder)
		assert.True(t, s.CurrentBid.Equal(dec("150")))
		require.Len(t, s.BidLog, 1)
		assert.Equal(t, "A", s.BidLog[0].Bidder)

		notices := notifier.list()
		require.Len(t, notices, 1)
		assert.Equal(t, "ACME: new highest bid 150 by A", notices[0].Text())
	})

	t.Run("bad security code", func(t *testing.T) {
		e, _, notifier := newTestEngine(t)

		out := e.SubmitBid("A", "ACME", dec("150"), "WRONG")
		assert.Equal(t, domain.OutcomeRejectedAuth, out.Kind)

		s, _ := e.Book().Get("ACME")
		assert.True(t, s.CurrentBid.Equal(dec("100")))
		assert.Empty(t, notifier.list())
	})

	t.Run("too low", func(t *testing.T) {
		e, _, notifier := newTestEngine(t)

		require.True(t, e.SubmitBid("A", "ACME", dec("150"), "x").Accepted())
		out := e.SubmitBid("B", "ACME", dec("120"), "x")
		assert.Equal(t, domain.OutcomeRejectedLow, out.Kind)
		assert.Len(t, notifier.list(), 1)
	})

	t.Run("equal to base price", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		out := e.SubmitBid("A", "ACME", dec("100"), "x")
		assert.Equal(t, domain.OutcomeRejectedLow, out.Kind)
	})

	t.Run("same bid twice", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		first := e.SubmitBid("A", "ACME", dec("150"), "x")
		second := e.SubmitBid("A", "ACME", dec("150"), "x")
		assert.Equal(t, domain.OutcomeAccepted, first.Kind)
		assert.Equal(t, domain.OutcomeRejectedLow, second.Kind)

		s, _ := e.Book().Get("ACME")
		assert.Len(t, s.BidLog, 1)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		out := e.SubmitBid("A", "ZZZ", dec("150"), "x")
		assert.Equal(t, domain.OutcomeUnknownSymbol, out.Kind)
	})

	t.Run("auth is checked before price", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		out := e.SubmitBid("A", "ACME", dec("1"), "WRONG")
		assert.Equal(t, domain.OutcomeRejectedAuth, out.Kind)
	})
}

func TestEngine_RollingExtension(t *testing.T) {
	e, clock, notifier := newTestEngine(t)

	// T: A bids, deadline stays at T+300
	out := e.SubmitBid("A", "ACME", dec("150"), "x")
	require.True(t, out.Accepted())
	assert.Equal(t, t0.Add(300*time.Second), out.NewDeadline)

	// T+280: B bids, late bid pushes the deadline to T+340
	clock.Advance(280 * time.Second)
	out = e.SubmitBid("B", "ACME", dec("200"), "x")
	require.True(t, out.Accepted())
	assert.Equal(t, t0.Add(340*time.Second), out.NewDeadline)

	clock.Advance(59 * time.Second)
	s, _ := e.Book().Get("ACME")
	assert.True(t, s.IsOpen(), "must stay open until T+340")

	clock.Advance(2 * time.Second)
	s, _ = e.Book().Get("ACME")
	assert.Equal(t, domain.StateClosed, s.State)

	var closes []string
	for _, n := range notifier.list() {
		if n.Kind == event.NoticeAuctionClosed && n.Symbol == "ACME" {
			closes = append(closes, n.Text())
		}
	}
	assert.Equal(t, []string{"ACME: auction closed. Winner = B at 200"}, closes)

	// Closed rejects
	out = e.SubmitBid("C", "ACME", dec("500"), "x")
	assert.Equal(t, domain.OutcomeRejectedClosed, out.Kind)
	s, _ = e.Book().Get("ACME")
	assert.True(t, s.CurrentBid.Equal(dec("200")))
	assert.Len(t, s.BidLog, 2)
}

func TestEngine_CloseWithoutBids(t *testing.T) {
	e, clock, notifier := newTestEngine(t)

	clock.Advance(InitialWindow)

	texts := make(map[string]string)
	for _, n := range notifier.list() {
		texts[n.Symbol] = n.Text()
	}
	assert.Equal(t, "ACME: auction closed. No bids received", texts["ACME"])
	assert.Equal(t, "BOLT: auction closed. No bids received", texts["BOLT"])
	assert.Equal(t, 0, e.timers.Pending())
}

func TestEngine_FireRechecksDeadline(t *testing.T) {
	e, clock, notifier := newTestEngine(t)

	// A fire that races with an extending bid sees the new deadline and re-arms.
	clock.Advance(299 * time.Second)
	require.True(t, e.SubmitBid("A", "ACME", dec("150"), "x").Accepted())
	e.closeIfDue("ACME")

	s, _ := e.Book().Get("ACME")
	assert.True(t, s.IsOpen())
	assert.Len(t, notifier.list(), 1)

	clock.Advance(60 * time.Second)
	s, _ = e.Book().Get("ACME")
	assert.Equal(t, domain.StateClosed, s.State)
}

func TestEngine_ClosedIsTerminal(t *testing.T) {
	e, clock, notifier := newTestEngine(t)

	clock.Advance(InitialWindow)
	before := len(notifier.list())

	e.closeIfDue("ACME")
	assert.Len(t, notifier.list(), before, "a second fire must not re-announce")
}

func TestEngine_ConcurrentBids(t *testing.T) {
	e, _, notifier := newTestEngine(t)

	const (
		bidders = 8
		rounds  = 50
	)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for g := 0; g < bidders; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			user := string(rune('A' + g))
			for i := 1; i <= rounds; i++ {
				amount := decimal.NewFromInt(int64(100 + i*bidders + g))
				if e.SubmitBid(user, "ACME", amount, "x").Accepted() {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}(g)
	}
	wg.Wait()

	s, _ := e.Book().Get("ACME")
	notices := notifier.list()

	require.Len(t, s.BidLog, accepted)
	require.Len(t, notices, accepted)
	for i := range notices {
		assert.True(t, notices[i].Amount.Equal(s.BidLog[i].Amount), "notice %d out of commit order", i)
		if i > 0 {
			assert.True(t, s.BidLog[i].Amount.GreaterThan(s.BidLog[i-1].Amount), "bid log must be strictly increasing")
		}
	}
	assert.True(t, s.CurrentBid.Equal(s.BidLog[len(s.BidLog)-1].Amount))
	assert.True(t, s.CurrentBid.Equal(decimal.NewFromInt(int64(100+rounds*bidders+bidders-1))))
}

func TestEngine_DeadlineAfterAcceptedBid(t *testing.T) {
	e, clock, _ := newTestEngine(t)

	for i := 1; i <= 10; i++ {
		clock.Advance(45 * time.Second)
		now := clock.Now()
		out := e.SubmitBid("A", "BOLT", decimal.NewFromInt(int64(20+i)), "y")
		require.True(t, out.Accepted(), "bid %d", i)
		assert.False(t, out.NewDeadline.Before(now.Add(ExtensionWindow)))
	}
}

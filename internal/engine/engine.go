package engine

import (
	"crypto/subtle"
	"log/slog"
	"time"

	"stock_auction/internal/domain"
	"stock_auction/internal/event"
	"stock_auction/internal/infra"

	"github.com/shopspring/decimal"
)

const (
	// InitialWindow is the time from auction open to the first scheduled close.
	InitialWindow = 300 * time.Second
	// ExtensionWindow is how far an accepted late bid pushes the deadline.
	ExtensionWindow = 60 * time.Second
)

// Notifier receives notices in commit order. Publish is called with the
// stock lock held and must not block.
type Notifier interface {
	Publish(n event.Notice)
}

// Windows configures the close-timer durations.
type Windows struct {
	Initial   time.Duration
	Extension time.Duration
}

// DefaultWindows returns the standard 300 s / 60 s windows.
func DefaultWindows() Windows {
	return Windows{Initial: InitialWindow, Extension: ExtensionWindow}
}

// Engine validates and commits bids and closes auctions when their
// deadline passes.
type Engine struct {
	book     *Book
	timers   *TimerService
	notifier Notifier
	clock    Clock
	windows  Windows
	metrics  *infra.Metrics
}

// NewEngine creates an engine over book. Call Start to open the auctions.
func NewEngine(book *Book, notifier Notifier, clock Clock, windows Windows) *Engine {
	e := &Engine{
		book:     book,
		notifier: notifier,
		clock:    clock,
		windows:  windows,
		metrics:  infra.GlobalMetrics,
	}
	e.timers = NewTimerService(clock, e.closeIfDue)
	return e
}

// Book returns the underlying stock book.
func (e *Engine) Book() *Book {
	return e.book
}

// Start opens every auction: the close deadline becomes now + initial window.
func (e *Engine) Start() {
	now := e.clock.Now()
	for _, sym := range e.book.Symbols() {
		_ = e.book.WithStock(sym, func(st *domain.Stock) error {
			if !st.IsOpen() {
				return nil
			}
			st.LastBidTime = now
			st.CloseDeadline = now.Add(e.windows.Initial)
			e.timers.Arm(sym, st.CloseDeadline)
			return nil
		})
	}
	slog.Info("Auctions opened",
		slog.Int("stocks", e.book.Len()),
		slog.Time("close_deadline", now.Add(e.windows.Initial)))
}

// Stop cancels all close-timers.
func (e *Engine) Stop() {
	e.timers.Stop()
}

// HasSymbol reports whether symbol is auctioned.
func (e *Engine) HasSymbol(symbol string) bool {
	return e.book.Has(symbol)
}

// SubmitBid validates and, if valid, commits a bid. Commit, timer re-arm
// and notice enqueue happen under the stock's lock, so notices leave in
// commit order.
func (e *Engine) SubmitBid(userID, symbol string, amount decimal.Decimal, securityCode string) domain.BidOutcome {
	start := time.Now()
	outcome := domain.BidOutcome{Kind: domain.OutcomeUnknownSymbol}

	_ = e.book.WithStock(symbol, func(st *domain.Stock) error {
		switch {
		case !st.IsOpen():
			outcome.Kind = domain.OutcomeRejectedClosed
			return nil
		case subtle.ConstantTimeCompare([]byte(securityCode), []byte(st.SecurityCode)) != 1:
			outcome.Kind = domain.OutcomeRejectedAuth
			return nil
		case amount.LessThanOrEqual(st.CurrentBid):
			outcome.Kind = domain.OutcomeRejectedLow
			return nil
		}

		now := e.clock.Now()
		st.CurrentBid = amount
		st.TopBidder = userID
		st.LastBidTime = now
		st.BidLog = append(st.BidLog, domain.BidRecord{Bidder: userID, Amount: amount, Time: now})

		// Late-bid extension
		if ext := now.Add(e.windows.Extension); ext.After(st.CloseDeadline) {
			st.CloseDeadline = ext
		}
		e.timers.Arm(symbol, st.CloseDeadline)
		e.notifier.Publish(event.NewBidAccepted(symbol, userID, amount, now))

		outcome = domain.BidOutcome{
			Kind:        domain.OutcomeAccepted,
			NewHighest:  amount,
			NewDeadline: st.CloseDeadline,
		}
		return nil
	})

	e.metrics.RecordBid(outcome.Kind, time.Since(start).Nanoseconds())
	if outcome.Accepted() {
		slog.Debug("Bid accepted",
			slog.String("symbol", symbol),
			slog.String("bidder", userID),
			slog.String("amount", amount.String()),
			slog.Time("close_deadline", outcome.NewDeadline))
	}
	return outcome
}

// closeIfDue handles a timer fire. The deadline is re-read under the lock:
// a bid committed after the timer was scheduled may have moved it.
func (e *Engine) closeIfDue(symbol string) {
	_ = e.book.WithStock(symbol, func(st *domain.Stock) error {
		if !st.IsOpen() {
			return nil
		}
		now := e.clock.Now()
		if now.Before(st.CloseDeadline) {
			e.timers.Arm(symbol, st.CloseDeadline)
			return nil
		}

		st.State = domain.StateClosed
		e.notifier.Publish(event.NewAuctionClosed(symbol, st.TopBidder, st.CurrentBid, now))
		e.metrics.RecordAuctionClosed()

		slog.Info("Auction closed",
			slog.String("symbol", symbol),
			slog.String("winner", st.TopBidder),
			slog.String("price", st.CurrentBid.String()),
			slog.Int("bids", len(st.BidLog)))
		return nil
	})
}

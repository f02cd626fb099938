package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NoticeKind identifies what a Notice announces.
type NoticeKind string

const (
	NoticeBidAccepted   NoticeKind = "BID"
	NoticeAuctionClosed NoticeKind = "CLOSE"
)

// Notice is one broadcast event produced by the auction engine.
// Seq is assigned by the broadcaster when the notice is enqueued.
type Notice struct {
	Seq    uint64
	Kind   NoticeKind
	Symbol string
	Bidder string          // top bidder; empty on a close without bids
	Amount decimal.Decimal // committed bid, or final price on close
	At     time.Time
}

// NewBidAccepted builds the notice for a committed bid.
func NewBidAccepted(symbol, bidder string, amount decimal.Decimal, at time.Time) Notice {
	return Notice{Kind: NoticeBidAccepted, Symbol: symbol, Bidder: bidder, Amount: amount, At: at}
}

// NewAuctionClosed builds the notice for a stock reaching its close deadline.
func NewAuctionClosed(symbol, winner string, price decimal.Decimal, at time.Time) Notice {
	return Notice{Kind: NoticeAuctionClosed, Symbol: symbol, Bidder: winner, Amount: price, At: at}
}

// Text renders the notice as a protocol line (without terminator).
func (n Notice) Text() string {
	switch n.Kind {
	case NoticeBidAccepted:
		return fmt.Sprintf("%s: new highest bid %s by %s", n.Symbol, n.Amount.String(), n.Bidder)
	case NoticeAuctionClosed:
		if n.Bidder == "" {
			return n.Symbol + ": auction closed. No bids received"
		}
		return fmt.Sprintf("%s: auction closed. Winner = %s at %s", n.Symbol, n.Bidder, n.Amount.String())
	default:
		return n.Symbol + ": " + string(n.Kind)
	}
}

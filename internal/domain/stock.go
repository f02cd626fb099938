package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionState is the lifecycle state of a Stock. CLOSED is terminal.
type AuctionState string

const (
	StateOpen   AuctionState = "OPEN"
	StateClosed AuctionState = "CLOSED"
)

// BidRecord is one accepted bid.
type BidRecord struct {
	Bidder string          `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
	Time   time.Time       `json:"time"`
}

// Stock is the auction record for one symbol.
// Symbol, BasePrice, SecurityCode and ProfitHint never change after loading.
type Stock struct {
	Symbol       string
	BasePrice    decimal.Decimal
	SecurityCode string
	ProfitHint   decimal.Decimal

	CurrentBid    decimal.Decimal
	TopBidder     string
	LastBidTime   time.Time
	CloseDeadline time.Time
	State         AuctionState
	BidLog        []BidRecord
}

// NewStock creates an OPEN stock whose current bid equals its base price.
func NewStock(symbol string, basePrice decimal.Decimal, securityCode string, profitHint decimal.Decimal) Stock {
	return Stock{
		Symbol:       symbol,
		BasePrice:    basePrice,
		SecurityCode: securityCode,
		ProfitHint:   profitHint,
		CurrentBid:   basePrice,
		State:        StateOpen,
	}
}

// IsOpen reports whether the stock still accepts bids.
func (s *Stock) IsOpen() bool {
	return s.State == StateOpen
}

// Clone returns a copy that shares no mutable state with s.
func (s *Stock) Clone() Stock {
	c := *s
	if s.BidLog != nil {
		c.BidLog = make([]BidRecord, len(s.BidLog))
		copy(c.BidLog, s.BidLog)
	}
	return c
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutcomeKind tags a BidOutcome.
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota + 1
	OutcomeRejectedLow
	OutcomeRejectedAuth
	OutcomeRejectedClosed
	OutcomeUnknownSymbol
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "ACCEPTED"
	case OutcomeRejectedLow:
		return "REJECTED_LOW"
	case OutcomeRejectedAuth:
		return "REJECTED_AUTH"
	case OutcomeRejectedClosed:
		return "REJECTED_CLOSED"
	case OutcomeUnknownSymbol:
		return "UNKNOWN_SYMBOL"
	default:
		return "UNKNOWN"
	}
}

// BidOutcome is the result of a bid attempt.
// NewHighest and NewDeadline are only set when Kind is OutcomeAccepted.
type BidOutcome struct {
	Kind        OutcomeKind
	NewHighest  decimal.Decimal
	NewDeadline time.Time
}

// Accepted reports whether the bid was committed.
func (o BidOutcome) Accepted() bool {
	return o.Kind == OutcomeAccepted
}

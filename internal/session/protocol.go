package session

import (
	"bufio"
	"io"
	"strings"
	"time"

	"stock_auction/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	promptID     = "Enter ID: "
	promptSymbol = "Enter stock name: "

	msgTooLow  = "Your offer is not greater than the current highest offer."
	msgBadCode = "Invalid security code"

	cmdQuit = "quit"
)

// Bidder is the engine surface the dialog drives.
type Bidder interface {
	HasSymbol(symbol string) bool
	SubmitBid(userID, symbol string, amount decimal.Decimal, securityCode string) domain.BidOutcome
}

// LineSource is the read side of a connection.
type LineSource interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Protocol drives the id → symbol → amount → code dialog of one session.
type Protocol struct {
	bidder       Bidder
	idleTimeout  time.Duration
	maxLineBytes int
}

// NewProtocol creates the dialog driver. idleTimeout of zero disables the
// read deadline.
func NewProtocol(bidder Bidder, idleTimeout time.Duration, maxLineBytes int) *Protocol {
	if maxLineBytes <= 0 {
		maxLineBytes = 4096
	}
	return &Protocol{bidder: bidder, idleTimeout: idleTimeout, maxLineBytes: maxLineBytes}
}

func promptAmount(symbol string) string { return "Enter bid amount " + symbol + ": " }
func promptCode(symbol string) string   { return "Enter security code " + symbol + ": " }
func notFound(symbol string) string     { return symbol + " not found" }

// OutcomeMessage renders a bid outcome for the submitting session.
func OutcomeMessage(symbol string, o domain.BidOutcome) string {
	switch o.Kind {
	case domain.OutcomeAccepted:
		return "Bid placed successfully. Current highest bid: " + o.NewHighest.String()
	case domain.OutcomeRejectedLow:
		return msgTooLow
	case domain.OutcomeRejectedAuth:
		return msgBadCode
	case domain.OutcomeRejectedClosed:
		return "Auction closed for " + symbol
	default:
		return notFound(symbol)
	}
}

// Serve runs the dialog until the peer quits, misbehaves or the transport
// fails. It returns nil on "quit", ErrEmptyUserID on an empty login, and a
// NetworkError for read failures, idle timeout and peer close.
func (p *Protocol) Serve(s *Session, src LineSource) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 512), p.maxLineBytes)

	var (
		symbol string
		amount decimal.Decimal
	)

	s.setPhase(PhaseAwaitID)
	if err := s.Send(promptID); err != nil {
		return err
	}

	for {
		p.armDeadline(s.Phase(), src)
		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			return domain.NewFatalNetworkError("read", err)
		}
		line := strings.TrimSpace(scanner.Text())

		var replies []string
		switch s.Phase() {
		case PhaseAwaitID:
			if line == "" {
				return domain.ErrEmptyUserID
			}
			s.setUserID(line)
			s.setPhase(PhaseAwaitSymbol)
			replies = []string{promptSymbol}

		case PhaseAwaitSymbol:
			if line == cmdQuit {
				return nil
			}
			if !p.bidder.HasSymbol(line) {
				replies = []string{notFound(line), promptSymbol}
				break
			}
			symbol = line
			s.setPhase(PhaseAwaitAmount)
			replies = []string{promptAmount(symbol)}

		case PhaseAwaitAmount:
			a, err := decimal.NewFromString(line)
			if err != nil {
				s.setPhase(PhaseAwaitSymbol)
				replies = []string{domain.ErrInvalidAmount.Error(), promptSymbol}
				break
			}
			amount = a
			s.setPhase(PhaseAwaitCode)
			replies = []string{promptCode(symbol)}

		case PhaseAwaitCode:
			outcome := p.bidder.SubmitBid(s.UserID(), symbol, amount, line)
			s.setPhase(PhaseAwaitSymbol)
			replies = []string{OutcomeMessage(symbol, outcome), promptSymbol}

		default:
			return domain.ErrSessionClosed
		}

		for _, r := range replies {
			if err := s.Send(r); err != nil {
				return err
			}
		}
	}
}

// armDeadline applies the idle timeout once the peer has logged in.
func (p *Protocol) armDeadline(phase Phase, src LineSource) {
	if p.idleTimeout <= 0 || phase == PhaseAwaitID {
		_ = src.SetReadDeadline(time.Time{})
		return
	}
	_ = src.SetReadDeadline(time.Now().Add(p.idleTimeout))
}

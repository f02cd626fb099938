package domain

import (
	"errors"
	"strconv"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport failure on a session or listener.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "accept", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether the caller may try again (accept loop only)
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CatalogueError points at the catalogue record that failed to load.
type CatalogueError struct {
	Line int
	Err  error
}

func (e *CatalogueError) Error() string {
	return "catalogue line " + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

func (e *CatalogueError) Unwrap() error {
	return e.Err
}

var (
	// ErrUnknownSymbol is returned when a symbol is not part of the catalogue.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrDuplicateSymbol is returned by the catalogue loader for repeated symbols.
	ErrDuplicateSymbol = errors.New("duplicate symbol")

	// ErrEmptyUserID is returned when a client answers the id prompt with nothing.
	ErrEmptyUserID = errors.New("empty user id")

	// ErrInvalidAmount is returned when a bid amount cannot be parsed.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOutboxFull marks a session evicted for not keeping up with its frames.
	ErrOutboxFull = errors.New("session outbox full")

	// ErrSessionClosed is returned when sending to a session that is gone.
	ErrSessionClosed = errors.New("session closed")

	// ErrServerClosed is returned by Serve after a shutdown.
	ErrServerClosed = errors.New("auction server closed")
)

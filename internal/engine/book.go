package engine

import (
	"fmt"
	"sort"
	"sync"

	"stock_auction/internal/domain"
)

type bookEntry struct {
	mu    sync.Mutex
	stock domain.Stock
}

// Book maps symbols to their auction records.
// The map is fixed at construction and read without locking; every stock
// carries its own mutex so bids on different symbols never contend.
type Book struct {
	entries map[string]*bookEntry
	symbols []string
}

// NewBook builds a book from the loaded catalogue.
func NewBook(stocks []domain.Stock) (*Book, error) {
	b := &Book{
		entries: make(map[string]*bookEntry, len(stocks)),
		symbols: make([]string, 0, len(stocks)),
	}
	for _, s := range stocks {
		if _, dup := b.entries[s.Symbol]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateSymbol, s.Symbol)
		}
		b.entries[s.Symbol] = &bookEntry{stock: s.Clone()}
		b.symbols = append(b.symbols, s.Symbol)
	}
	sort.Strings(b.symbols)
	return b, nil
}

// Get returns a copy of the stock, or false when the symbol is unknown.
func (b *Book) Get(symbol string) (domain.Stock, bool) {
	e, ok := b.entries[symbol]
	if !ok {
		return domain.Stock{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stock.Clone(), true
}

// Has reports whether symbol is in the catalogue.
func (b *Book) Has(symbol string) bool {
	_, ok := b.entries[symbol]
	return ok
}

// WithStock runs fn with exclusive access to the stock.
// fn must only do O(1) work: no I/O while the lock is held.
func (b *Book) WithStock(symbol string, fn func(*domain.Stock) error) error {
	e, ok := b.entries[symbol]
	if !ok {
		return domain.ErrUnknownSymbol
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.stock)
}

// Symbols returns the catalogue symbols in sorted order.
func (b *Book) Symbols() []string {
	out := make([]string, len(b.symbols))
	copy(out, b.symbols)
	return out
}

// Snapshot returns copies of every stock, sorted by symbol.
// Each stock is copied under its own lock; there is no cross-stock atomicity.
func (b *Book) Snapshot() []domain.Stock {
	out := make([]domain.Stock, 0, len(b.symbols))
	for _, sym := range b.symbols {
		s, _ := b.Get(sym)
		out = append(out, s)
	}
	return out
}

// Len returns the number of stocks.
func (b *Book) Len() int {
	return len(b.symbols)
}

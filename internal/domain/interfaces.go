package domain

// StockReader exposes read-only snapshots of the auction state.
type StockReader interface {
	Get(symbol string) (Stock, bool)
	Snapshot() []Stock
}

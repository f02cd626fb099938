package domain

import (
	"time"
)

// JournalEntry is one audited auction notice as stored by the bid journal.
type JournalEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Seq       uint64    `gorm:"index" json:"seq"`
	Kind      string    `json:"kind"` // "BID", "CLOSE"
	Symbol    string    `gorm:"index" json:"symbol"`
	Bidder    string    `json:"bidder"`
	Amount    string    `json:"amount"` // decimal string, exact
	At        time.Time `json:"at"`
	CreatedAt time.Time `json:"created_at"`
}

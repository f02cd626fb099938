package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"stock_auction/internal/domain"
	"stock_auction/internal/event"
	"stock_auction/internal/infra"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxBatch = 64

// Journal persists every broadcast notice to SQLite.
// Consume never blocks the broadcaster: when the queue is full the notice is
// dropped and counted.
type Journal struct {
	db    *gorm.DB
	queue chan event.Notice
}

// NewJournal opens (or creates) the journal database at path.
func NewJournal(path string, queueSize int) (*Journal, error) {
	if queueSize <= 0 {
		queueSize = 1024
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	if err := db.AutoMigrate(&domain.JournalEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &Journal{db: db, queue: make(chan event.Notice, queueSize)}, nil
}

// Consume enqueues n for writing.
func (j *Journal) Consume(n event.Notice) {
	select {
	case j.queue <- n:
	default:
		infra.GlobalMetrics.RecordJournalDrop()
		slog.Warn("Journal queue full, dropping notice", slog.String("symbol", n.Symbol), slog.Uint64("seq", n.Seq))
	}
}

// Run writes queued notices until ctx is cancelled, then flushes what is left.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			j.flush()
			return nil
		case n := <-j.queue:
			batch := []domain.JournalEntry{toEntry(n)}
		fill:
			for len(batch) < maxBatch {
				select {
				case n := <-j.queue:
					batch = append(batch, toEntry(n))
				default:
					break fill
				}
			}
			j.write(batch)
		}
	}
}

func (j *Journal) flush() {
	var batch []domain.JournalEntry
	for {
		select {
		case n := <-j.queue:
			batch = append(batch, toEntry(n))
		default:
			if len(batch) > 0 {
				j.write(batch)
			}
			return
		}
	}
}

func (j *Journal) write(batch []domain.JournalEntry) {
	if err := j.db.CreateInBatches(batch, maxBatch).Error; err != nil {
		slog.Error("Journal write failed", slog.Int("count", len(batch)), slog.Any("error", err))
	}
}

// Entries returns the journal for symbol in broadcast order.
func (j *Journal) Entries(symbol string) ([]domain.JournalEntry, error) {
	var entries []domain.JournalEntry
	err := j.db.Where("symbol = ?", symbol).Order("seq asc").Find(&entries).Error
	return entries, err
}

// Close releases the database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toEntry(n event.Notice) domain.JournalEntry {
	return domain.JournalEntry{
		Seq:    n.Seq,
		Kind:   string(n.Kind),
		Symbol: n.Symbol,
		Bidder: n.Bidder,
		Amount: n.Amount.String(),
		At:     n.At,
	}
}

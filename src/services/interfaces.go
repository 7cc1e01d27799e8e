package services

import (
	"errors"
	"io"

	"github.com/username/tradejournal/backend/src/models"
)

// Common service errors.
var (
	ErrParsingFailed     = errors.New("csv parsing failed")
	ErrUnknownFormat     = errors.New("unrecognized file format")
	ErrPersistenceFailed = errors.New("trade persistence failed")
	ErrTradeNotFound     = errors.New("trade not found")
)

// ImportRecord describes one import run for the history table.
type ImportRecord struct {
	Filename string
	FileSize int64
	Format   string
}

// TradeStore is the persistence collaborator of the import engine. SaveBatch
// must be atomic: either every non-duplicate trade of the batch is committed
// together with the history row, or nothing is.
type TradeStore interface {
	// SaveBatch persists the candidate trades for the user, skipping any
	// trade for which an identical (ticker, entry_date, exit_date,
	// position_size) row already exists for that user. Imported trades are
	// labeled with the given strategy name, created on first use. Returns
	// the imported and skipped counts.
	SaveBatch(userID int64, trades []models.Trade, record ImportRecord, strategyLabel string) (imported int, skipped int, err error)
}

// ImportService is the entry point of the CSV import pipeline:
// parse -> match -> duplicate-suppressed persist.
type ImportService interface {
	ProcessImport(fileReader io.Reader, userID int64, filename string, filesize int64) (*models.ImportResult, error)
}

// StatsService computes the aggregate views of a user's journal.
type StatsService interface {
	GetStats(userID int64) (*models.StatsSummary, error)
	GetCalendar(userID int64, year int, month int) ([]models.CalendarDay, error)
	InvalidateUserCache(userID int64)
}

package services

import (
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
	_ "modernc.org/sqlite"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// newTestDB opens an in-memory database and applies the schema migration.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../db/migrations/000001_init_schema.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO users (id, username, email, password) VALUES (1, 'trader', 'trader@example.com', 'x')`)
	require.NoError(t, err)

	return db
}

func closedTrade(ticker string, entry, exit time.Time, entryPrice, exitPrice, size, pnl float64) models.Trade {
	return models.Trade{
		Ticker:       ticker,
		Direction:    models.DirectionLong,
		EntryDate:    entry,
		ExitDate:     &exit,
		EntryPrice:   entryPrice,
		ExitPrice:    &exitPrice,
		PositionSize: size,
		PnL:          pnl,
	}
}

func TestSaveBatchImportsAndLabels(t *testing.T) {
	db := newTestDB(t)
	store := NewTradeStore(db)

	entry := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	exit := entry.Add(30 * time.Minute)
	trades := []models.Trade{
		closedTrade("MNQU5", entry, exit, 20000, 20010, 1, 20),
		closedTrade("ESU5", entry, exit, 5000, 5010, 2, 1000),
	}

	imported, skipped, err := store.SaveBatch(1, trades,
		ImportRecord{Filename: "orders.csv", FileSize: 123, Format: "orders"}, ImportStrategyLabel)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)

	// All imported trades carry the import strategy label.
	var labeled int
	err = db.QueryRow(`
		SELECT COUNT(*) FROM trades t
		JOIN strategies s ON s.id = t.strategy_id
		WHERE t.user_id = 1 AND s.name = ?`, ImportStrategyLabel).Scan(&labeled)
	require.NoError(t, err)
	assert.Equal(t, 2, labeled)

	// One history row for the run.
	var histImported, histSkipped int
	err = db.QueryRow(`SELECT imported_count, skipped_count FROM imports_history WHERE user_id = 1`).
		Scan(&histImported, &histSkipped)
	require.NoError(t, err)
	assert.Equal(t, 2, histImported)
	assert.Equal(t, 0, histSkipped)
}

func TestSaveBatchReimportSkipsEverything(t *testing.T) {
	db := newTestDB(t)
	store := NewTradeStore(db)

	entry := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	exit := entry.Add(time.Hour)
	trades := []models.Trade{
		closedTrade("MNQU5", entry, exit, 20000, 20010, 1, 20),
		closedTrade("MNQU5", entry.Add(2*time.Hour), exit.Add(2*time.Hour), 20020, 20030, 1, 20),
	}
	record := ImportRecord{Filename: "orders.csv", FileSize: 123, Format: "orders"}

	imported, skipped, err := store.SaveBatch(1, trades, record, ImportStrategyLabel)
	require.NoError(t, err)
	require.Equal(t, 2, imported)
	require.Equal(t, 0, skipped)

	// The same file again: every trade collapses onto the existing rows.
	imported, skipped, err = store.SaveBatch(1, trades, record, ImportStrategyLabel)
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 2, skipped)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trades WHERE user_id = 1`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSaveBatchReimportSkipsOpenTrades(t *testing.T) {
	db := newTestDB(t)
	store := NewTradeStore(db)

	// A still-open trade from a trades-format file: no exit leg at all.
	open := models.Trade{
		Ticker:       "MNQU5",
		Direction:    models.DirectionLong,
		EntryDate:    time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC),
		EntryPrice:   20000,
		PositionSize: 2,
	}
	record := ImportRecord{Filename: "trades.csv", FileSize: 64, Format: "trades"}

	imported, skipped, err := store.SaveBatch(1, []models.Trade{open}, record, ImportStrategyLabel)
	require.NoError(t, err)
	require.Equal(t, 1, imported)
	require.Equal(t, 0, skipped)

	// The NULL exit date must not defeat the dedup key on re-import.
	imported, skipped, err = store.SaveBatch(1, []models.Trade{open}, record, ImportStrategyLabel)
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 1, skipped)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trades WHERE user_id = 1`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSaveBatchOpenTradeDoesNotCollideWithClosed(t *testing.T) {
	db := newTestDB(t)
	store := NewTradeStore(db)

	entry := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	exit := entry.Add(time.Hour)
	record := ImportRecord{Filename: "trades.csv", Format: "trades"}

	closed := closedTrade("MNQU5", entry, exit, 20000, 20010, 2, 40)
	open := models.Trade{
		Ticker:       "MNQU5",
		Direction:    models.DirectionLong,
		EntryDate:    entry,
		EntryPrice:   20000,
		PositionSize: 2,
	}

	imported, skipped, err := store.SaveBatch(1, []models.Trade{closed, open}, record, ImportStrategyLabel)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)
}

func TestSaveBatchPartialOverlap(t *testing.T) {
	db := newTestDB(t)
	store := NewTradeStore(db)

	entry := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	exit := entry.Add(time.Hour)
	first := []models.Trade{closedTrade("MNQU5", entry, exit, 20000, 20010, 1, 20)}

	_, _, err := store.SaveBatch(1, first, ImportRecord{Filename: "a.csv", Format: "orders"}, ImportStrategyLabel)
	require.NoError(t, err)

	// Overlapping window: one known trade, one new.
	second := []models.Trade{
		closedTrade("MNQU5", entry, exit, 20000, 20010, 1, 20),
		closedTrade("MNQU5", entry.Add(3*time.Hour), exit.Add(3*time.Hour), 20050, 20060, 1, 20),
	}
	imported, skipped, err := store.SaveBatch(1, second, ImportRecord{Filename: "b.csv", Format: "orders"}, ImportStrategyLabel)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)
}

func TestSaveBatchDedupIsPerUser(t *testing.T) {
	db := newTestDB(t)
	store := NewTradeStore(db)

	_, err := db.Exec(`INSERT INTO users (id, username, email, password) VALUES (2, 'other', 'other@example.com', 'x')`)
	require.NoError(t, err)

	entry := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	exit := entry.Add(time.Hour)
	trades := []models.Trade{closedTrade("MNQU5", entry, exit, 20000, 20010, 1, 20)}

	imported, _, err := store.SaveBatch(1, trades, ImportRecord{Filename: "a.csv", Format: "orders"}, ImportStrategyLabel)
	require.NoError(t, err)
	require.Equal(t, 1, imported)

	// The identical trade belongs to a different owner: not a duplicate.
	imported, skipped, err := store.SaveBatch(2, trades, ImportRecord{Filename: "a.csv", Format: "orders"}, ImportStrategyLabel)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 0, skipped)
}

func TestSaveBatchReusesStrategyAcrossRuns(t *testing.T) {
	db := newTestDB(t)
	store := NewTradeStore(db)

	entry := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	exit := entry.Add(time.Hour)

	_, _, err := store.SaveBatch(1, []models.Trade{closedTrade("MNQU5", entry, exit, 1, 2, 1, 2)},
		ImportRecord{Filename: "a.csv", Format: "orders"}, ImportStrategyLabel)
	require.NoError(t, err)
	_, _, err = store.SaveBatch(1, []models.Trade{closedTrade("ESU5", entry, exit, 1, 2, 1, 50)},
		ImportRecord{Filename: "b.csv", Format: "orders"}, ImportStrategyLabel)
	require.NoError(t, err)

	var strategies int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM strategies WHERE user_id = 1`).Scan(&strategies))
	assert.Equal(t, 1, strategies)
}

package services

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
)

// SQLTimeLayout is the canonical storage format for trade timestamps. Using a
// single second-precision layout keeps the duplicate-suppression index exact:
// two imports of the same fill produce byte-identical date strings.
const SQLTimeLayout = "2006-01-02 15:04:05"

// sqliteTradeStore persists trades through database/sql. The whole batch of
// one import runs inside a single transaction; a failure rolls everything
// back so a broken import commits nothing.
type sqliteTradeStore struct {
	db *sql.DB
}

func NewTradeStore(db *sql.DB) TradeStore {
	return &sqliteTradeStore{db: db}
}

func (s *sqliteTradeStore) SaveBatch(userID int64, trades []models.Trade, record ImportRecord, strategyLabel string) (int, int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer tx.Rollback()

	var strategyID *int64
	if strategyLabel != "" {
		id, err := getOrCreateStrategy(tx, userID, strategyLabel)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to resolve import strategy label: %w", err)
		}
		strategyID = &id
	}

	stmt, err := tx.Prepare(`INSERT INTO trades
		(user_id, ticker, direction, entry_date, exit_date, entry_price, exit_price,
		position_size, pnl, strategy_id, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	imported, skipped := 0, 0
	for _, trade := range trades {
		var exitDate interface{}
		if trade.ExitDate != nil {
			exitDate = trade.ExitDate.Format(SQLTimeLayout)
		}
		var exitPrice interface{}
		if trade.ExitPrice != nil {
			exitPrice = *trade.ExitPrice
		}
		sid := strategyID
		if trade.StrategyID != nil {
			sid = trade.StrategyID
		}

		_, err := stmt.Exec(
			userID, trade.Ticker, trade.Direction,
			trade.EntryDate.Format(SQLTimeLayout), exitDate,
			trade.EntryPrice, exitPrice,
			trade.PositionSize, trade.PnL, sid, trade.Notes,
		)
		if err != nil {
			// The unique index on (user_id, ticker, entry_date,
			// COALESCE(exit_date, ''), position_size) is the insert-if-absent
			// primitive: a violation means this exact trade was already
			// imported. Open trades participate via the coalesced exit date.
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				logger.L.Debug("Skipping duplicate trade on import", "userID", userID, "ticker", trade.Ticker, "entryDate", trade.EntryDate)
				skipped++
				continue
			}
			return 0, 0, fmt.Errorf("%w: inserting trade (%s %s): %v", ErrPersistenceFailed, trade.Ticker, trade.Direction, err)
		}
		imported++
	}

	if imported > 0 || skipped > 0 {
		_, err = tx.Exec(`
			INSERT INTO imports_history (user_id, filename, file_size, format, imported_count, skipped_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			userID, record.Filename, record.FileSize, record.Format, imported, skipped,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to record import in history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("error committing import transaction: %w", err)
	}
	return imported, skipped, nil
}

// getOrCreateStrategy resolves a per-user strategy label inside the batch
// transaction, creating it on first use.
func getOrCreateStrategy(tx *sql.Tx, userID int64, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM strategies WHERE user_id = ? AND name = ?`, userID, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.Exec(`INSERT INTO strategies (user_id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

package models

import "time"

// Trade directions. The direction of a trade produced by the matcher is the
// direction of the position that was closed, not the side of the closing fill.
const (
	DirectionLong  = "Long"
	DirectionShort = "Short"
)

// Trade is a journal entry: either a manually logged trade or a closed
// round-trip produced by the CSV import reconciliation. Once persisted by an
// import run it is never mutated by later imports.
type Trade struct {
	ID           int64      `json:"id,omitempty"`
	UserID       int64      `json:"user_id"`
	Ticker       string     `json:"ticker"`
	Direction    string     `json:"direction"`
	EntryDate    time.Time  `json:"entry_date"`
	ExitDate     *time.Time `json:"exit_date,omitempty"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	PositionSize float64    `json:"position_size"`
	PnL          float64    `json:"pnl"`
	StrategyID   *int64     `json:"strategy_id,omitempty"`
	StrategyName string     `json:"strategy_name,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	ShareToken   string     `json:"share_token,omitempty"`
	Tags         []Tag      `json:"tags,omitempty"`
}

// IsClosed reports whether the trade has both legs.
func (t *Trade) IsClosed() bool {
	return t.ExitDate != nil && t.ExitPrice != nil
}

// Strategy is a per-user label grouping trades by setup or system.
type Strategy struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// Tag is a freeform per-user label attachable to any number of trades.
type Tag struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// ImportResult summarizes one CSV import run.
type ImportResult struct {
	Format        string         `json:"format"` // "orders" or "trades"
	ImportedCount int            `json:"imported_count"`
	SkippedCount  int            `json:"skipped_count"`
	OpenPositions []OpenPosition `json:"open_positions"`
}

// StatsSummary holds the aggregate numbers for the statistics page.
type StatsSummary struct {
	TotalTrades   int                `json:"total_trades"`
	WinningTrades int                `json:"winning_trades"`
	LosingTrades  int                `json:"losing_trades"`
	WinRate       float64            `json:"win_rate"` // percent, rounded to 2 places
	AvgPnL        float64            `json:"avg_pnl"`
	TotalPnL      float64            `json:"total_pnl"`
	Dates         []string           `json:"dates"`      // YYYY-MM-DD, one per trade in order
	Cumulative    []float64          `json:"cumulative"` // running PnL aligned with Dates
	PnLBySymbol   map[string]float64 `json:"pnl_by_symbol"`
}

// CalendarDay aggregates the closed trades of one calendar day.
type CalendarDay struct {
	Date       string  `json:"date"` // YYYY-MM-DD
	TradeCount int     `json:"trade_count"`
	PnL        float64 `json:"pnl"`
}

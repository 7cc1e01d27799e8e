// Package generic parses a plain trade-list CSV (already-matched round
// trips), the non-brokerage import path.
package generic

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/processors"
)

var dateLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type tradeRow struct {
	Symbol     string `csv:"Symbol"`
	Direction  string `csv:"Direction"`
	EntryDate  string `csv:"Entry Date"`
	EntryPrice string `csv:"Entry Price"`
	ExitDate   string `csv:"Exit Date"`
	ExitPrice  string `csv:"Exit Price"`
	Quantity   string `csv:"Quantity"`
	Notes      string `csv:"Notes"`
}

type Parser struct{}

func NewParser() *Parser { return &Parser{} }

// Parse converts a generic trade list into Trade records. Like the orders
// parser it is tolerant: bad rows are dropped, not fatal. Exit fields are
// optional so still-open trades can be imported; PnL is only computed for
// closed rows.
func (p *Parser) Parse(file io.Reader) ([]models.Trade, error) {
	var rows []tradeRow
	if err := gocsv.Unmarshal(file, &rows); err != nil {
		return nil, fmt.Errorf("generic parser: failed to read CSV: %w", err)
	}

	var trades []models.Trade
	for _, row := range rows {
		trade, ok := p.parseRow(row)
		if !ok {
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (p *Parser) parseRow(row tradeRow) (models.Trade, bool) {
	symbol := strings.TrimSpace(row.Symbol)
	direction := normalizeDirection(row.Direction)
	if symbol == "" || direction == "" {
		logger.L.Debug("Generic parser: dropping row with missing symbol or direction")
		return models.Trade{}, false
	}

	entryDate, ok := parseDate(row.EntryDate)
	if !ok {
		logger.L.Debug("Generic parser: dropping row with invalid entry date", "entryDate", row.EntryDate)
		return models.Trade{}, false
	}
	entryPrice, err := strconv.ParseFloat(strings.TrimSpace(row.EntryPrice), 64)
	if err != nil || entryPrice <= 0 {
		logger.L.Debug("Generic parser: dropping row with invalid entry price", "entryPrice", row.EntryPrice)
		return models.Trade{}, false
	}
	quantity, err := strconv.ParseFloat(strings.TrimSpace(row.Quantity), 64)
	if err != nil || quantity <= 0 {
		logger.L.Debug("Generic parser: dropping row with invalid quantity", "quantity", row.Quantity)
		return models.Trade{}, false
	}

	trade := models.Trade{
		Ticker:       symbol,
		Direction:    direction,
		EntryDate:    entryDate,
		EntryPrice:   entryPrice,
		PositionSize: quantity,
		Notes:        strings.TrimSpace(row.Notes),
	}

	// Exit leg is optional; both fields must be present to close the trade.
	if exitDate, ok := parseDate(row.ExitDate); ok {
		if exitPrice, err := strconv.ParseFloat(strings.TrimSpace(row.ExitPrice), 64); err == nil && exitPrice > 0 {
			trade.ExitDate = &exitDate
			trade.ExitPrice = &exitPrice
			pointValue := processors.PointValue(symbol)
			if direction == models.DirectionLong {
				trade.PnL = (exitPrice - entryPrice) * quantity * pointValue
			} else {
				trade.PnL = (entryPrice - exitPrice) * quantity * pointValue
			}
		}
	}
	return trade, true
}

func normalizeDirection(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return models.DirectionLong
	case "short", "sell":
		return models.DirectionShort
	default:
		return ""
	}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

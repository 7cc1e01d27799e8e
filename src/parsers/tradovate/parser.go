// Package tradovate parses the "Orders" CSV export of the Tradovate platform
// into per-symbol, chronologically ordered fill sequences.
package tradovate

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
)

const (
	statusFilled = "Filled"

	dateLayoutShort = "01/02/06"
	dateLayoutLong  = "01/02/2006"
	timeLayout      = "15:04:05"
)

// orderRow holds the raw string values of one CSV row. Column names are the
// exact headers of the export; unknown extra columns are ignored by gocsv.
type orderRow struct {
	Contract string `csv:"Contract"`
	Side     string `csv:"B/S"`
	Quantity string `csv:"filledQty"`
	Price    string `csv:"avgPrice"`
	Date     string `csv:"Date"`
	FillTime string `csv:"Fill Time"`
	OrderID  string `csv:"orderId"`
	Status   string `csv:"Status"`
}

// Parser implements the fill-parsing stage of the reconciliation engine.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

// Parse reads an Orders export and returns the admitted fills grouped by
// symbol, each group sorted ascending by timestamp (stable, so same-instant
// fills keep their file order). This is a tolerant parser: rows that are not
// filled orders, miss required fields, or fail numeric/date parsing are
// dropped with a debug log and never abort the import.
func (p *Parser) Parse(file io.Reader) (map[string][]models.Fill, error) {
	var rows []orderRow
	if err := gocsv.Unmarshal(file, &rows); err != nil {
		return nil, fmt.Errorf("tradovate parser: failed to read CSV: %w", err)
	}

	fillsBySymbol := make(map[string][]models.Fill)
	for _, row := range rows {
		fill, ok := p.parseRow(row)
		if !ok {
			continue
		}
		fillsBySymbol[fill.Symbol] = append(fillsBySymbol[fill.Symbol], fill)
	}

	for symbol := range fillsBySymbol {
		fills := fillsBySymbol[symbol]
		sort.SliceStable(fills, func(i, j int) bool {
			return fills[i].Timestamp.Before(fills[j].Timestamp)
		})
	}
	return fillsBySymbol, nil
}

// parseRow normalizes one raw row into a Fill. The second return value is
// false when the row must be dropped.
func (p *Parser) parseRow(row orderRow) (models.Fill, bool) {
	if strings.TrimSpace(row.Status) != statusFilled {
		return models.Fill{}, false
	}

	symbol := strings.TrimSpace(row.Contract)
	side := strings.TrimSpace(row.Side)
	quantityStr := strings.TrimSpace(row.Quantity)
	priceStr := strings.TrimSpace(row.Price)
	dateStr := strings.TrimSpace(row.Date)

	if symbol == "" || side == "" || quantityStr == "" || priceStr == "" || dateStr == "" {
		logger.L.Debug("Tradovate parser: dropping row with missing required field", "orderID", row.OrderID)
		return models.Fill{}, false
	}

	if side != string(models.SideBuy) && side != string(models.SideSell) {
		logger.L.Debug("Tradovate parser: dropping row with unrecognized side", "side", side, "orderID", row.OrderID)
		return models.Fill{}, false
	}

	quantity, err := strconv.ParseFloat(quantityStr, 64)
	if err != nil || quantity <= 0 {
		logger.L.Debug("Tradovate parser: dropping row with invalid quantity", "quantity", quantityStr, "orderID", row.OrderID)
		return models.Fill{}, false
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil || price <= 0 {
		logger.L.Debug("Tradovate parser: dropping row with invalid price", "price", priceStr, "orderID", row.OrderID)
		return models.Fill{}, false
	}

	timestamp, ok := parseFillTimestamp(dateStr, strings.TrimSpace(row.FillTime))
	if !ok {
		logger.L.Debug("Tradovate parser: dropping row with invalid date", "date", dateStr, "orderID", row.OrderID)
		return models.Fill{}, false
	}

	return models.Fill{
		Symbol:    symbol,
		Side:      models.FillSide(side),
		Quantity:  quantity,
		Price:     price,
		Timestamp: timestamp,
		OrderID:   strings.TrimSpace(row.OrderID),
	}, true
}

// parseFillTimestamp parses the calendar date and merges the time-of-day
// component of the fill-time field onto it. The fill time may carry its own
// date prefix ("07/14/2025 09:31:05") or be a bare clock time. An
// unparseable fill time is non-fatal: the fill keeps midnight on the parsed
// date rather than being dropped.
func parseFillTimestamp(dateStr, fillTime string) (time.Time, bool) {
	date, err := time.Parse(dateLayoutShort, dateStr)
	if err != nil {
		date, err = time.Parse(dateLayoutLong, dateStr)
		if err != nil {
			return time.Time{}, false
		}
	}

	if fillTime == "" {
		return date, true
	}

	timePart := fillTime
	if idx := strings.LastIndex(fillTime, " "); idx != -1 {
		timePart = fillTime[idx+1:]
	}
	clock, err := time.Parse(timeLayout, timePart)
	if err != nil {
		return date, true
	}

	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, date.Location()), true
}

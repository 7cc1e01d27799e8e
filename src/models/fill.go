package models

import "time"

// FillSide is the side indicator of a single executed order fill.
type FillSide string

const (
	SideBuy  FillSide = "Buy"
	SideSell FillSide = "Sell"
)

// Fill is one executed quantity at one price and time, the atomic input unit
// of the reconciliation engine. Fills are produced by the order-export parser
// and consumed by the FIFO matcher; they are never persisted.
type Fill struct {
	Symbol    string    `json:"symbol"`
	Side      FillSide  `json:"side"`
	Quantity  float64   `json:"quantity"` // always > 0 once past the parser
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	OrderID   string    `json:"order_id"` // audit only, never used for matching
}

// OpenPosition is the residual inventory left for a symbol after all fills
// have been replayed. It is reported back to the caller for audit but is not
// persisted as a trade.
type OpenPosition struct {
	Symbol    string    `json:"symbol"`
	Direction string    `json:"direction"` // "Long" or "Short"
	Quantity  float64   `json:"quantity"`
	AvgPrice  float64   `json:"avg_price"`
	OldestLot time.Time `json:"oldest_lot"`
}

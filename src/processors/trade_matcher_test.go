package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradejournal/backend/src/models"
)

func ts(hour, min, sec int) time.Time {
	return time.Date(2025, 7, 14, hour, min, sec, 0, time.UTC)
}

func buy(symbol string, qty, price float64, at time.Time, orderID string) models.Fill {
	return models.Fill{Symbol: symbol, Side: models.SideBuy, Quantity: qty, Price: price, Timestamp: at, OrderID: orderID}
}

func sell(symbol string, qty, price float64, at time.Time, orderID string) models.Fill {
	return models.Fill{Symbol: symbol, Side: models.SideSell, Quantity: qty, Price: price, Timestamp: at, OrderID: orderID}
}

func TestMatchSymbolSimpleRoundTrip(t *testing.T) {
	m := NewTradeMatcher()

	trades, open := m.MatchSymbol("MNQ", []models.Fill{
		buy("MNQ", 1, 20000, ts(9, 30, 0), "1"),
		sell("MNQ", 1, 20010, ts(9, 45, 0), "2"),
	})

	require.Len(t, trades, 1)
	assert.Nil(t, open)

	trade := trades[0]
	assert.Equal(t, "MNQ", trade.Ticker)
	assert.Equal(t, models.DirectionLong, trade.Direction)
	assert.Equal(t, ts(9, 30, 0), trade.EntryDate)
	require.NotNil(t, trade.ExitDate)
	assert.Equal(t, ts(9, 45, 0), *trade.ExitDate)
	assert.Equal(t, 20000.0, trade.EntryPrice)
	require.NotNil(t, trade.ExitPrice)
	assert.Equal(t, 20010.0, *trade.ExitPrice)
	assert.Equal(t, 1.0, trade.PositionSize)
	// 10 points x 1 contract x $2/point for MNQ
	assert.InDelta(t, 20.0, trade.PnL, 1e-9)
}

func TestMatchSymbolShortRoundTrip(t *testing.T) {
	m := NewTradeMatcher()

	trades, open := m.MatchSymbol("ES", []models.Fill{
		sell("ES", 2, 5000, ts(10, 0, 0), "1"),
		buy("ES", 2, 4990, ts(10, 30, 0), "2"),
	})

	require.Len(t, trades, 1)
	assert.Nil(t, open)

	trade := trades[0]
	assert.Equal(t, models.DirectionShort, trade.Direction)
	// 10 points x 2 contracts x $50/point for ES
	assert.InDelta(t, 1000.0, trade.PnL, 1e-9)
}

func TestMatchSymbolMultiLotWeightedAverage(t *testing.T) {
	m := NewTradeMatcher()

	trades, open := m.MatchSymbol("MNQ", []models.Fill{
		buy("MNQ", 1, 100, ts(9, 0, 0), "1"),
		buy("MNQ", 1, 110, ts(9, 5, 0), "2"),
		sell("MNQ", 2, 120, ts(9, 10, 0), "3"),
	})

	require.Len(t, trades, 1)
	assert.Nil(t, open)

	trade := trades[0]
	// One trade for the whole closing fill, weighted-average entry across
	// the consumed lots, entry time from the oldest lot.
	assert.Equal(t, 2.0, trade.PositionSize)
	assert.InDelta(t, 105.0, trade.EntryPrice, 1e-9)
	assert.Equal(t, ts(9, 0, 0), trade.EntryDate)
	assert.InDelta(t, (120.0-105.0)*2*2, trade.PnL, 1e-9)
}

func TestMatchSymbolPartialClose(t *testing.T) {
	m := NewTradeMatcher()

	trades, open := m.MatchSymbol("MNQ", []models.Fill{
		buy("MNQ", 3, 100, ts(9, 0, 0), "1"),
		sell("MNQ", 1, 105, ts(9, 30, 0), "2"),
	})

	require.Len(t, trades, 1)
	assert.Equal(t, 1.0, trades[0].PositionSize)

	require.NotNil(t, open)
	assert.Equal(t, models.DirectionLong, open.Direction)
	assert.Equal(t, 2.0, open.Quantity)
	assert.InDelta(t, 100.0, open.AvgPrice, 1e-9)
	assert.Equal(t, ts(9, 0, 0), open.OldestLot)
}

func TestMatchSymbolPartialLotConsumption(t *testing.T) {
	m := NewTradeMatcher()

	// The second close consumes the tail of the first lot plus the second
	// lot; FIFO order must survive the partial consumption.
	trades, open := m.MatchSymbol("MNQ", []models.Fill{
		buy("MNQ", 2, 100, ts(9, 0, 0), "1"),
		buy("MNQ", 2, 110, ts(9, 5, 0), "2"),
		sell("MNQ", 1, 120, ts(9, 10, 0), "3"),
		sell("MNQ", 3, 130, ts(9, 15, 0), "4"),
	})

	require.Len(t, trades, 2)
	assert.Nil(t, open)

	first := trades[0]
	assert.Equal(t, 1.0, first.PositionSize)
	assert.InDelta(t, 100.0, first.EntryPrice, 1e-9)

	second := trades[1]
	assert.Equal(t, 3.0, second.PositionSize)
	// (1x100 + 2x110) / 3
	assert.InDelta(t, 320.0/3.0, second.EntryPrice, 1e-9)
	assert.Equal(t, ts(9, 0, 0), second.EntryDate)
}

func TestMatchSymbolPositionFlip(t *testing.T) {
	m := NewTradeMatcher()

	trades, open := m.MatchSymbol("MNQ", []models.Fill{
		buy("MNQ", 1, 100, ts(9, 0, 0), "1"),
		sell("MNQ", 3, 110, ts(9, 30, 0), "2"),
	})

	// A single oversized fill closes the long and opens a short. One trade
	// for the closed portion, the leftover priced at the flipping fill.
	require.Len(t, trades, 1)
	assert.Equal(t, models.DirectionLong, trades[0].Direction)
	assert.Equal(t, 1.0, trades[0].PositionSize)

	require.NotNil(t, open)
	assert.Equal(t, models.DirectionShort, open.Direction)
	assert.Equal(t, 2.0, open.Quantity)
	assert.InDelta(t, 110.0, open.AvgPrice, 1e-9)
	assert.Equal(t, ts(9, 30, 0), open.OldestLot)
}

func TestMatchSymbolUnknownTickerDefaultsToPointValueOne(t *testing.T) {
	m := NewTradeMatcher()

	trades, _ := m.MatchSymbol("XYZ", []models.Fill{
		buy("XYZ", 1, 50, ts(9, 0, 0), "1"),
		sell("XYZ", 1, 60, ts(9, 30, 0), "2"),
	})

	require.Len(t, trades, 1)
	assert.InDelta(t, 10.0, trades[0].PnL, 1e-9)
}

func TestMatchSymbolEmptyInput(t *testing.T) {
	m := NewTradeMatcher()

	trades, open := m.MatchSymbol("MNQ", nil)
	assert.Empty(t, trades)
	assert.Nil(t, open)
}

func TestMatchSymbolOpenOnly(t *testing.T) {
	m := NewTradeMatcher()

	trades, open := m.MatchSymbol("CL", []models.Fill{
		buy("CL", 2, 70, ts(9, 0, 0), "1"),
	})

	assert.Empty(t, trades)
	require.NotNil(t, open)
	assert.Equal(t, "CL", open.Symbol)
	assert.Equal(t, 2.0, open.Quantity)
}

func TestMatchSymbolQuantityConservation(t *testing.T) {
	m := NewTradeMatcher()

	fills := []models.Fill{
		buy("MNQ", 3, 100, ts(9, 0, 0), "1"),
		sell("MNQ", 1, 101, ts(9, 1, 0), "2"),
		buy("MNQ", 2, 102, ts(9, 2, 0), "3"),
		sell("MNQ", 3, 103, ts(9, 3, 0), "4"),
	}
	trades, open := m.MatchSymbol("MNQ", fills)

	var closedQty float64
	for _, trade := range trades {
		closedQty += trade.PositionSize
	}
	openQty := 0.0
	if open != nil {
		openQty = open.Quantity
	}
	// 5 bought, 4 sold: 4 closed, 1 still open.
	assert.InDelta(t, 4.0, closedQty, 1e-9)
	assert.InDelta(t, 1.0, openQty, 1e-9)
}

func TestMatchProcessesSymbolsIndependently(t *testing.T) {
	m := NewTradeMatcher()

	trades, open := m.Match(map[string][]models.Fill{
		"MNQ": {
			buy("MNQ", 1, 100, ts(9, 0, 0), "1"),
			sell("MNQ", 1, 110, ts(9, 30, 0), "2"),
		},
		"ES": {
			buy("ES", 1, 5000, ts(9, 0, 0), "3"),
		},
	})

	assert.Len(t, trades, 1)
	require.Len(t, open, 1)
	assert.Equal(t, "ES", open[0].Symbol)
}

func TestMatchSymbolPanicsOnBadInput(t *testing.T) {
	m := NewTradeMatcher()

	assert.Panics(t, func() {
		m.MatchSymbol("MNQ", []models.Fill{buy("MNQ", 0, 100, ts(9, 0, 0), "1")})
	})
	assert.Panics(t, func() {
		m.MatchSymbol("MNQ", []models.Fill{{Symbol: "MNQ", Side: "Hold", Quantity: 1, Price: 100, Timestamp: ts(9, 0, 0)}})
	})
}

package generic

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

const tradesHeader = "Symbol,Direction,Entry Date,Entry Price,Exit Date,Exit Price,Quantity,Notes\n"

func parseCSV(t *testing.T, body string) []models.Trade {
	t.Helper()
	trades, err := NewParser().Parse(strings.NewReader(tradesHeader + body))
	require.NoError(t, err)
	return trades
}

func TestParseClosedTrade(t *testing.T) {
	trades := parseCSV(t, "MNQ,Long,2025-07-14T09:30,20000,2025-07-14T10:15,20010,2,breakout entry\n")

	require.Len(t, trades, 1)
	trade := trades[0]
	assert.Equal(t, "MNQ", trade.Ticker)
	assert.Equal(t, models.DirectionLong, trade.Direction)
	assert.Equal(t, time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC), trade.EntryDate)
	require.NotNil(t, trade.ExitDate)
	require.NotNil(t, trade.ExitPrice)
	assert.Equal(t, 20010.0, *trade.ExitPrice)
	assert.Equal(t, 2.0, trade.PositionSize)
	assert.Equal(t, "breakout entry", trade.Notes)
	// 10 points x 2 contracts x $2/point
	assert.InDelta(t, 40.0, trade.PnL, 1e-9)
}

func TestParseShortTradePnL(t *testing.T) {
	trades := parseCSV(t, "ES,Short,2025-07-14 09:30:00,5000,2025-07-14 10:00:00,4990,1,\n")

	require.Len(t, trades, 1)
	assert.Equal(t, models.DirectionShort, trades[0].Direction)
	assert.InDelta(t, 500.0, trades[0].PnL, 1e-9)
}

func TestParseOpenTrade(t *testing.T) {
	trades := parseCSV(t, "MNQ,Long,2025-07-14,20000,,,1,\n")

	require.Len(t, trades, 1)
	trade := trades[0]
	assert.Nil(t, trade.ExitDate)
	assert.Nil(t, trade.ExitPrice)
	assert.Zero(t, trade.PnL)
	assert.False(t, trade.IsClosed())
}

func TestParseDirectionAliases(t *testing.T) {
	trades := parseCSV(t, strings.Join([]string{
		"MNQ,buy,2025-07-14,100,,,1,",
		"MNQ,SELL,2025-07-14,100,,,1,",
		"MNQ,Short,2025-07-14,100,,,1,",
	}, "\n"))

	require.Len(t, trades, 3)
	assert.Equal(t, models.DirectionLong, trades[0].Direction)
	assert.Equal(t, models.DirectionShort, trades[1].Direction)
	assert.Equal(t, models.DirectionShort, trades[2].Direction)
}

func TestParseDropsBadRows(t *testing.T) {
	trades := parseCSV(t, strings.Join([]string{
		"MNQ,Long,2025-07-14,100,,,1,good",
		",Long,2025-07-14,100,,,1,missing symbol",
		"MNQ,Sideways,2025-07-14,100,,,1,bad direction",
		"MNQ,Long,14/07/2025,100,,,1,bad date",
		"MNQ,Long,2025-07-14,zero,,,1,bad price",
		"MNQ,Long,2025-07-14,100,,,-2,bad quantity",
	}, "\n"))

	require.Len(t, trades, 1)
	assert.Equal(t, "good", trades[0].Notes)
}

func TestParseIgnoresBrokenExitLeg(t *testing.T) {
	// Exit date without a usable exit price leaves the trade open.
	trades := parseCSV(t, "MNQ,Long,2025-07-14,100,2025-07-15,,1,\n")

	require.Len(t, trades, 1)
	assert.Nil(t, trades[0].ExitDate)
	assert.Nil(t, trades[0].ExitPrice)
}

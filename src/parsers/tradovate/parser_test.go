package tradovate

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

const ordersHeader = "orderId,Account,Contract,B/S,filledQty,avgPrice,Date,Fill Time,Status\n"

func parseCSV(t *testing.T, body string) map[string][]models.Fill {
	t.Helper()
	fills, err := NewParser().Parse(strings.NewReader(ordersHeader + body))
	require.NoError(t, err)
	return fills
}

func TestParseAdmitsOnlyFilledOrders(t *testing.T) {
	fills := parseCSV(t, strings.Join([]string{
		"1,ACC1,MNQU5,Buy,1,20000.25,07/14/25,09:30:00,Filled",
		"2,ACC1,MNQU5,Sell,1,20010.25,07/14/25,09:45:00,Canceled",
		"3,ACC1,MNQU5,Sell,1,20010.25,07/14/25,09:46:00,Working",
		"4,ACC1,MNQU5,Sell,1,20010.25,07/14/25,09:47:00,Rejected",
		"5,ACC1,MNQU5,Sell,1,20012.00,07/14/25,10:00:00, Filled ",
	}, "\n"))

	require.Len(t, fills["MNQU5"], 2)
	assert.Equal(t, models.SideBuy, fills["MNQU5"][0].Side)
	assert.Equal(t, models.SideSell, fills["MNQU5"][1].Side)
}

func TestParseDropsMalformedRows(t *testing.T) {
	fills := parseCSV(t, strings.Join([]string{
		"1,ACC1,MNQU5,Buy,1,20000.25,07/14/25,09:30:00,Filled",
		"2,ACC1,,Buy,1,20000.25,07/14/25,09:31:00,Filled",
		"3,ACC1,MNQU5,Hold,1,20000.25,07/14/25,09:32:00,Filled",
		"4,ACC1,MNQU5,Buy,abc,20000.25,07/14/25,09:33:00,Filled",
		"5,ACC1,MNQU5,Buy,0,20000.25,07/14/25,09:34:00,Filled",
		"6,ACC1,MNQU5,Buy,1,-5,07/14/25,09:35:00,Filled",
		"7,ACC1,MNQU5,Buy,1,20000.25,notadate,09:36:00,Filled",
		"8,ACC1,MNQU5,Buy,1,20000.25,07/14/25,09:37:00,Filled",
	}, "\n"))

	require.Len(t, fills["MNQU5"], 2)
	assert.Equal(t, "1", fills["MNQU5"][0].OrderID)
	assert.Equal(t, "8", fills["MNQU5"][1].OrderID)
}

func TestParseTimestampVariants(t *testing.T) {
	fills := parseCSV(t, strings.Join([]string{
		// Bare clock time merged onto the short-layout date.
		"1,ACC1,MNQU5,Buy,1,100,07/14/25,09:30:05,Filled",
		// Date-prefixed fill time: only the trailing clock is used.
		"2,ACC1,MNQU5,Buy,1,100,07/14/25,07/14/2025 10:31:06,Filled",
		// Four-digit year date layout.
		"3,ACC1,MNQU5,Buy,1,100,07/14/2025,11:00:00,Filled",
		// Missing fill time falls back to midnight on the trade date.
		"4,ACC1,MNQU5,Buy,1,100,07/15/25,,Filled",
		// Unparseable fill time also falls back to midnight.
		"5,ACC1,MNQU5,Buy,1,100,07/15/25,bogus,Filled",
	}, "\n"))

	rows := fills["MNQU5"]
	require.Len(t, rows, 5)

	byOrder := map[string]time.Time{}
	for _, fill := range rows {
		byOrder[fill.OrderID] = fill.Timestamp
	}
	assert.Equal(t, time.Date(2025, 7, 14, 9, 30, 5, 0, time.UTC), byOrder["1"])
	assert.Equal(t, time.Date(2025, 7, 14, 10, 31, 6, 0, time.UTC), byOrder["2"])
	assert.Equal(t, time.Date(2025, 7, 14, 11, 0, 0, 0, time.UTC), byOrder["3"])
	assert.Equal(t, time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), byOrder["4"])
	assert.Equal(t, time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), byOrder["5"])
}

func TestParseSortsChronologicallyPerSymbol(t *testing.T) {
	fills := parseCSV(t, strings.Join([]string{
		"1,ACC1,MNQU5,Sell,1,100,07/14/25,10:00:00,Filled",
		"2,ACC1,MNQU5,Buy,1,100,07/14/25,09:00:00,Filled",
		"3,ACC1,ESU5,Buy,1,5000,07/14/25,09:30:00,Filled",
	}, "\n"))

	require.Len(t, fills, 2)
	rows := fills["MNQU5"]
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0].OrderID)
	assert.Equal(t, "1", rows[1].OrderID)
}

func TestParseStableSortKeepsFileOrderForTies(t *testing.T) {
	fills := parseCSV(t, strings.Join([]string{
		"10,ACC1,MNQU5,Buy,1,100,07/14/25,09:00:00,Filled",
		"11,ACC1,MNQU5,Buy,1,101,07/14/25,09:00:00,Filled",
		"12,ACC1,MNQU5,Sell,2,102,07/14/25,09:00:00,Filled",
	}, "\n"))

	rows := fills["MNQU5"]
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"10", "11", "12"}, []string{rows[0].OrderID, rows[1].OrderID, rows[2].OrderID})
}

func TestParseEmptyFile(t *testing.T) {
	fills := parseCSV(t, "")
	assert.Empty(t, fills)
}

package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertTrade(t *testing.T, db *sql.DB, userID int64, ticker string, entry, exit time.Time, pnl float64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO trades (user_id, ticker, direction, entry_date, exit_date, entry_price, exit_price, position_size, pnl)
		VALUES (?, ?, 'Long', ?, ?, 100, 110, 1, ?)`,
		userID, ticker, entry.Format(SQLTimeLayout), exit.Format(SQLTimeLayout), pnl)
	require.NoError(t, err)
}

func newStatsService(t *testing.T) (StatsService, *sql.DB, *cache.Cache) {
	t.Helper()
	db := newTestDB(t)
	reportCache := cache.New(DefaultCacheExpiration, CacheCleanupInterval)
	return NewStatsService(db, reportCache), db, reportCache
}

func TestGetStatsAggregation(t *testing.T) {
	svc, db, _ := newStatsService(t)

	day := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	insertTrade(t, db, 1, "MNQU5", day, day.Add(time.Hour), 40)
	insertTrade(t, db, 1, "MNQU5", day.Add(2*time.Hour), day.Add(3*time.Hour), -15)
	insertTrade(t, db, 1, "ESU5", day.Add(4*time.Hour), day.Add(5*time.Hour), 500)

	summary, err := svc.GetStats(1)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalTrades)
	assert.Equal(t, 2, summary.WinningTrades)
	assert.Equal(t, 1, summary.LosingTrades)
	assert.InDelta(t, 66.67, summary.WinRate, 0.01)
	assert.InDelta(t, 525.0, summary.TotalPnL, 1e-9)
	assert.InDelta(t, 175.0, summary.AvgPnL, 1e-9)

	assert.Equal(t, []float64{40, 25, 525}, summary.Cumulative)
	assert.Equal(t, []string{"2025-07-14", "2025-07-14", "2025-07-14"}, summary.Dates)
	assert.InDelta(t, 25.0, summary.PnLBySymbol["MNQU5"], 1e-9)
	assert.InDelta(t, 500.0, summary.PnLBySymbol["ESU5"], 1e-9)
}

func TestGetStatsEmptyJournal(t *testing.T) {
	svc, _, _ := newStatsService(t)

	summary, err := svc.GetStats(1)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalTrades)
	assert.Zero(t, summary.WinRate)
	assert.Empty(t, summary.Cumulative)
}

func TestGetStatsCachesUntilInvalidated(t *testing.T) {
	svc, db, _ := newStatsService(t)

	day := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	insertTrade(t, db, 1, "MNQU5", day, day.Add(time.Hour), 40)

	first, err := svc.GetStats(1)
	require.NoError(t, err)
	require.Equal(t, 1, first.TotalTrades)

	// A write bypassing the service is invisible until the cache is dropped.
	insertTrade(t, db, 1, "MNQU5", day.Add(2*time.Hour), day.Add(3*time.Hour), 10)

	cached, err := svc.GetStats(1)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TotalTrades)

	svc.InvalidateUserCache(1)

	fresh, err := svc.GetStats(1)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalTrades)
}

func TestGetCalendarGroupsByDay(t *testing.T) {
	svc, db, _ := newStatsService(t)

	jul14 := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	jul15 := time.Date(2025, 7, 15, 9, 30, 0, 0, time.UTC)
	aug1 := time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC)

	insertTrade(t, db, 1, "MNQU5", jul14, jul14.Add(time.Hour), 40)
	insertTrade(t, db, 1, "MNQU5", jul14, jul14.Add(2*time.Hour), -10)
	insertTrade(t, db, 1, "ESU5", jul15, jul15.Add(time.Hour), 500)
	// Outside the requested month.
	insertTrade(t, db, 1, "ESU5", aug1, aug1.Add(time.Hour), 999)

	days, err := svc.GetCalendar(1, 2025, 7)
	require.NoError(t, err)

	require.Len(t, days, 2)
	assert.Equal(t, "2025-07-14", days[0].Date)
	assert.Equal(t, 2, days[0].TradeCount)
	assert.InDelta(t, 30.0, days[0].PnL, 1e-9)
	assert.Equal(t, "2025-07-15", days[1].Date)
	assert.Equal(t, 1, days[1].TradeCount)
}

func TestGetCalendarExcludesOpenTrades(t *testing.T) {
	svc, db, _ := newStatsService(t)

	day := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	_, err := db.Exec(`
		INSERT INTO trades (user_id, ticker, direction, entry_date, entry_price, position_size, pnl)
		VALUES (1, 'MNQU5', 'Long', ?, 100, 1, 0)`, day.Format(SQLTimeLayout))
	require.NoError(t, err)

	days, err := svc.GetCalendar(1, 2025, 7)
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestInvalidateUserCacheIsPerUser(t *testing.T) {
	svc, db, reportCache := newStatsService(t)

	_, err := db.Exec(`INSERT INTO users (id, username, email, password) VALUES (2, 'other', 'other@example.com', 'x')`)
	require.NoError(t, err)

	day := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	insertTrade(t, db, 1, "MNQU5", day, day.Add(time.Hour), 40)
	insertTrade(t, db, 2, "ESU5", day, day.Add(time.Hour), 50)

	_, err = svc.GetStats(1)
	require.NoError(t, err)
	_, err = svc.GetStats(2)
	require.NoError(t, err)
	_, err = svc.GetCalendar(2, 2025, 7)
	require.NoError(t, err)

	svc.InvalidateUserCache(1)

	_, found := reportCache.Get("stats_summary_user_1")
	assert.False(t, found)
	_, found = reportCache.Get("stats_summary_user_2")
	assert.True(t, found)
	_, found = reportCache.Get("calendar_user_2_2025_07")
	assert.True(t, found)
}

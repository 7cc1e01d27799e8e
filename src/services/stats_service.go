package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/utils"
)

const (
	ckStatsSummary = "stats_summary_user_%d"
	ckCalendar     = "calendar_user_%d_%04d_%02d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type statsServiceImpl struct {
	db          *sql.DB
	reportCache *cache.Cache
}

func NewStatsService(db *sql.DB, reportCache *cache.Cache) StatsService {
	return &statsServiceImpl{db: db, reportCache: reportCache}
}

// GetStats aggregates the user's whole journal: counts, win rate, average and
// cumulative PnL, and PnL per symbol. Trades are walked in entry order; the
// cumulative series uses the exit date when present, entry date otherwise.
func (s *statsServiceImpl) GetStats(userID int64) (*models.StatsSummary, error) {
	cacheKey := fmt.Sprintf(ckStatsSummary, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.StatsSummary), nil
	}

	rows, err := s.db.Query(`
		SELECT ticker, entry_date, exit_date, pnl
		FROM trades WHERE user_id = ?
		ORDER BY entry_date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for stats: %w", err)
	}
	defer rows.Close()

	summary := &models.StatsSummary{PnLBySymbol: make(map[string]float64)}
	var cumulative float64

	for rows.Next() {
		var ticker, entryDateStr string
		var exitDateStr sql.NullString
		var pnl float64
		if err := rows.Scan(&ticker, &entryDateStr, &exitDateStr, &pnl); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}

		summary.TotalTrades++
		if pnl > 0 {
			summary.WinningTrades++
		} else if pnl < 0 {
			summary.LosingTrades++
		}
		summary.TotalPnL += pnl
		summary.PnLBySymbol[ticker] = utils.RoundFloat(summary.PnLBySymbol[ticker]+pnl, 2)

		refDate := entryDateStr
		if exitDateStr.Valid && exitDateStr.String != "" {
			refDate = exitDateStr.String
		}
		if t, err := time.Parse(SQLTimeLayout, refDate); err == nil {
			summary.Dates = append(summary.Dates, t.Format("2006-01-02"))
		} else {
			// created through an older path; keep the raw date prefix
			if len(refDate) >= 10 {
				summary.Dates = append(summary.Dates, refDate[:10])
			} else {
				summary.Dates = append(summary.Dates, refDate)
			}
		}
		cumulative += pnl
		summary.Cumulative = append(summary.Cumulative, utils.RoundFloat(cumulative, 2))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating trade rows: %w", err)
	}

	if summary.TotalTrades > 0 {
		summary.WinRate = utils.RoundFloat(float64(summary.WinningTrades)/float64(summary.TotalTrades)*100, 2)
		summary.AvgPnL = utils.RoundFloat(summary.TotalPnL/float64(summary.TotalTrades), 2)
	}
	summary.TotalPnL = utils.RoundFloat(summary.TotalPnL, 2)

	s.reportCache.Set(cacheKey, summary, cache.DefaultExpiration)
	return summary, nil
}

// GetCalendar aggregates closed trades by calendar day for one month. Days
// with no closed trades are omitted.
func (s *statsServiceImpl) GetCalendar(userID int64, year int, month int) ([]models.CalendarDay, error) {
	cacheKey := fmt.Sprintf(ckCalendar, userID, year, month)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.CalendarDay), nil
	}

	monthStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	rows, err := s.db.Query(`
		SELECT SUBSTR(exit_date, 1, 10) AS day, COUNT(*), SUM(pnl)
		FROM trades
		WHERE user_id = ? AND exit_date IS NOT NULL AND exit_date >= ? AND exit_date < ?
		GROUP BY day
		ORDER BY day ASC`,
		userID, monthStart.Format(SQLTimeLayout), monthEnd.Format(SQLTimeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar aggregation: %w", err)
	}
	defer rows.Close()

	var days []models.CalendarDay
	for rows.Next() {
		var d models.CalendarDay
		if err := rows.Scan(&d.Date, &d.TradeCount, &d.PnL); err != nil {
			return nil, fmt.Errorf("failed to scan calendar row: %w", err)
		}
		d.PnL = utils.RoundFloat(d.PnL, 2)
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating calendar rows: %w", err)
	}

	s.reportCache.Set(cacheKey, days, cache.DefaultExpiration)
	return days, nil
}

// InvalidateUserCache drops every cached report for the user. Called after
// any trade mutation (import, manual add, edit, delete).
func (s *statsServiceImpl) InvalidateUserCache(userID int64) {
	prefixes := []string{
		fmt.Sprintf(ckStatsSummary, userID),
	}
	for _, key := range prefixes {
		s.reportCache.Delete(key)
	}
	// Calendar keys carry year/month; sweep the whole cache for this user.
	userPrefix := fmt.Sprintf("calendar_user_%d_", userID)
	for key := range s.reportCache.Items() {
		if len(key) >= len(userPrefix) && key[:len(userPrefix)] == userPrefix {
			s.reportCache.Delete(key)
		}
	}
}

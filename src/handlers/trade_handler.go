package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/username/tradejournal/backend/src/database"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/processors"
	"github.com/username/tradejournal/backend/src/security/validation"
	"github.com/username/tradejournal/backend/src/services"
	"github.com/username/tradejournal/backend/src/utils"
)

type TradeHandler struct {
	statsService services.StatsService
}

func NewTradeHandler(statsService services.StatsService) *TradeHandler {
	return &TradeHandler{
		statsService: statsService,
	}
}

// tradeInput is the request body for creating or updating a trade manually.
// Dates arrive as strings in one of the accepted layouts.
type tradeInput struct {
	Ticker       string  `json:"ticker"`
	Direction    string  `json:"direction"`
	EntryDate    string  `json:"entry_date"`
	ExitDate     string  `json:"exit_date"`
	EntryPrice   float64 `json:"entry_price"`
	ExitPrice    float64 `json:"exit_price"`
	PositionSize float64 `json:"position_size"`
	StrategyID   *int64  `json:"strategy_id"`
	Notes        string  `json:"notes"`
}

var inputDateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	services.SQLTimeLayout,
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDateInput(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range inputDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format")
}

// validateTradeInput normalizes and checks the payload; returns the parsed
// entry date and, when present, the exit date.
func (in *tradeInput) validate() (time.Time, *time.Time, error) {
	in.Ticker = strings.ToUpper(validation.SanitizeText(strings.TrimSpace(in.Ticker)))
	in.Notes = validation.SanitizeText(in.Notes)

	if in.Ticker == "" {
		return time.Time{}, nil, errors.New("ticker is required")
	}
	if in.Direction != models.DirectionLong && in.Direction != models.DirectionShort {
		return time.Time{}, nil, errors.New("direction must be Long or Short")
	}
	if in.PositionSize <= 0 {
		return time.Time{}, nil, errors.New("position size must be positive")
	}
	if in.EntryPrice <= 0 {
		return time.Time{}, nil, errors.New("entry price must be positive")
	}

	entryDate, err := parseDateInput(in.EntryDate)
	if err != nil {
		return time.Time{}, nil, errors.New("invalid entry date")
	}

	var exitDate *time.Time
	if strings.TrimSpace(in.ExitDate) != "" {
		parsed, err := parseDateInput(in.ExitDate)
		if err != nil {
			return time.Time{}, nil, errors.New("invalid exit date")
		}
		if parsed.Before(entryDate) {
			return time.Time{}, nil, errors.New("exit date cannot precede entry date")
		}
		if in.ExitPrice <= 0 {
			return time.Time{}, nil, errors.New("exit price must be positive for a closed trade")
		}
		exitDate = &parsed
	}

	return entryDate, exitDate, nil
}

// computePnL prices a closed trade with the contract multiplier of its ticker.
func computePnL(ticker, direction string, entryPrice, exitPrice, size float64) float64 {
	pointValue := processors.PointValue(ticker)
	pnl := (exitPrice - entryPrice) * size * pointValue
	if direction == models.DirectionShort {
		pnl = -pnl
	}
	return utils.RoundFloat(pnl, 2)
}

const tradeSelectColumns = `
	t.id, t.user_id, t.ticker, t.direction, t.entry_date, t.exit_date,
	t.entry_price, t.exit_price, t.position_size, t.pnl, t.strategy_id,
	COALESCE(s.name, ''), t.notes, COALESCE(t.share_token, '')`

func scanTradeRow(scanner interface{ Scan(...any) error }) (*models.Trade, error) {
	var t models.Trade
	var entryDate string
	var exitDate, notes sql.NullString
	var exitPrice sql.NullFloat64
	var strategyID sql.NullInt64

	err := scanner.Scan(
		&t.ID, &t.UserID, &t.Ticker, &t.Direction, &entryDate, &exitDate,
		&t.EntryPrice, &exitPrice, &t.PositionSize, &t.PnL, &strategyID,
		&t.StrategyName, &notes, &t.ShareToken,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := time.Parse(services.SQLTimeLayout, entryDate)
	if err != nil {
		return nil, err
	}
	t.EntryDate = parsed

	if exitDate.Valid && exitDate.String != "" {
		parsedExit, err := time.Parse(services.SQLTimeLayout, exitDate.String)
		if err != nil {
			return nil, err
		}
		t.ExitDate = &parsedExit
	}
	if exitPrice.Valid {
		t.ExitPrice = &exitPrice.Float64
	}
	if strategyID.Valid {
		t.StrategyID = &strategyID.Int64
	}
	t.Notes = notes.String
	return &t, nil
}

func loadTradeTags(tradeID int64) ([]models.Tag, error) {
	rows, err := database.DB.Query(`
		SELECT tg.id, tg.user_id, tg.name
		FROM tags tg
		JOIN trade_tags tt ON tt.tag_id = tg.id
		WHERE tt.trade_id = ?
		ORDER BY tg.name`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (h *TradeHandler) HandleListTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	query := `
		SELECT ` + tradeSelectColumns + `
		FROM trades t
		LEFT JOIN strategies s ON s.id = t.strategy_id
		WHERE t.user_id = ?`
	args := []any{userID}

	if ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker"))); ticker != "" {
		query += " AND t.ticker = ?"
		args = append(args, ticker)
	}
	query += " ORDER BY t.entry_date DESC, t.id DESC"

	rows, err := database.DB.Query(query, args...)
	if err != nil {
		logger.L.Error("Failed to list trades", "userID", userID, "error", err)
		sendJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		trade, err := scanTradeRow(rows)
		if err != nil {
			logger.L.Error("Failed to scan trade row", "userID", userID, "error", err)
			sendJSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		trades = append(trades, *trade)
	}
	if err := rows.Err(); err != nil {
		logger.L.Error("Trade row iteration failed", "userID", userID, "error", err)
		sendJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	for i := range trades {
		tags, err := loadTradeTags(trades[i].ID)
		if err != nil {
			logger.L.Error("Failed to load trade tags", "tradeID", trades[i].ID, "error", err)
			sendJSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		trades[i].Tags = tags
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

func (h *TradeHandler) HandleGetTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	tradeID, err := strconv.ParseInt(chi.URLParam(r, "tradeID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid trade ID", http.StatusBadRequest)
		return
	}

	row := database.DB.QueryRow(`
		SELECT `+tradeSelectColumns+`
		FROM trades t
		LEFT JOIN strategies s ON s.id = t.strategy_id
		WHERE t.id = ? AND t.user_id = ?`, tradeID, userID)

	trade, err := scanTradeRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "Trade not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to fetch trade", "tradeID", tradeID, "error", err)
		sendJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	if trade.Tags, err = loadTradeTags(trade.ID); err != nil {
		logger.L.Error("Failed to load trade tags", "tradeID", trade.ID, "error", err)
		sendJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trade)
}

func (h *TradeHandler) HandleCreateTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var input tradeInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entryDate, exitDate, err := input.validate()
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if input.StrategyID != nil {
		owned, err := h.strategyBelongsToUser(*input.StrategyID, userID)
		if err != nil {
			logger.L.Error("Failed to check strategy ownership", "userID", userID, "strategyID", *input.StrategyID, "error", err)
			sendJSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		if !owned {
			sendJSONError(w, "Strategy not found", http.StatusBadRequest)
			return
		}
	}

	var exitDateStr, exitPrice any
	var pnl float64
	if exitDate != nil {
		exitDateStr = exitDate.Format(services.SQLTimeLayout)
		exitPrice = input.ExitPrice
		pnl = computePnL(input.Ticker, input.Direction, input.EntryPrice, input.ExitPrice, input.PositionSize)
	}

	res, err := database.DB.Exec(`
		INSERT INTO trades (user_id, ticker, direction, entry_date, exit_date,
			entry_price, exit_price, position_size, pnl, strategy_id, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, input.Ticker, input.Direction, entryDate.Format(services.SQLTimeLayout),
		exitDateStr, input.EntryPrice, exitPrice, input.PositionSize, pnl,
		input.StrategyID, input.Notes)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			sendJSONError(w, "An identical trade already exists", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to insert trade", "userID", userID, "error", err)
		sendJSONError(w, "Failed to save trade", http.StatusInternalServerError)
		return
	}

	tradeID, _ := res.LastInsertId()
	h.statsService.InvalidateUserCache(userID)

	logger.L.Info("Trade created", "userID", userID, "tradeID", tradeID, "ticker", input.Ticker)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"id": tradeID, "pnl": pnl})
}

func (h *TradeHandler) HandleUpdateTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	tradeID, err := strconv.ParseInt(chi.URLParam(r, "tradeID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid trade ID", http.StatusBadRequest)
		return
	}

	var input tradeInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entryDate, exitDate, err := input.validate()
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if input.StrategyID != nil {
		owned, err := h.strategyBelongsToUser(*input.StrategyID, userID)
		if err != nil {
			logger.L.Error("Failed to check strategy ownership", "userID", userID, "strategyID", *input.StrategyID, "error", err)
			sendJSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		if !owned {
			sendJSONError(w, "Strategy not found", http.StatusBadRequest)
			return
		}
	}

	var exitDateStr, exitPrice any
	var pnl float64
	if exitDate != nil {
		exitDateStr = exitDate.Format(services.SQLTimeLayout)
		exitPrice = input.ExitPrice
		pnl = computePnL(input.Ticker, input.Direction, input.EntryPrice, input.ExitPrice, input.PositionSize)
	}

	res, err := database.DB.Exec(`
		UPDATE trades
		SET ticker = ?, direction = ?, entry_date = ?, exit_date = ?,
			entry_price = ?, exit_price = ?, position_size = ?, pnl = ?,
			strategy_id = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		input.Ticker, input.Direction, entryDate.Format(services.SQLTimeLayout),
		exitDateStr, input.EntryPrice, exitPrice, input.PositionSize, pnl,
		input.StrategyID, input.Notes, tradeID, userID)
	if err != nil {
		logger.L.Error("Failed to update trade", "tradeID", tradeID, "error", err)
		sendJSONError(w, "Failed to update trade", http.StatusInternalServerError)
		return
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		sendJSONError(w, "Trade not found", http.StatusNotFound)
		return
	}

	h.statsService.InvalidateUserCache(userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"id": tradeID, "pnl": pnl})
}

func (h *TradeHandler) HandleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	tradeID, err := strconv.ParseInt(chi.URLParam(r, "tradeID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid trade ID", http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`DELETE FROM trades WHERE id = ? AND user_id = ?`, tradeID, userID)
	if err != nil {
		logger.L.Error("Failed to delete trade", "tradeID", tradeID, "error", err)
		sendJSONError(w, "Failed to delete trade", http.StatusInternalServerError)
		return
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		sendJSONError(w, "Trade not found", http.StatusNotFound)
		return
	}

	h.statsService.InvalidateUserCache(userID)
	logger.L.Info("Trade deleted", "userID", userID, "tradeID", tradeID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *TradeHandler) strategyBelongsToUser(strategyID, userID int64) (bool, error) {
	var count int
	err := database.DB.QueryRow(`SELECT COUNT(*) FROM strategies WHERE id = ? AND user_id = ?`,
		strategyID, userID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

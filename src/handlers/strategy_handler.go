package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/username/tradejournal/backend/src/database"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/security/validation"
	"github.com/username/tradejournal/backend/src/services"
)

// StrategyHandler manages per-user strategy and tag labels.
type StrategyHandler struct {
	statsService services.StatsService
}

func NewStrategyHandler(statsService services.StatsService) *StrategyHandler {
	return &StrategyHandler{
		statsService: statsService,
	}
}

type labelInput struct {
	Name string `json:"name"`
}

func (in *labelInput) validate() error {
	in.Name = validation.SanitizeText(strings.TrimSpace(in.Name))
	if in.Name == "" {
		return errors.New("name is required")
	}
	if len(in.Name) > 100 {
		return errors.New("name exceeds maximum length of 100 characters")
	}
	return nil
}

// --- Strategies ---

type strategyView struct {
	models.Strategy
	TradeCount int     `json:"trade_count"`
	TotalPnL   float64 `json:"total_pnl"`
}

func (h *StrategyHandler) HandleListStrategies(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	rows, err := database.DB.Query(`
		SELECT s.id, s.user_id, s.name, COUNT(t.id), COALESCE(SUM(t.pnl), 0)
		FROM strategies s
		LEFT JOIN trades t ON t.strategy_id = s.id
		WHERE s.user_id = ?
		GROUP BY s.id
		ORDER BY s.name`, userID)
	if err != nil {
		logger.L.Error("Failed to list strategies", "userID", userID, "error", err)
		sendJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	strategies := []strategyView{}
	for rows.Next() {
		var s strategyView
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.TradeCount, &s.TotalPnL); err != nil {
			logger.L.Error("Failed to scan strategy row", "userID", userID, "error", err)
			sendJSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		strategies = append(strategies, s)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(strategies)
}

func (h *StrategyHandler) HandleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var input labelInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := input.validate(); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`INSERT INTO strategies (user_id, name) VALUES (?, ?)`, userID, input.Name)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			sendJSONError(w, "A strategy with this name already exists", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create strategy", "userID", userID, "error", err)
		sendJSONError(w, "Failed to create strategy", http.StatusInternalServerError)
		return
	}

	id, _ := res.LastInsertId()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.Strategy{ID: id, UserID: userID, Name: input.Name})
}

func (h *StrategyHandler) HandleRenameStrategy(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	strategyID, err := strconv.ParseInt(chi.URLParam(r, "strategyID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid strategy ID", http.StatusBadRequest)
		return
	}

	var input labelInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := input.validate(); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`UPDATE strategies SET name = ? WHERE id = ? AND user_id = ?`,
		input.Name, strategyID, userID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			sendJSONError(w, "A strategy with this name already exists", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to rename strategy", "strategyID", strategyID, "error", err)
		sendJSONError(w, "Failed to rename strategy", http.StatusInternalServerError)
		return
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		sendJSONError(w, "Strategy not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.Strategy{ID: strategyID, UserID: userID, Name: input.Name})
}

// HandleDeleteStrategy removes a strategy; trades referencing it keep their
// rows with strategy_id set to NULL by the foreign key.
func (h *StrategyHandler) HandleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	strategyID, err := strconv.ParseInt(chi.URLParam(r, "strategyID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid strategy ID", http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`DELETE FROM strategies WHERE id = ? AND user_id = ?`, strategyID, userID)
	if err != nil {
		logger.L.Error("Failed to delete strategy", "strategyID", strategyID, "error", err)
		sendJSONError(w, "Failed to delete strategy", http.StatusInternalServerError)
		return
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		sendJSONError(w, "Strategy not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Tags ---

func (h *StrategyHandler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	rows, err := database.DB.Query(`SELECT id, user_id, name FROM tags WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		logger.L.Error("Failed to list tags", "userID", userID, "error", err)
		sendJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name); err != nil {
			logger.L.Error("Failed to scan tag row", "userID", userID, "error", err)
			sendJSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		tags = append(tags, tag)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tags)
}

func (h *StrategyHandler) HandleCreateTag(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var input labelInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := input.validate(); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`INSERT INTO tags (user_id, name) VALUES (?, ?)`, userID, input.Name)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			sendJSONError(w, "A tag with this name already exists", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create tag", "userID", userID, "error", err)
		sendJSONError(w, "Failed to create tag", http.StatusInternalServerError)
		return
	}

	id, _ := res.LastInsertId()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.Tag{ID: id, UserID: userID, Name: input.Name})
}

func (h *StrategyHandler) HandleDeleteTag(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	tagID, err := strconv.ParseInt(chi.URLParam(r, "tagID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid tag ID", http.StatusBadRequest)
		return
	}

	res, err := database.DB.Exec(`DELETE FROM tags WHERE id = ? AND user_id = ?`, tagID, userID)
	if err != nil {
		logger.L.Error("Failed to delete tag", "tagID", tagID, "error", err)
		sendJSONError(w, "Failed to delete tag", http.StatusInternalServerError)
		return
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		sendJSONError(w, "Tag not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSetTradeTags replaces the tag set of a trade with the given tag IDs.
func (h *StrategyHandler) HandleSetTradeTags(w http.ResponseWriter, r *http.Request) {
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

	var input struct {
		TagIDs []int64 `json:"tag_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var owner int64
	err = database.DB.QueryRow(`SELECT user_id FROM trades WHERE id = ?`, tradeID).Scan(&owner)
	if err != nil || owner != userID {
		if err != nil && err != sql.ErrNoRows {
			logger.L.Error("Failed to check trade ownership", "tradeID", tradeID, "error", err)
		}
		sendJSONError(w, "Trade not found", http.StatusNotFound)
		return
	}

	tx, err := database.DB.Begin()
	if err != nil {
		logger.L.Error("Failed to begin transaction for tag update", "tradeID", tradeID, "error", err)
		sendJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM trade_tags WHERE trade_id = ?`, tradeID); err != nil {
		logger.L.Error("Failed to clear trade tags", "tradeID", tradeID, "error", err)
		sendJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	for _, tagID := range input.TagIDs {
		// Only the user's own tags may be attached.
		res, err := tx.Exec(`
			INSERT INTO trade_tags (trade_id, tag_id)
			SELECT ?, id FROM tags WHERE id = ? AND user_id = ?`,
			tradeID, tagID, userID)
		if err != nil {
			logger.L.Error("Failed to attach tag", "tradeID", tradeID, "tagID", tagID, "error", err)
			sendJSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			sendJSONError(w, "Tag not found", http.StatusBadRequest)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		logger.L.Error("Failed to commit tag update", "tradeID", tradeID, "error", err)
		sendJSONError(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

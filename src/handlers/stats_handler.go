package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/services"
	"github.com/username/tradejournal/backend/src/utils"
)

type StatsHandler struct {
	statsService services.StatsService
}

func NewStatsHandler(statsService services.StatsService) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
	}
}

// HandleGetStats serves the aggregate statistics with ETag revalidation so
// unchanged journals cost the client nothing after the first fetch.
func (h *StatsHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	summary, err := h.statsService.GetStats(userID)
	if err != nil {
		logger.L.Error("Error retrieving stats summary", "userID", userID, "error", err)
		sendJSONError(w, "Failed to compute statistics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	currentETag, etagErr := utils.GenerateETag(summary)
	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("%q", currentETag)
		w.Header().Set("ETag", quotedETag)
		for _, clientETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(clientETag) == quotedETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	} else if etagErr != nil {
		logger.L.Warn("Proceeding without ETag check due to generation error", "userID", userID, "error", etagErr)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.L.Error("Error encoding stats response", "userID", userID, "error", err)
	}
}

// HandleGetCalendar serves the per-day PnL aggregation for one month.
// Defaults to the current month when year/month query params are absent.
func (h *StatsHandler) HandleGetCalendar(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	year := now.Year()
	month := int(now.Month())

	if yearStr := r.URL.Query().Get("year"); yearStr != "" {
		parsed, err := strconv.Atoi(yearStr)
		if err != nil || parsed < 1970 || parsed > 2100 {
			sendJSONError(w, "Invalid year", http.StatusBadRequest)
			return
		}
		year = parsed
	}
	if monthStr := r.URL.Query().Get("month"); monthStr != "" {
		parsed, err := strconv.Atoi(monthStr)
		if err != nil || parsed < 1 || parsed > 12 {
			sendJSONError(w, "Invalid month", http.StatusBadRequest)
			return
		}
		month = parsed
	}

	days, err := h.statsService.GetCalendar(userID, year, month)
	if err != nil {
		logger.L.Error("Error retrieving calendar data", "userID", userID, "year", year, "month", month, "error", err)
		sendJSONError(w, "Failed to compute calendar", http.StatusInternalServerError)
		return
	}
	if days == nil {
		days = []models.CalendarDay{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"year":  year,
		"month": month,
		"days":  days,
	})
}

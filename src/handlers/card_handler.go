package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/username/tradejournal/backend/src/config"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/services"
)

// CardHandler mints share tokens and serves the public SVG trade cards.
type CardHandler struct {
	cardService *services.CardService
}

func NewCardHandler(cardService *services.CardService) *CardHandler {
	return &CardHandler{
		cardService: cardService,
	}
}

// HandleCreateShareLink mints (or returns the existing) share token for one
// of the caller's trades and responds with the public card URL.
func (h *CardHandler) HandleCreateShareLink(w http.ResponseWriter, r *http.Request) {
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

	token, err := h.cardService.EnsureShareToken(userID, tradeID)
	if err != nil {
		if errors.Is(err, services.ErrTradeNotFound) {
			sendJSONError(w, "Trade not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to mint share token", "userID", userID, "tradeID", tradeID, "error", err)
		sendJSONError(w, "Failed to create share link", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"share_token": token,
		"card_url":    fmt.Sprintf("%s/cards/%s", config.Cfg.FrontendBaseURL, token),
	})
}

// HandleGetCard is the public, unauthenticated card endpoint. It renders the
// shared trade as an SVG image addressed only by its opaque token.
func (h *CardHandler) HandleGetCard(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		sendJSONError(w, "Share token is missing", http.StatusBadRequest)
		return
	}

	trade, err := h.cardService.GetTradeByShareToken(token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, services.ErrTradeNotFound) {
			sendJSONError(w, "Card not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to load shared trade", "error", err)
		sendJSONError(w, "Failed to load card", http.StatusInternalServerError)
		return
	}

	svg := h.cardService.RenderCardSVG(trade)

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write([]byte(svg))
}

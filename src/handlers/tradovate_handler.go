package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/username/tradejournal/backend/src/config"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/services"
)

// TradovateHandler proxies account and order lookups to the Tradovate API.
// Broker credentials are never stored; each user holds an in-memory client
// with its token pair for the lifetime of the process.
type TradovateHandler struct {
	mu      sync.Mutex
	clients map[int64]*services.TradovateClient
}

func NewTradovateHandler() *TradovateHandler {
	return &TradovateHandler{
		clients: make(map[int64]*services.TradovateClient),
	}
}

func (h *TradovateHandler) clientForUser(userID int64) (*services.TradovateClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[userID]
	return client, ok
}

// HandleConnect exchanges broker credentials for a Tradovate token pair.
func (h *TradovateHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if credentials.Username == "" || credentials.Password == "" {
		sendJSONError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	client := services.NewTradovateClient(config.Cfg.TradovateBaseURL)
	tokens, err := client.Authenticate(r.Context(), credentials.Username, credentials.Password)
	if err != nil {
		logger.L.Warn("Tradovate authentication failed", "userID", userID, "error", err)
		sendJSONError(w, "Tradovate authentication failed", http.StatusBadGateway)
		return
	}

	h.mu.Lock()
	h.clients[userID] = client
	h.mu.Unlock()

	logger.L.Info("Tradovate account connected", "userID", userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"connected":  true,
		"expires_in": tokens.ExpiresIn,
	})
}

// HandleRefresh rotates the stored Tradovate token pair for the caller.
func (h *TradovateHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	client, connected := h.clientForUser(userID)
	if !connected {
		sendJSONError(w, "No Tradovate connection. Connect first.", http.StatusBadRequest)
		return
	}

	tokens, err := client.RefreshAccessToken(r.Context())
	if err != nil {
		logger.L.Warn("Tradovate token refresh failed", "userID", userID, "error", err)
		sendJSONError(w, "Tradovate token refresh failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"connected":  true,
		"expires_in": tokens.ExpiresIn,
	})
}

func (h *TradovateHandler) HandleGetAccounts(w http.ResponseWriter, r *http.Request) {
	h.proxyGet(w, r, func(client *services.TradovateClient) (json.RawMessage, error) {
		return client.GetAccounts(r.Context())
	})
}

func (h *TradovateHandler) HandleGetOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyGet(w, r, func(client *services.TradovateClient) (json.RawMessage, error) {
		return client.GetOrders(r.Context())
	})
}

func (h *TradovateHandler) proxyGet(w http.ResponseWriter, r *http.Request, fetch func(*services.TradovateClient) (json.RawMessage, error)) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	client, connected := h.clientForUser(userID)
	if !connected {
		sendJSONError(w, "No Tradovate connection. Connect first.", http.StatusBadRequest)
		return
	}

	payload, err := fetch(client)
	if err != nil {
		logger.L.Warn("Tradovate proxy request failed", "userID", userID, "error", err)
		sendJSONError(w, "Tradovate request failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

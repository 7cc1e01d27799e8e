package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/username/tradejournal/backend/src/logger"
)

// TradovateClient is a thin authenticated pass-through to the Tradovate REST
// API: token exchange, token refresh, and read-only account/order fetches.
// It plays no part in the CSV import path.
type TradovateClient struct {
	baseURL      string
	accessToken  string
	refreshToken string
	httpClient   *http.Client
}

// TradovateTokens is the credential pair returned by authentication calls.
type TradovateTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func NewTradovateClient(baseURL string) *TradovateClient {
	return &TradovateClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Authenticate exchanges username/password credentials for a token pair.
func (c *TradovateClient) Authenticate(ctx context.Context, username, password string) (*TradovateTokens, error) {
	payload := map[string]string{
		"name":       username,
		"password":   password,
		"appId":      "TradeJournal",
		"appVersion": "1.0",
		"deviceId":   "web",
		"cid":        "TradeJournal",
	}
	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int    `json:"expiresIn"`
	}
	if err := c.postJSON(ctx, "/auth/access_token", payload, &resp); err != nil {
		return nil, fmt.Errorf("tradovate authentication failed: %w", err)
	}
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	return &TradovateTokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, ExpiresIn: resp.ExpiresIn}, nil
}

// RefreshAccessToken rotates the bearer token using the stored refresh token.
func (c *TradovateClient) RefreshAccessToken(ctx context.Context) (*TradovateTokens, error) {
	if c.refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}
	payload := map[string]string{
		"refreshToken": c.refreshToken,
		"cid":          "TradeJournal",
	}
	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int    `json:"expiresIn"`
	}
	if err := c.postJSON(ctx, "/auth/refresh_token", payload, &resp); err != nil {
		return nil, fmt.Errorf("tradovate token refresh failed: %w", err)
	}
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	return &TradovateTokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, ExpiresIn: resp.ExpiresIn}, nil
}

// GetAccounts fetches the raw account list for the authenticated user.
func (c *TradovateClient) GetAccounts(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/account/list")
}

// GetOrders fetches the raw order list for the authenticated user.
func (c *TradovateClient) GetOrders(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/order/list")
}

func (c *TradovateClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.L.Warn("Tradovate API request failed", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("tradovate API returned %d: %s", resp.StatusCode, string(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *TradovateClient) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("no access token available")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.L.Warn("Tradovate API request failed", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("tradovate API returned %d: %s", resp.StatusCode, string(data))
	}
	return io.ReadAll(resp.Body)
}

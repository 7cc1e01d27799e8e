package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/username/tradejournal/backend/src/logger"
)

const csrfCookieName = "_csrf"

// GetCSRFToken issues a signed double-submit token: the same value travels in
// a cookie and must be echoed back in the X-CSRF-Token header.
func GetCSRFToken(csrfKey []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := generateCSRFToken(csrfKey)
		if err != nil {
			logger.L.Error("Failed to generate CSRF token", "error", err)
			sendJSONError(w, "Failed to generate CSRF token", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     csrfCookieName,
			Value:    token,
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			MaxAge:   3600,
		})

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-CSRF-Token", token)
		json.NewEncoder(w).Encode(map[string]string{
			"csrfToken": token,
		})
	}
}

func generateCSRFToken(csrfKey []byte) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, csrfKey)
	mac.Write(nonce)
	return base64.RawURLEncoding.EncodeToString(nonce) + "." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func validCSRFToken(csrfKey []byte, token string) bool {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return false
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, csrfKey)
	mac.Write(nonce)
	return hmac.Equal(sig, mac.Sum(nil))
}

// CSRFMiddleware enforces the double-submit check on state-changing methods.
func CSRFMiddleware(csrfKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case "GET", "HEAD", "OPTIONS":
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			cookie, errCookie := r.Cookie(csrfCookieName)

			if headerToken != "" && errCookie == nil && headerToken == cookie.Value &&
				validCSRFToken(csrfKey, headerToken) {
				next.ServeHTTP(w, r)
				return
			}

			logger.L.Warn("CSRF validation failed",
				"method", r.Method,
				"url", r.URL.String(),
				"headerTokenExists", headerToken != "",
				"cookieError", errCookie,
				"origin", r.Header.Get("Origin"),
			)
			http.Error(w, "CSRF token validation failed", http.StatusForbidden)
		})
	}
}

package services

import (
	"database/sql"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/username/tradejournal/backend/src/models"
)

// CardService renders a shareable summary card for a single trade. Cards are
// addressed by an unguessable token so a trade can be shared without exposing
// the owner's account or the sequential trade id.
type CardService struct {
	db *sql.DB
}

func NewCardService(db *sql.DB) *CardService {
	return &CardService{db: db}
}

// EnsureShareToken returns the trade's share token, generating and persisting
// one on first request. Only the owning user can mint a token.
func (s *CardService) EnsureShareToken(userID, tradeID int64) (string, error) {
	var token sql.NullString
	err := s.db.QueryRow(`SELECT share_token FROM trades WHERE id = ? AND user_id = ?`, tradeID, userID).Scan(&token)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrTradeNotFound
		}
		return "", fmt.Errorf("failed to look up trade for sharing: %w", err)
	}
	if token.Valid && token.String != "" {
		return token.String, nil
	}

	newToken := uuid.New().String()
	_, err = s.db.Exec(`UPDATE trades SET share_token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?`,
		newToken, tradeID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to store share token: %w", err)
	}
	return newToken, nil
}

// GetTradeByShareToken fetches the public view of a shared trade.
func (s *CardService) GetTradeByShareToken(token string) (*models.Trade, error) {
	var t models.Trade
	var entryDateStr string
	var exitDateStr sql.NullString
	var exitPrice sql.NullFloat64
	var notes sql.NullString

	err := s.db.QueryRow(`
		SELECT id, ticker, direction, entry_date, exit_date, entry_price, exit_price, position_size, pnl, notes
		FROM trades WHERE share_token = ?`, token).
		Scan(&t.ID, &t.Ticker, &t.Direction, &entryDateStr, &exitDateStr, &t.EntryPrice, &exitPrice, &t.PositionSize, &t.PnL, &notes)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to fetch shared trade: %w", err)
	}

	if d, err := time.Parse(SQLTimeLayout, entryDateStr); err == nil {
		t.EntryDate = d
	}
	if exitDateStr.Valid {
		if d, err := time.Parse(SQLTimeLayout, exitDateStr.String); err == nil {
			t.ExitDate = &d
		}
	}
	if exitPrice.Valid {
		t.ExitPrice = &exitPrice.Float64
	}
	t.Notes = notes.String
	t.ShareToken = token
	return &t, nil
}

// RenderCardSVG builds the share-card image as an SVG document. All
// user-controlled values are HTML-escaped before interpolation.
func (s *CardService) RenderCardSVG(trade *models.Trade) string {
	pnlColor := "#9aa0a6"
	pnlText := "OPEN"
	if trade.IsClosed() {
		if trade.PnL >= 0 {
			pnlColor = "#34a853"
			pnlText = fmt.Sprintf("+$%.2f", trade.PnL)
		} else {
			pnlColor = "#ea4335"
			pnlText = fmt.Sprintf("-$%.2f", -trade.PnL)
		}
	}

	exitLine := "still open"
	if trade.IsClosed() {
		exitLine = fmt.Sprintf("Exit %.2f on %s", *trade.ExitPrice, trade.ExitDate.Format("Jan 2, 2006 15:04"))
	}

	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="600" height="320" viewBox="0 0 600 320">`)
	b.WriteString(`<rect width="600" height="320" rx="16" fill="#1e1e24"/>`)
	fmt.Fprintf(&b, `<text x="40" y="70" font-family="Helvetica, Arial, sans-serif" font-size="36" font-weight="bold" fill="#ffffff">%s</text>`,
		html.EscapeString(trade.Ticker))
	fmt.Fprintf(&b, `<text x="40" y="110" font-family="Helvetica, Arial, sans-serif" font-size="20" fill="#9aa0a6">%s · %s contracts</text>`,
		html.EscapeString(trade.Direction), trimFloat(trade.PositionSize))
	fmt.Fprintf(&b, `<text x="40" y="180" font-family="Helvetica, Arial, sans-serif" font-size="56" font-weight="bold" fill="%s">%s</text>`,
		pnlColor, html.EscapeString(pnlText))
	fmt.Fprintf(&b, `<text x="40" y="230" font-family="Helvetica, Arial, sans-serif" font-size="16" fill="#9aa0a6">Entry %.2f on %s</text>`,
		trade.EntryPrice, trade.EntryDate.Format("Jan 2, 2006 15:04"))
	fmt.Fprintf(&b, `<text x="40" y="256" font-family="Helvetica, Arial, sans-serif" font-size="16" fill="#9aa0a6">%s</text>`,
		html.EscapeString(exitLine))
	b.WriteString(`<text x="40" y="296" font-family="Helvetica, Arial, sans-serif" font-size="13" fill="#5f6368">tradejournal</text>`)
	b.WriteString(`</svg>`)
	return b.String()
}

func trimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

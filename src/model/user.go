package model

import (
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Password    string    `json:"-"`
	IsAdmin     bool      `json:"is_admin"`
	MfaSecret   string    `json:"-"`
	MfaEnabled  bool      `json:"mfa_enabled"`
	LoginCount  int       `json:"login_count"`
	LastLoginAt NullTime  `json:"last_login_at"`
	LastSeenAt  NullTime  `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NullTime is an alias for sql.NullTime with null-aware JSON marshalling.
type NullTime sql.NullTime

func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return nt.Time.MarshalJSON()
}

func (u *User) HashPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

func (u *User) CreateUser(db *sql.DB) error {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `
	INSERT INTO users (username, email, password, is_admin, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(u.Username, u.Email, u.Password, u.IsAdmin, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var mfaSecret sql.NullString
	var lastLoginAt, lastSeenAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.Password, &user.IsAdmin,
		&mfaSecret, &user.MfaEnabled, &user.LoginCount, &lastLoginAt, &lastSeenAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	user.MfaSecret = mfaSecret.String
	user.LastLoginAt = NullTime(lastLoginAt)
	user.LastSeenAt = NullTime(lastSeenAt)
	return &user, nil
}

const userColumns = `id, username, email, password, is_admin, mfa_secret, mfa_enabled,
	login_count, last_login_at, last_seen_at, created_at, updated_at`

func GetUserByID(db *sql.DB, id int64) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func GetUserByUsername(db *sql.DB, username string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func GetUserByEmail(db *sql.DB, email string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// RecordLogin bumps the login counter and timestamp after a successful login.
func (u *User) RecordLogin(db *sql.DB) error {
	_, err := db.Exec(`UPDATE users SET login_count = login_count + 1, last_login_at = CURRENT_TIMESTAMP WHERE id = ?`, u.ID)
	return err
}

// TouchLastSeen updates the last-seen timestamp; called from the auth middleware.
func TouchLastSeen(db *sql.DB, userID int64) error {
	_, err := db.Exec(`UPDATE users SET last_seen_at = CURRENT_TIMESTAMP WHERE id = ?`, userID)
	return err
}

// SetMfaSecret stores a pending TOTP secret for the user.
func (u *User) SetMfaSecret(db *sql.DB, secret string) error {
	_, err := db.Exec(`UPDATE users SET mfa_secret = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, secret, u.ID)
	return err
}

// EnableMfa marks MFA as active once the user has confirmed a valid code.
func (u *User) EnableMfa(db *sql.DB) error {
	_, err := db.Exec(`UPDATE users SET mfa_enabled = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, u.ID)
	return err
}

// CountUsers returns the total number of registered users (admin stats).
func CountUsers(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// ListUsers returns all users with their trade counts, newest first (admin view).
func ListUsers(db *sql.DB) ([]UserSummary, error) {
	rows, err := db.Query(`
		SELECT u.id, u.username, u.email, u.is_admin, u.last_seen_at, COUNT(t.id)
		FROM users u
		LEFT JOIN trades t ON t.user_id = u.id
		GROUP BY u.id
		ORDER BY u.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []UserSummary
	for rows.Next() {
		var s UserSummary
		var lastSeen sql.NullTime
		if err := rows.Scan(&s.ID, &s.Username, &s.Email, &s.IsAdmin, &lastSeen, &s.TradeCount); err != nil {
			return nil, err
		}
		s.LastSeenAt = NullTime(lastSeen)
		users = append(users, s)
	}
	return users, rows.Err()
}

// UserSummary is the admin-facing view of a user row.
type UserSummary struct {
	ID         int64    `json:"id"`
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	IsAdmin    bool     `json:"is_admin"`
	LastSeenAt NullTime `json:"last_seen_at"`
	TradeCount int      `json:"trade_count"`
}

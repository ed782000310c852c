package model

import (
	"database/sql"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateSession stores a new session for a user.
func (s *Session) CreateSession(db *sql.DB) error {
	res, err := db.Exec(`
		INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.UserID, s.Token, s.RefreshToken, s.UserAgent, s.ClientIP, s.ExpiresAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

func GetSessionByToken(db *sql.DB, token string) (*Session, error) {
	return getSession(db, `SELECT id, user_id, token, refresh_token, is_blocked, expires_at FROM sessions WHERE token = ?`, token)
}

func GetSessionByRefreshToken(db *sql.DB, refreshToken string) (*Session, error) {
	return getSession(db, `SELECT id, user_id, token, refresh_token, is_blocked, expires_at FROM sessions WHERE refresh_token = ?`, refreshToken)
}

func getSession(db *sql.DB, query, key string) (*Session, error) {
	var s Session
	err := db.QueryRow(query, key).
		Scan(&s.ID, &s.UserID, &s.Token, &s.RefreshToken, &s.IsBlocked, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// UpdateSessionTokens replaces the access and refresh tokens after a refresh.
func (s *Session) UpdateSessionTokens(db *sql.DB) error {
	_, err := db.Exec(`UPDATE sessions SET token = ?, refresh_token = ?, expires_at = ? WHERE id = ?`,
		s.Token, s.RefreshToken, s.ExpiresAt, s.ID)
	return err
}

// DeleteSessionByToken removes a session on logout.
func DeleteSessionByToken(db *sql.DB, token string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

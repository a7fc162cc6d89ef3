package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/model"
)

// SessionStore keeps login sessions. A session pins one active team; the
// team switcher moves it between the user's teams.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const sessionColumns = `id, token, user_id, team_id, expires_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	sess := new(model.Session)
	if err := row.Scan(&sess.ID, &sess.Token, &sess.UserID, &sess.TeamID, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		return nil, err
	}
	return sess, nil
}

// Create opens a session for userID with teamID active, valid for ttl.
func (s *SessionStore) Create(userID, teamID int64, ttl time.Duration) (*model.Session, error) {
	token, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(
		`INSERT INTO sessions (token, user_id, team_id, expires_at) VALUES (?, ?, ?, ?)
		 RETURNING `+sessionColumns,
		token, userID, teamID, s.now().Add(ttl),
	)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetByToken returns the live session for token, or nil when the token is
// unknown or expired.
func (s *SessionStore) GetByToken(token string) (*model.Session, error) {
	sess, err := scanSession(s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE token = ? AND expires_at > ?`,
		token, s.now(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// UpdateTeamID makes teamID the session's active team.
func (s *SessionStore) UpdateTeamID(id, teamID int64) error {
	if _, err := s.db.Exec(`UPDATE sessions SET team_id = ? WHERE id = ?`, teamID, id); err != nil {
		return fmt.Errorf("switch session team: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired purges dead sessions and reports how many went.
func (s *SessionStore) DeleteExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

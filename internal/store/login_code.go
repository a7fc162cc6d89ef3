package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kodix/kodix/internal/model"
)

const (
	LoginCodeTTL         = 15 * time.Minute
	MaxLoginCodeAttempts = 5
)

type LoginCodeStore struct {
	db *sql.DB
}

func NewLoginCodeStore(db *sql.DB) *LoginCodeStore {
	return &LoginCodeStore{db: db}
}

func scanLoginCode(scanner interface{ Scan(...any) error }) (*model.LoginCode, error) {
	var lc model.LoginCode
	var usedAt sql.NullTime

	err := scanner.Scan(&lc.ID, &lc.Email, &lc.CodeHash, &lc.ExpiresAt, &usedAt, &lc.Attempts, &lc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		lc.UsedAt = &usedAt.Time
	}
	return &lc, nil
}

const loginCodeCols = `id, email, code_hash, expires_at, used_at, attempts, created_at`

// Create stores a hashed code for email with a 15-minute expiry. Any
// pending codes for the same email are invalidated first.
func (s *LoginCodeStore) Create(email, codeHash string) (*model.LoginCode, error) {
	email = NormalizeEmail(email)
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`UPDATE login_codes SET used_at = ? WHERE email = ? AND used_at IS NULL AND expires_at > ?`,
		now, email, now,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO login_codes (email, code_hash, expires_at) VALUES (?, ?, ?)`,
		email, codeHash, now.Add(LoginCodeTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("insert login code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+loginCodeCols+` FROM login_codes WHERE id = ?`, id)
	return scanLoginCode(row)
}

// GetLatestByEmail returns the most recent unexpired, unused code for email.
func (s *LoginCodeStore) GetLatestByEmail(email string) (*model.LoginCode, error) {
	row := s.db.QueryRow(
		`SELECT `+loginCodeCols+` FROM login_codes
		 WHERE email = ? AND expires_at > ? AND used_at IS NULL
		 ORDER BY id DESC LIMIT 1`,
		NormalizeEmail(email), time.Now().UTC(),
	)
	lc, err := scanLoginCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest login code: %w", err)
	}
	return lc, nil
}

// IncrementAttempts increments the attempt count and returns the new value.
func (s *LoginCodeStore) IncrementAttempts(id int64) (int, error) {
	var attempts int
	err := s.db.QueryRow(
		`UPDATE login_codes SET attempts = attempts + 1 WHERE id = ? RETURNING attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return attempts, nil
}

func (s *LoginCodeStore) MarkUsed(id int64) error {
	_, err := s.db.Exec(`UPDATE login_codes SET used_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark login code used: %w", err)
	}
	return nil
}

func (s *LoginCodeStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM login_codes WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired login codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/kodix/kodix/internal/model"
)

// UserStore reads and edits accounts. Accounts are only created through
// TeamStore.Signup, together with their personal team.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, email, name, created_at, updated_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	if err := scanner.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// NormalizeEmail is the canonical form emails are stored and matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func insertUser(ex execer, email, name string) (int64, error) {
	result, err := ex.Exec(`INSERT INTO users (email, name) VALUES (?, ?)`, NormalizeEmail(email), strings.TrimSpace(name))
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return result.LastInsertId()
}

func (s *UserStore) get(column string, value any) (*model.User, error) {
	u, err := scanUser(s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE `+column+` = ?`, value))
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return u, nil
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	return s.get("id", id)
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	return s.get("email", NormalizeEmail(email))
}

// UpdateName sets the display name and returns the user, or nil if id is
// unknown.
func (s *UserStore) UpdateName(id int64, name string) (*model.User, error) {
	if _, err := s.db.Exec(`UPDATE users SET name = ? WHERE id = ?`, strings.TrimSpace(name), id); err != nil {
		return nil, fmt.Errorf("update user name: %w", err)
	}
	return s.GetByID(id)
}

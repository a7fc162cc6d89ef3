// Package store persists Kodix rows in SQLite. Lookups return (nil, nil)
// when nothing matches.
package store

import (
	"database/sql"
	"errors"
)

var (
	ErrEmailTaken    = errors.New("email already registered")
	ErrAlreadyMember = errors.New("user is already a team member")
	ErrNotMember     = errors.New("user is not a team member")
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}


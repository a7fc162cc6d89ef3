package store

import (
	"database/sql"
	"testing"

	"github.com/kodix/kodix/internal/database"
	"github.com/kodix/kodix/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// signup creates a user with a personal team.
func signup(t *testing.T, db *sql.DB, email string) (*model.User, *model.Team) {
	t.Helper()
	u, team, err := NewTeamStore(db).Signup(email, email)
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return u, team
}

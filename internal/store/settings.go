package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kodix/kodix/internal/ability"
)

// Setting keys stored per team and app.
const (
	KeyUnlockedUntil = "unlocked_until"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the value for key, or "" with ok false when unset.
func (s *SettingsStore) Get(teamID int64, app, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM team_app_settings WHERE team_id = ? AND app_id = ? AND key = ?`,
		teamID, app, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SettingsStore) GetAll(teamID int64, app string) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM team_app_settings WHERE team_id = ? AND app_id = ? ORDER BY key`,
		teamID, app,
	)
	if err != nil {
		return nil, fmt.Errorf("get all settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SettingsStore) Set(teamID int64, app, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO team_app_settings (team_id, app_id, key, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(team_id, app_id, key) DO UPDATE SET value = excluded.value`,
		teamID, app, key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// UnlockedUntil returns the care shift's unlock bound. An unset bound is
// reported as ok false.
func (s *SettingsStore) UnlockedUntil(teamID int64) (time.Time, bool, error) {
	v, ok, err := s.Get(teamID, string(ability.AppCare), KeyUnlockedUntil)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", KeyUnlockedUntil, err)
	}
	return t, true, nil
}

func (s *SettingsStore) SetUnlockedUntil(teamID int64, at time.Time) error {
	return s.Set(teamID, string(ability.AppCare), KeyUnlockedUntil, at.UTC().Format(time.RFC3339Nano))
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kodix/kodix/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.CalendarEvent, error) {
	var e model.CalendarEvent
	err := scanner.Scan(
		&e.ID, &e.TeamID, &e.Title, &e.Description, &e.StartTime,
		&e.RecurrenceRule, &e.Type, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const eventCols = `id, team_id, title, description, start_time, recurrence_rule, type, created_at, updated_at`

func (s *EventStore) Create(teamID int64, title, description string, startTime time.Time, rule string, typ model.TaskType) (*model.CalendarEvent, error) {
	result, err := s.db.Exec(
		`INSERT INTO calendar_events (team_id, title, description, start_time, recurrence_rule, type)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		teamID, title, description, startTime.UTC(), rule, string(typ),
	)
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(teamID, id)
}

func (s *EventStore) GetByID(teamID, id int64) (*model.CalendarEvent, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM calendar_events WHERE team_id = ? AND id = ?`, teamID, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query calendar event: %w", err)
	}
	return e, nil
}

// ListByTeam returns every event of the team ordered by start time.
func (s *EventStore) ListByTeam(teamID int64) ([]model.CalendarEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM calendar_events WHERE team_id = ? ORDER BY start_time ASC, id ASC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("query calendar events: %w", err)
	}
	defer rows.Close()

	events := []model.CalendarEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *EventStore) Update(teamID, id int64, title, description string, startTime time.Time, rule string, typ model.TaskType) (*model.CalendarEvent, error) {
	_, err := s.db.Exec(
		`UPDATE calendar_events
		 SET title = ?, description = ?, start_time = ?, recurrence_rule = ?, type = ?
		 WHERE team_id = ? AND id = ?`,
		title, description, startTime.UTC(), rule, string(typ), teamID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update calendar event: %w", err)
	}
	return s.GetByID(teamID, id)
}

// SetRule replaces only the recurrence rule.
func (s *EventStore) SetRule(teamID, id int64, rule string) error {
	_, err := s.db.Exec(
		`UPDATE calendar_events SET recurrence_rule = ? WHERE team_id = ? AND id = ?`,
		rule, teamID, id,
	)
	if err != nil {
		return fmt.Errorf("set calendar event rule: %w", err)
	}
	return nil
}

func (s *EventStore) Delete(teamID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM calendar_events WHERE team_id = ? AND id = ?`, teamID, id)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

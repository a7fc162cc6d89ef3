package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kodix/kodix/internal/model"
)

type CareTaskStore struct {
	db *sql.DB
}

func NewCareTaskStore(db *sql.DB) *CareTaskStore {
	return &CareTaskStore{db: db}
}

func scanCareTask(scanner interface{ Scan(...any) error }) (*model.CareTask, error) {
	var t model.CareTask
	var doneAt sql.NullTime
	var doneBy, eventID sql.NullInt64
	var fromCalendar int

	err := scanner.Scan(
		&t.ID, &t.TeamID, &t.Title, &t.Details, &t.Type, &t.EventDate,
		&doneAt, &doneBy, &t.CreatedByUserID, &fromCalendar, &eventID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.CreatedFromCalendar = fromCalendar != 0
	if doneAt.Valid {
		t.DoneAt = &doneAt.Time
	}
	if doneBy.Valid {
		t.DoneByUserID = &doneBy.Int64
	}
	if eventID.Valid {
		t.CalendarEventID = &eventID.Int64
	}
	return &t, nil
}

const careTaskCols = `id, team_id, title, details, type, event_date, done_at, done_by_user_id,
	created_by_user_id, created_from_calendar, calendar_event_id, created_at, updated_at`

// Create inserts a manually created task.
func (s *CareTaskStore) Create(teamID int64, title, details string, typ model.TaskType, eventDate time.Time, createdBy int64) (*model.CareTask, error) {
	result, err := s.db.Exec(
		`INSERT INTO care_tasks (team_id, title, details, type, event_date, created_by_user_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		teamID, title, details, string(typ), eventDate.UTC(), createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert care task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(teamID, id)
}

// InsertFromCalendar inserts planned occurrences, skipping those already
// present for the same event and date. It returns the number inserted.
func (s *CareTaskStore) InsertFromCalendar(tasks []model.CareTask) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO care_tasks
		 (team_id, title, details, type, event_date, created_by_user_id, created_from_calendar, calendar_event_id)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range tasks {
		result, err := stmt.Exec(
			t.TeamID, t.Title, t.Details, string(t.Type), t.EventDate.UTC(),
			t.CreatedByUserID, t.CalendarEventID,
		)
		if err != nil {
			return 0, fmt.Errorf("insert calendar task %q: %w", t.Title, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (s *CareTaskStore) GetByID(teamID, id int64) (*model.CareTask, error) {
	row := s.db.QueryRow(`SELECT `+careTaskCols+` FROM care_tasks WHERE team_id = ? AND id = ?`, teamID, id)
	t, err := scanCareTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get care task: %w", err)
	}
	return t, nil
}

// ListRange returns the team's tasks with from <= event_date < to.
func (s *CareTaskStore) ListRange(teamID int64, from, to time.Time) ([]model.CareTask, error) {
	rows, err := s.db.Query(
		`SELECT `+careTaskCols+` FROM care_tasks
		 WHERE team_id = ? AND event_date >= ? AND event_date < ?
		 ORDER BY event_date ASC, id ASC`,
		teamID, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list care tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.CareTask{}
	for rows.Next() {
		t, err := scanCareTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan care task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// SetDone marks the task done by userID at doneAt, or clears it when
// doneAt is nil.
func (s *CareTaskStore) SetDone(teamID, id int64, doneAt *time.Time, userID *int64) error {
	var at sql.NullTime
	var by sql.NullInt64
	if doneAt != nil {
		at = sql.NullTime{Time: doneAt.UTC(), Valid: true}
	}
	if userID != nil {
		by = sql.NullInt64{Int64: *userID, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE care_tasks SET done_at = ?, done_by_user_id = ? WHERE team_id = ? AND id = ?`,
		at, by, teamID, id,
	)
	if err != nil {
		return fmt.Errorf("set care task done: %w", err)
	}
	return nil
}

func (s *CareTaskStore) UpdateDetails(teamID, id int64, details string, typ model.TaskType) error {
	_, err := s.db.Exec(
		`UPDATE care_tasks SET details = ?, type = ? WHERE team_id = ? AND id = ?`,
		details, string(typ), teamID, id,
	)
	if err != nil {
		return fmt.Errorf("update care task: %w", err)
	}
	return nil
}

func (s *CareTaskStore) Delete(teamID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM care_tasks WHERE team_id = ? AND id = ?`, teamID, id)
	if err != nil {
		return fmt.Errorf("delete care task: %w", err)
	}
	return nil
}

// DeletePendingFromEvent removes undone calendar tasks of eventID dated at
// or after from. Used when an event's schedule changes.
func (s *CareTaskStore) DeletePendingFromEvent(teamID, eventID int64, from time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM care_tasks
		 WHERE team_id = ? AND calendar_event_id = ? AND event_date >= ? AND done_at IS NULL`,
		teamID, eventID, from.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete pending event tasks: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

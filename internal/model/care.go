package model

import "time"

type TaskType string

const (
	TaskNormal   TaskType = "NORMAL"
	TaskCritical TaskType = "CRITICAL"
)

func (t TaskType) Valid() bool {
	return t == TaskNormal || t == TaskCritical
}

type CareTask struct {
	ID                  int64      `json:"id"`
	TeamID              int64      `json:"team_id"`
	Title               string     `json:"title"`
	Details             string     `json:"details"`
	Type                TaskType   `json:"type"`
	EventDate           time.Time  `json:"event_date"`
	DoneAt              *time.Time `json:"done_at"`
	DoneByUserID        *int64     `json:"done_by_user_id"`
	CreatedByUserID     int64      `json:"created_by_user_id"`
	CreatedFromCalendar bool       `json:"created_from_calendar"`
	CalendarEventID     *int64     `json:"calendar_event_id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Done reports whether the task has been marked done.
func (t CareTask) Done() bool {
	return t.DoneAt != nil
}

// CalendarEvent is a schedule that care tasks are generated from. An
// empty RecurrenceRule means a single occurrence at StartTime.
type CalendarEvent struct {
	ID             int64     `json:"id"`
	TeamID         int64     `json:"team_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	StartTime      time.Time `json:"start_time"`
	RecurrenceRule string    `json:"recurrence_rule"`
	Type           TaskType  `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (e CalendarEvent) Recurring() bool {
	return e.RecurrenceRule != ""
}

package caretask

import (
	"errors"
	"fmt"
	"time"

	"github.com/kodix/kodix/internal/calendar"
	"github.com/kodix/kodix/internal/model"
)

// Plan expands calendar events into the care tasks they produce within
// [from, to). Events with an invalid rule are skipped and reported in the
// returned error; the tasks of every other event are still returned.
func Plan(events []model.CalendarEvent, from, to time.Time, actorID int64) ([]model.CareTask, error) {
	var tasks []model.CareTask
	var errs []error
	for _, ev := range events {
		occs, err := calendar.Occurrences(ev, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", ev.ID, err))
			continue
		}
		for _, at := range occs {
			eventID := ev.ID
			typ := ev.Type
			if !typ.Valid() {
				typ = model.TaskNormal
			}
			tasks = append(tasks, model.CareTask{
				TeamID:              ev.TeamID,
				Title:               ev.Title,
				Details:             ev.Description,
				Type:                typ,
				EventDate:           at,
				CreatedByUserID:     actorID,
				CreatedFromCalendar: true,
				CalendarEventID:     &eventID,
			})
		}
	}
	return tasks, errors.Join(errs...)
}

// SyncDays is how far ahead of today a sync expands calendar events.
const SyncDays = 14

// SyncWindow is the default range of a sync at now: yesterday through
// SyncDays after today.
func SyncWindow(now time.Time) (time.Time, time.Time) {
	day := startOfDay(now)
	return day.AddDate(0, 0, -1), day.AddDate(0, 0, SyncDays)
}

type EventLister interface {
	ListByTeam(teamID int64) ([]model.CalendarEvent, error)
}

type TaskInserter interface {
	InsertFromCalendar(tasks []model.CareTask) (int, error)
}

// Syncer materializes a team's calendar events as care tasks.
type Syncer struct {
	events EventLister
	tasks  TaskInserter
}

func NewSyncer(events EventLister, tasks TaskInserter) *Syncer {
	return &Syncer{events: events, tasks: tasks}
}

// Sync inserts the tasks for occurrences in [from, to) that do not exist
// yet and returns how many were added. Events with an invalid rule are
// reported in the error after the others are inserted.
func (s *Syncer) Sync(teamID, actorID int64, from, to time.Time) (int, error) {
	events, err := s.events.ListByTeam(teamID)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	tasks, planErr := Plan(events, from, to, actorID)
	n, err := s.tasks.InsertFromCalendar(tasks)
	if err != nil {
		return 0, fmt.Errorf("insert tasks: %w", err)
	}
	return n, planErr
}

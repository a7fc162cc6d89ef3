// Package caretask holds the rules for when a care task may be acted on.
package caretask

import (
	"errors"
	"fmt"
	"time"

	"github.com/kodix/kodix/internal/model"
)

var (
	ErrTaskLocked    = errors.New("care task is locked")
	ErrBeyondHorizon = errors.New("unlock date is beyond the end of tomorrow")
)

// LockedError is returned when acting on a task outside the unlocked
// window. Callers surface it as a warning.
type LockedError struct {
	TaskID        int64
	EventDate     time.Time
	UnlockedUntil time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("care task %d at %s is locked (unlocked until %s)",
		e.TaskID, e.EventDate.Format(time.RFC3339), e.UnlockedUntil.Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrTaskLocked }

// Horizon is the end of tomorrow in now's location. Tasks at or after it
// are always locked.
func Horizon(now time.Time) time.Time {
	return startOfDay(now).AddDate(0, 0, 2)
}

// IsUnlocked reports whether a task scheduled at eventDate is inside the
// horizon.
func IsUnlocked(eventDate, now time.Time) bool {
	return eventDate.Before(Horizon(now))
}

// Check returns a *LockedError unless the task is inside the horizon and
// not after the shift's unlockedUntil bound.
func Check(task model.CareTask, now, unlockedUntil time.Time) error {
	if IsUnlocked(task.EventDate, now) && !task.EventDate.After(unlockedUntil) {
		return nil
	}
	bound := unlockedUntil
	if h := Horizon(now); h.Before(bound) {
		bound = h
	}
	return &LockedError{TaskID: task.ID, EventDate: task.EventDate, UnlockedUntil: bound}
}

// ValidateUnlock checks a requested "unlock up until" bound.
func ValidateUnlock(selected, now time.Time) error {
	if selected.IsZero() {
		return fmt.Errorf("%w: empty date", ErrBeyondHorizon)
	}
	if !selected.Before(Horizon(now)) {
		return ErrBeyondHorizon
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

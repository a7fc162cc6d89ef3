package caretask

import (
	"context"
	"slices"
	"time"

	"github.com/kodix/kodix/internal/model"
	"github.com/kodix/kodix/internal/optimistic"
)

// Loader fetches a team's tasks with event dates in [from, to).
type Loader func(teamID int64, from, to time.Time) ([]model.CareTask, error)

// View is the cached shift board of one team.
type View struct {
	From  time.Time
	To    time.Time
	Tasks []model.CareTask
}

func cloneView(v View) View {
	v.Tasks = slices.Clone(v.Tasks)
	return v
}

// Board serves the current shift window (yesterday through the horizon)
// from memory and applies task edits optimistically.
type Board struct {
	cache *optimistic.Cache[int64, View]
	load  Loader
}

func NewBoard(load Loader) *Board {
	return &Board{cache: optimistic.New[int64, View](cloneView), load: load}
}

// Window is the range the board covers at now.
func Window(now time.Time) (time.Time, time.Time) {
	return startOfDay(now).AddDate(0, 0, -1), Horizon(now)
}

// Tasks returns the board for teamID, reloading when the window moved.
func (b *Board) Tasks(teamID int64, now time.Time) ([]model.CareTask, error) {
	from, to := Window(now)
	if v, ok := b.cache.Get(teamID); ok && v.From.Equal(from) && v.To.Equal(to) {
		return v.Tasks, nil
	}
	tasks, err := b.load(teamID, from, to)
	if err != nil {
		return nil, err
	}
	b.cache.Set(teamID, View{From: from, To: to, Tasks: tasks})
	return slices.Clone(tasks), nil
}

// Update applies change to the cached copy of task taskID, then runs
// commit; a failed commit restores the previous board. change must replace
// pointer fields rather than write through them.
func (b *Board) Update(ctx context.Context, teamID, taskID int64, change func(*model.CareTask), commit func(context.Context) error) error {
	return b.cache.Mutate(ctx, teamID, func(v View) View {
		for i := range v.Tasks {
			if v.Tasks[i].ID == taskID {
				change(&v.Tasks[i])
			}
		}
		return v
	}, commit)
}

// Invalidate drops the cached board of teamID.
func (b *Board) Invalidate(teamID int64) {
	b.cache.Invalidate(teamID)
}

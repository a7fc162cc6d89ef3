package caretask

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kodix/kodix/internal/model"
)

func TestBoardLoadsOncePerWindow(t *testing.T) {
	calls := 0
	b := NewBoard(func(teamID int64, from, to time.Time) ([]model.CareTask, error) {
		calls++
		return []model.CareTask{{ID: 1, TeamID: teamID, EventDate: from.Add(time.Hour)}}, nil
	})
	now := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := b.Tasks(7, now.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("tasks: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	if _, err := b.Tasks(7, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if calls != 2 {
		t.Errorf("loader called %d times after day change, want 2", calls)
	}
}

func TestBoardUpdateRollsBack(t *testing.T) {
	b := NewBoard(func(teamID int64, from, to time.Time) ([]model.CareTask, error) {
		return []model.CareTask{{ID: 1, Details: "before"}}, nil
	})
	now := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	if _, err := b.Tasks(1, now); err != nil {
		t.Fatalf("tasks: %v", err)
	}

	err := b.Update(ctx, 1, 1, func(task *model.CareTask) {
		task.Details = "after"
	}, func(context.Context) error {
		return errors.New("db down")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	tasks, _ := b.Tasks(1, now)
	if tasks[0].Details != "before" {
		t.Errorf("details = %q, want rollback to %q", tasks[0].Details, "before")
	}

	if err := b.Update(ctx, 1, 1, func(task *model.CareTask) {
		task.Details = "after"
	}, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("update: %v", err)
	}
	tasks, _ = b.Tasks(1, now)
	if tasks[0].Details != "after" {
		t.Errorf("details = %q, want %q", tasks[0].Details, "after")
	}
}

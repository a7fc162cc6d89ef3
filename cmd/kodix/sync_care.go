package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/kodix/kodix/internal/calendar"
	"github.com/kodix/kodix/internal/caretask"
	"github.com/kodix/kodix/internal/store"
)

var syncDays int

var syncCareCmd = &cobra.Command{
	Use:   "sync-care",
	Short: "Create care tasks from every team's calendar",
	Long: `Expands each team's calendar events into care tasks from yesterday
through --days after today. Existing occurrences are left untouched, so the
command is safe to run from cron.`,
	RunE: runSyncCare,
}

func init() {
	syncCareCmd.Flags().IntVar(&syncDays, "days", caretask.SyncDays, "Days ahead of today to cover")
}

func runSyncCare(cmd *cobra.Command, args []string) error {
	cfg, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	teams := store.NewTeamStore(db)
	syncer := caretask.NewSyncer(store.NewEventStore(db), store.NewCareTaskStore(db))

	now := time.Now().In(cfg.Timezone)
	from, _ := caretask.SyncWindow(now)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, syncDays)

	ids, err := teams.ListIDs()
	if err != nil {
		return err
	}
	var total int
	var failed []error
	for _, id := range ids {
		team, err := teams.GetByID(id)
		if err != nil || team == nil {
			failed = append(failed, err)
			continue
		}
		n, err := syncer.Sync(id, team.OwnerID, from, to)
		total += n
		switch {
		case errors.Is(err, calendar.ErrInvalidRule):
			logger.Warn("skipped calendar events", "team_id", id, "error", err)
		case err != nil:
			logger.Error("sync team", "team_id", id, "error", err)
			failed = append(failed, err)
		}
	}

	logger.Info("care sync finished", "teams", len(ids), "created", total, "failed", len(failed))
	return errors.Join(failed...)
}

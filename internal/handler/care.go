package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/calendar"
	"github.com/kodix/kodix/internal/caretask"
	"github.com/kodix/kodix/internal/i18n"
	"github.com/kodix/kodix/internal/model"
	"github.com/kodix/kodix/internal/store"
	"github.com/kodix/kodix/internal/websocket"
)

type CareHandler struct {
	taskStore     *store.CareTaskStore
	settingsStore *store.SettingsStore
	board         *caretask.Board
	syncer        *caretask.Syncer
	loc           *time.Location
	broadcaster
	logger *slog.Logger
	now    func() time.Time
}

func NewCareHandler(
	ts *store.CareTaskStore,
	ss *store.SettingsStore,
	board *caretask.Board,
	syncer *caretask.Syncer,
	loc *time.Location,
	hub *websocket.Hub,
	logger *slog.Logger,
) *CareHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &CareHandler{
		taskStore:     ts,
		settingsStore: ss,
		board:         board,
		syncer:        syncer,
		loc:           loc,
		broadcaster:   broadcaster{hub},
		logger:        logger,
		now:           time.Now,
	}
}

func (h *CareHandler) clock() time.Time {
	return h.now().In(h.loc)
}

// unlockedUntil is the team's stored shift bound. A team that never
// unlocked anything is unlocked up to now.
func (h *CareHandler) unlockedUntil(teamID int64, now time.Time) (time.Time, error) {
	t, ok, err := h.settingsStore.UnlockedUntil(teamID)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return now, nil
	}
	return t.In(h.loc), nil
}

type careTaskView struct {
	model.CareTask
	Locked bool `json:"locked"`
}

type careListResponse struct {
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	UnlockedUntil time.Time      `json:"unlocked_until"`
	Tasks         []careTaskView `json:"tasks"`
}

// List returns care tasks with their lock state. Without from/to it serves
// the current shift board.
func (h *CareHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionRead, ability.SubjectCareTask, nil); !ok {
		return
	}
	teamID := auth.TeamID(r.Context())
	now := h.clock()

	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	var (
		from, to time.Time
		tasks    []model.CareTask
		err      error
	)
	if fromStr == "" && toStr == "" {
		from, to = caretask.Window(now)
		tasks, err = h.board.Tasks(teamID, now)
	} else {
		if fromStr == "" || toStr == "" {
			writeError(w, http.StatusBadRequest, "from and to are both required")
			return
		}
		if from, err = parseLocalTime(fromStr, h.loc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		if to, err = parseLocalTime(toStr, h.loc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		if !to.After(from) {
			writeError(w, http.StatusBadRequest, "to must be after from")
			return
		}
		tasks, err = h.taskStore.ListRange(teamID, from, to)
	}
	if err != nil {
		h.logger.Error("list care tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list care tasks")
		return
	}

	until, err := h.unlockedUntil(teamID, now)
	if err != nil {
		h.logger.Error("load unlocked until", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := careListResponse{From: from, To: to, UnlockedUntil: until, Tasks: make([]careTaskView, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, careTaskView{CareTask: t, Locked: caretask.Check(t, now, until) != nil})
	}
	writeJSON(w, http.StatusOK, resp)
}

type careTaskRequest struct {
	Title     string         `json:"title"`
	Details   string         `json:"details"`
	Type      model.TaskType `json:"type"`
	EventDate string         `json:"event_date"`
}

func (h *CareHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionCreate, ability.SubjectCareTask, nil); !ok {
		return
	}
	var req careTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Type == "" {
		req.Type = model.TaskNormal
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "type must be NORMAL or CRITICAL")
		return
	}
	at, err := parseLocalTime(req.EventDate, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event_date")
		return
	}

	task, err := h.taskStore.Create(ac.TeamID, req.Title, req.Details, req.Type, at, ac.UserID)
	if err != nil {
		h.logger.Error("create care task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create care task")
		return
	}
	h.board.Invalidate(ac.TeamID)
	h.broadcast(ac.TeamID, websocket.NewMessage("care_task", "created", task.ID, nil))
	writeJSON(w, http.StatusCreated, task)
}

// loadTask reads the task in the path, answering 400/404/500 itself.
func (h *CareHandler) loadTask(w http.ResponseWriter, r *http.Request) (*model.CareTask, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID")
		return nil, false
	}
	task, err := h.taskStore.GetByID(auth.TeamID(r.Context()), id)
	if err != nil {
		h.logger.Error("get care task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get care task")
		return nil, false
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "care task not found")
		return nil, false
	}
	return task, true
}

// gate answers 409 with a localized warning when task is locked.
func (h *CareHandler) gate(w http.ResponseWriter, r *http.Request, task *model.CareTask, now time.Time) bool {
	until, err := h.unlockedUntil(task.TeamID, now)
	if err != nil {
		h.logger.Error("load unlocked until", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	var locked *caretask.LockedError
	if err := caretask.Check(*task, now, until); errors.As(err, &locked) {
		bound := locked.UnlockedUntil.In(h.loc).Format("02/01/2006 15:04")
		writeWarning(w, i18n.FromRequest(r).T(i18n.TaskLocked, bound))
		return false
	}
	return true
}

type careDetailsRequest struct {
	Details string         `json:"details"`
	Type    model.TaskType `json:"type"`
}

// Update edits a task's details and type.
func (h *CareHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionUpdate, ability.SubjectCareTask, nil); !ok {
		return
	}
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	var req careDetailsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = task.Type
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "type must be NORMAL or CRITICAL")
		return
	}
	if !h.gate(w, r, task, h.clock()) {
		return
	}

	change := func(t *model.CareTask) {
		t.Details = req.Details
		t.Type = req.Type
	}
	err := h.board.Update(r.Context(), task.TeamID, task.ID, change, func(context.Context) error {
		return h.taskStore.UpdateDetails(task.TeamID, task.ID, req.Details, req.Type)
	})
	if err != nil {
		h.logger.Error("update care task", "error", err, "task_id", task.ID)
		writeError(w, http.StatusInternalServerError, "failed to update care task")
		return
	}

	change(task)
	h.broadcast(task.TeamID, websocket.NewMessage("care_task", "updated", task.ID, nil))
	writeJSON(w, http.StatusOK, task)
}

// ToggleDone marks an open task done by the caller, or reopens a done one.
func (h *CareHandler) ToggleDone(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionUpdate, ability.SubjectCareTask, nil); !ok {
		return
	}
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	now := h.clock()
	if !h.gate(w, r, task, now) {
		return
	}

	var doneAt *time.Time
	var doneBy *int64
	if !task.Done() {
		at := now.UTC()
		uid := auth.UserID(r.Context())
		doneAt, doneBy = &at, &uid
	}
	change := func(t *model.CareTask) {
		t.DoneAt = doneAt
		t.DoneByUserID = doneBy
	}
	err := h.board.Update(r.Context(), task.TeamID, task.ID, change, func(context.Context) error {
		return h.taskStore.SetDone(task.TeamID, task.ID, doneAt, doneBy)
	})
	if err != nil {
		h.logger.Error("toggle care task", "error", err, "task_id", task.ID)
		writeError(w, http.StatusInternalServerError, "failed to update care task")
		return
	}

	change(task)
	h.broadcast(task.TeamID, websocket.NewMessage("care_task", "updated", task.ID, map[string]any{"done": task.Done()}))
	writeJSON(w, http.StatusOK, task)
}

func (h *CareHandler) Delete(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	a, ok := resolveAbility(w, r, h.logger, ability.AppCare)
	if !ok {
		return
	}
	if !a.Can(ability.ActionDelete, ability.SubjectCareTask, task) {
		writeError(w, http.StatusForbidden, i18n.FromRequest(r).T(i18n.CannotDeleteTask))
		return
	}

	if err := h.taskStore.Delete(task.TeamID, task.ID); err != nil {
		h.logger.Error("delete care task", "error", err, "task_id", task.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete care task")
		return
	}
	h.board.Invalidate(task.TeamID)
	h.broadcast(task.TeamID, websocket.NewMessage("care_task", "deleted", task.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

type unlockRequest struct {
	UnlockedUntil string `json:"unlocked_until"`
}

// Unlock moves the shift's unlock bound. A bare date unlocks through the
// end of that day.
func (h *CareHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionUnlock, ability.SubjectCareShift, nil); !ok {
		return
	}
	var req unlockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := i18n.FromRequest(r)
	now := h.clock()

	var selected time.Time
	if req.UnlockedUntil != "" {
		t, err := time.Parse(time.RFC3339, req.UnlockedUntil)
		if err != nil {
			day, derr := time.ParseInLocation("2006-01-02", req.UnlockedUntil, h.loc)
			if derr != nil {
				writeError(w, http.StatusBadRequest, "invalid unlocked_until")
				return
			}
			t = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		selected = t
	}
	if err := caretask.ValidateUnlock(selected, now); err != nil {
		writeError(w, http.StatusBadRequest, p.T(i18n.UnlockBeyondLimit))
		return
	}

	teamID := auth.TeamID(r.Context())
	if err := h.settingsStore.SetUnlockedUntil(teamID, selected); err != nil {
		h.logger.Error("set unlocked until", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to unlock")
		return
	}
	h.logger.Info("care shift unlocked", "team_id", teamID, "until", selected)
	h.broadcast(teamID, websocket.NewMessage("care_shift", "updated", 0, map[string]any{"unlocked_until": selected}))
	writeJSON(w, http.StatusOK, map[string]time.Time{"unlocked_until": selected.In(h.loc)})
}

type syncRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Sync materializes calendar events as care tasks. Without a range it
// covers caretask.SyncWindow.
func (h *CareHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionCreate, ability.SubjectCalendarEvent, nil); !ok {
		return
	}
	var req syncRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	ac, _ := auth.FromContext(r.Context())

	from, to := caretask.SyncWindow(h.clock())
	var err error
	if req.From != "" {
		if from, err = parseLocalTime(req.From, h.loc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
	}
	if req.To != "" {
		if to, err = parseLocalTime(req.To, h.loc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "to must be after from")
		return
	}

	n, ok := h.sync(ac.TeamID, ac.TeamOwnerID, from, to)
	if !ok {
		writeError(w, http.StatusInternalServerError, "failed to sync care tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": n})
}

// sync runs the syncer and refreshes clients. Events with a bad rule are
// logged and skipped.
func (h *CareHandler) sync(teamID, actorID int64, from, to time.Time) (int, bool) {
	n, err := h.syncer.Sync(teamID, actorID, from, to)
	if err != nil && !errors.Is(err, calendar.ErrInvalidRule) {
		h.logger.Error("sync care tasks", "error", err, "team_id", teamID)
		return 0, false
	}
	if err != nil {
		h.logger.Warn("skipped calendar events", "error", err, "team_id", teamID)
	}
	if n > 0 {
		h.board.Invalidate(teamID)
		h.broadcast(teamID, websocket.NewMessage("care_task", "synced", 0, map[string]any{"created": n}))
	}
	return n, true
}

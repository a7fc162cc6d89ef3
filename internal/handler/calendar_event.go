package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/calendar"
	"github.com/kodix/kodix/internal/caretask"
	"github.com/kodix/kodix/internal/model"
	"github.com/kodix/kodix/internal/store"
	"github.com/kodix/kodix/internal/websocket"
)

// CalendarEventHandler manages the calendar that feeds care tasks. Every
// schedule change drops the event's pending tasks and re-syncs them
// through the care handler.
type CalendarEventHandler struct {
	eventStore *store.EventStore
	taskStore  *store.CareTaskStore
	care       *CareHandler
	logger     *slog.Logger
}

func NewCalendarEventHandler(es *store.EventStore, ts *store.CareTaskStore, care *CareHandler, logger *slog.Logger) *CalendarEventHandler {
	return &CalendarEventHandler{eventStore: es, taskStore: ts, care: care, logger: logger}
}

type eventRequest struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	StartTime      string         `json:"start_time"`
	RecurrenceRule string         `json:"recurrence_rule"`
	Type           model.TaskType `json:"type"`
}

func (h *CalendarEventHandler) parseAndValidate(w http.ResponseWriter, r *http.Request) (*eventRequest, time.Time, bool) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return nil, time.Time{}, false
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return nil, time.Time{}, false
	}
	if req.Type == "" {
		req.Type = model.TaskNormal
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "type must be NORMAL or CRITICAL")
		return nil, time.Time{}, false
	}

	startTime, err := parseLocalTime(req.StartTime, h.care.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_time must be RFC3339 or YYYY-MM-DD format")
		return nil, time.Time{}, false
	}

	req.RecurrenceRule = strings.TrimPrefix(strings.TrimSpace(req.RecurrenceRule), "RRULE:")
	if err := calendar.Validate(req.RecurrenceRule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, time.Time{}, false
	}

	return &req, startTime, true
}

func (h *CalendarEventHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionRead, ability.SubjectCalendarEvent, nil); !ok {
		return
	}
	events, err := h.eventStore.ListByTeam(auth.TeamID(r.Context()))
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *CalendarEventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionCreate, ability.SubjectCalendarEvent, nil); !ok {
		return
	}
	req, startTime, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}
	ac, _ := auth.FromContext(r.Context())

	event, err := h.eventStore.Create(ac.TeamID, req.Title, req.Description, startTime, req.RecurrenceRule, req.Type)
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	h.care.broadcast(ac.TeamID, websocket.NewMessage("calendar_event", "created", event.ID, nil))
	h.resync(ac)
	writeJSON(w, http.StatusCreated, event)
}

// loadEvent reads the event in the path, answering 400/404/500 itself.
func (h *CalendarEventHandler) loadEvent(w http.ResponseWriter, r *http.Request) (*model.CalendarEvent, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	event, err := h.eventStore.GetByID(auth.TeamID(r.Context()), id)
	if err != nil {
		h.logger.Error("get event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return nil, false
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return nil, false
	}
	return event, true
}

type eventUpdateResponse struct {
	Event    *model.CalendarEvent `json:"event"`
	Previous *model.CalendarEvent `json:"previous,omitempty"`
}

// Update edits an event. With scope=following and a recurring event, the
// old series ends before start_time and a new event carries the change
// from there on; otherwise the whole series is rewritten.
func (h *CalendarEventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionUpdate, ability.SubjectCalendarEvent, nil); !ok {
		return
	}
	existing, ok := h.loadEvent(w, r)
	if !ok {
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "all"
	}
	if scope != "all" && scope != "following" {
		writeError(w, http.StatusBadRequest, "scope must be all or following")
		return
	}
	req, startTime, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}
	ac, _ := auth.FromContext(r.Context())

	if scope == "following" && existing.Recurring() {
		h.splitFollowing(w, ac, existing, req, startTime)
		return
	}

	event, err := h.eventStore.Update(ac.TeamID, existing.ID, req.Title, req.Description, startTime, req.RecurrenceRule, req.Type)
	if err != nil {
		h.logger.Error("update event", "error", err, "event_id", existing.ID)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	if !h.dropPending(w, ac.TeamID, existing.ID) {
		return
	}

	h.care.broadcast(ac.TeamID, websocket.NewMessage("calendar_event", "updated", event.ID, nil))
	h.resync(ac)
	writeJSON(w, http.StatusOK, eventUpdateResponse{Event: event})
}

func (h *CalendarEventHandler) splitFollowing(w http.ResponseWriter, ac auth.AuthContext, existing *model.CalendarEvent, req *eventRequest, at time.Time) {
	rule, err := calendar.Truncate(*existing, at)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.eventStore.SetRule(ac.TeamID, existing.ID, rule); err != nil {
		h.logger.Error("truncate event", "error", err, "event_id", existing.ID)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	if _, err := h.taskStore.DeletePendingFromEvent(ac.TeamID, existing.ID, at); err != nil {
		h.logger.Error("drop pending tasks", "error", err, "event_id", existing.ID)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	event, err := h.eventStore.Create(ac.TeamID, req.Title, req.Description, at, req.RecurrenceRule, req.Type)
	if err != nil {
		h.logger.Error("create split event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	previous := *existing
	previous.RecurrenceRule = rule

	h.care.broadcast(ac.TeamID, websocket.NewMessage("calendar_event", "updated", existing.ID, nil))
	h.care.broadcast(ac.TeamID, websocket.NewMessage("calendar_event", "created", event.ID, nil))
	h.resync(ac)
	writeJSON(w, http.StatusOK, eventUpdateResponse{Event: event, Previous: &previous})
}

// Delete removes an event and its pending future tasks. Done and past
// tasks stay on the board.
func (h *CalendarEventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCare, ability.ActionDelete, ability.SubjectCalendarEvent, nil); !ok {
		return
	}
	existing, ok := h.loadEvent(w, r)
	if !ok {
		return
	}
	teamID := existing.TeamID

	if !h.dropPending(w, teamID, existing.ID) {
		return
	}
	if err := h.eventStore.Delete(teamID, existing.ID); err != nil {
		h.logger.Error("delete event", "error", err, "event_id", existing.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	h.care.board.Invalidate(teamID)
	h.care.broadcast(teamID, websocket.NewMessage("calendar_event", "deleted", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// dropPending deletes the event's open tasks from now on.
func (h *CalendarEventHandler) dropPending(w http.ResponseWriter, teamID, eventID int64) bool {
	if _, err := h.taskStore.DeletePendingFromEvent(teamID, eventID, h.care.clock()); err != nil {
		h.logger.Error("drop pending tasks", "error", err, "event_id", eventID)
		writeError(w, http.StatusInternalServerError, "failed to update care tasks")
		return false
	}
	return true
}

func (h *CalendarEventHandler) resync(ac auth.AuthContext) {
	from, to := caretask.SyncWindow(h.care.clock())
	h.care.board.Invalidate(ac.TeamID)
	h.care.sync(ac.TeamID, ac.TeamOwnerID, from, to)
}

// Package handler serves the JSON API.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/i18n"
	"github.com/kodix/kodix/internal/websocket"
)

// Mailer delivers login codes and invitations.
type Mailer interface {
	SendLoginCode(ctx context.Context, p *i18n.Printer, to, code string) error
	SendInvitation(ctx context.Context, p *i18n.Printer, to, teamName, inviterName, invitationID, code string) error
}

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeWarning(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusConflict, map[string]string{"warning": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseIDParam(r *http.Request) (int64, error) {
	return parseInt64Param(r, "id")
}

func parseInt64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// parseLocalTime reads an RFC3339 timestamp or a bare date in loc.
func parseLocalTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

func validEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}

// resolveAbility loads the caller's ability in app. A role table the
// resolver rejects is a configuration error and answers 500.
func resolveAbility(w http.ResponseWriter, r *http.Request, logger *slog.Logger, app ability.App) (*ability.Ability, bool) {
	a, err := auth.Ability(r.Context(), app)
	if err != nil {
		logger.Error("resolve ability", "error", err, "app", app, "team_id", auth.TeamID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return a, true
}

// authorize answers 403 unless the caller may perform action on subject.
func authorize(w http.ResponseWriter, r *http.Request, logger *slog.Logger, app ability.App, action ability.Action, subject ability.Subject, obj any) (*ability.Ability, bool) {
	a, ok := resolveAbility(w, r, logger, app)
	if !ok {
		return nil, false
	}
	if !a.Can(action, subject, obj) {
		writeError(w, http.StatusForbidden, i18n.FromRequest(r).T(i18n.Forbidden))
		return nil, false
	}
	return a, true
}

// broadcaster sends change notifications to a team's websocket clients.
type broadcaster struct {
	hub *websocket.Hub
}

func (b broadcaster) broadcast(teamID int64, msg websocket.Message) {
	if b.hub != nil {
		b.hub.Broadcast(teamID, msg)
	}
}

// disconnect closes userID's live feeds on teamID.
func (b broadcaster) disconnect(teamID, userID int64) {
	if b.hub != nil {
		b.hub.Disconnect(teamID, userID)
	}
}

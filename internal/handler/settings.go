package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/i18n"
	"github.com/kodix/kodix/internal/store"
	"github.com/kodix/kodix/internal/websocket"
)

const maxNameLen = 100

// SettingsHandler covers team and profile settings and the per-app
// key/value settings of the active team.
type SettingsHandler struct {
	teamStore     *store.TeamStore
	userStore     *store.UserStore
	settingsStore *store.SettingsStore
	broadcaster
	logger *slog.Logger
}

func NewSettingsHandler(ts *store.TeamStore, us *store.UserStore, ss *store.SettingsStore, hub *websocket.Hub, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{teamStore: ts, userStore: us, settingsStore: ss, broadcaster: broadcaster{hub}, logger: logger}
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *SettingsHandler) decodeName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return "", false
	}
	if len(name) > maxNameLen {
		writeError(w, http.StatusBadRequest, "name is too long")
		return "", false
	}
	return name, true
}

// CreateTeam makes a new team owned by the caller. The session stays on
// its current team until the caller switches.
func (h *SettingsHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	name, ok := h.decodeName(w, r)
	if !ok {
		return
	}
	uid := auth.UserID(r.Context())
	team, err := h.teamStore.Create(uid, name)
	if err != nil {
		h.logger.Error("create team", "error", err, "user_id", uid)
		writeError(w, http.StatusInternalServerError, "failed to create team")
		return
	}
	h.logger.Info("team created", "team_id", team.ID, "owner_id", uid)
	writeJSON(w, http.StatusCreated, team)
}

// RenameTeam renames the active team. Owner only.
func (h *SettingsHandler) RenameTeam(w http.ResponseWriter, r *http.Request) {
	a, ok := resolveAbility(w, r, h.logger, ability.AppTeam)
	if !ok {
		return
	}
	if !a.Can(ability.ActionUpdate, ability.SubjectTeam, nil) {
		writeError(w, http.StatusForbidden, i18n.FromRequest(r).T(i18n.NotTeamOwner))
		return
	}
	name, ok := h.decodeName(w, r)
	if !ok {
		return
	}
	teamID := auth.TeamID(r.Context())
	team, err := h.teamStore.Rename(teamID, name)
	if err != nil {
		h.logger.Error("rename team", "error", err, "team_id", teamID)
		writeError(w, http.StatusInternalServerError, "failed to rename team")
		return
	}
	h.broadcast(teamID, websocket.NewMessage("team", "updated", teamID, nil))
	writeJSON(w, http.StatusOK, team)
}

// UpdateProfile changes the caller's display name.
func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	name, ok := h.decodeName(w, r)
	if !ok {
		return
	}
	uid := auth.UserID(r.Context())
	user, err := h.userStore.UpdateName(uid, name)
	if err != nil || user == nil {
		h.logger.Error("update profile", "error", err, "user_id", uid)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type appSettingsResponse struct {
	App      string            `json:"app"`
	Settings map[string]string `json:"settings"`
	Roles    []ability.Role    `json:"roles"`
}

// AppSettings returns the active team's settings for one app. Callers
// need at least one role in that app.
func (h *SettingsHandler) AppSettings(w http.ResponseWriter, r *http.Request) {
	app := ability.App(r.PathValue("app"))
	if _, err := ability.ParseRoles(app, nil); err != nil {
		writeError(w, http.StatusNotFound, "unknown app")
		return
	}
	a, ok := resolveAbility(w, r, h.logger, app)
	if !ok {
		return
	}
	if len(a.Roles()) == 0 {
		writeError(w, http.StatusForbidden, i18n.FromRequest(r).T(i18n.Forbidden))
		return
	}

	teamID := auth.TeamID(r.Context())
	settings, err := h.settingsStore.GetAll(teamID, string(app))
	if err != nil {
		h.logger.Error("get app settings", "error", err, "team_id", teamID, "app", app)
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, appSettingsResponse{App: string(app), Settings: settings, Roles: a.Roles()})
}

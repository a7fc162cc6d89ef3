package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/i18n"
	"github.com/kodix/kodix/internal/model"
	"github.com/kodix/kodix/internal/store"
	"github.com/kodix/kodix/internal/websocket"
)

type TeamHandler struct {
	teamStore    *store.TeamStore
	sessionStore *store.SessionStore
	broadcaster
	logger *slog.Logger
}

func NewTeamHandler(ts *store.TeamStore, ss *store.SessionStore, hub *websocket.Hub, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{teamStore: ts, sessionStore: ss, broadcaster: broadcaster{hub}, logger: logger}
}

type teamsResponse struct {
	ActiveTeamID int64        `json:"active_team_id"`
	Teams        []model.Team `json:"teams"`
}

func (h *TeamHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	teams, err := h.teamStore.ListForUser(ac.UserID)
	if err != nil {
		h.logger.Error("list teams", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list teams")
		return
	}
	if teams == nil {
		teams = []model.Team{}
	}
	writeJSON(w, http.StatusOK, teamsResponse{ActiveTeamID: ac.TeamID, Teams: teams})
}

type switchTeamRequest struct {
	TeamID int64 `json:"team_id"`
}

// Switch changes the session's active team. The caller must be a member.
func (h *TeamHandler) Switch(w http.ResponseWriter, r *http.Request) {
	var req switchTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ac, _ := auth.FromContext(r.Context())
	member, err := h.teamStore.IsMember(req.TeamID, ac.UserID)
	if err != nil {
		h.logger.Error("check membership", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, i18n.FromRequest(r).T(i18n.Forbidden))
		return
	}
	if err := h.sessionStore.UpdateTeamID(ac.SessionID, req.TeamID); err != nil {
		h.logger.Error("switch team", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to switch team")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"active_team_id": req.TeamID})
}

func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppTeam, ability.ActionRead, ability.SubjectTeamMember, nil); !ok {
		return
	}
	members, err := h.teamStore.ListMembers(auth.TeamID(r.Context()))
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	if members == nil {
		members = []model.TeamMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, err := parseInt64Param(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	ac, _ := auth.FromContext(r.Context())
	p := i18n.FromRequest(r)

	a, ok := resolveAbility(w, r, h.logger, ability.AppTeam)
	if !ok {
		return
	}
	if !a.Can(ability.ActionRemoveMember, ability.SubjectTeamMember, nil) {
		writeError(w, http.StatusForbidden, p.T(i18n.NotTeamOwner))
		return
	}
	if !a.Can(ability.ActionRemoveMember, ability.SubjectTeamMember, ability.MemberTarget{UserID: userID}) {
		writeError(w, http.StatusBadRequest, p.T(i18n.OwnerNotRemovable))
		return
	}

	if err := h.teamStore.RemoveMember(ac.TeamID, userID); err != nil {
		if errors.Is(err, store.ErrNotMember) {
			writeError(w, http.StatusNotFound, "member not found")
			return
		}
		h.logger.Error("remove member", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}

	h.logger.Info("member removed", "team_id", ac.TeamID, "user_id", userID)
	h.disconnect(ac.TeamID, userID)
	h.broadcast(ac.TeamID, websocket.NewMessage("team_member", "deleted", userID, nil))
	w.WriteHeader(http.StatusNoContent)
}

type updateRolesRequest struct {
	App   string   `json:"app"`
	Roles []string `json:"roles"`
}

// UpdateRoles replaces a member's roles in one app. The owner may not drop
// their own ADMIN role.
func (h *TeamHandler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := parseInt64Param(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	var req updateRolesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ac, _ := auth.FromContext(r.Context())
	p := i18n.FromRequest(r)

	app := ability.App(req.App)
	roles, err := ability.ParseRoles(app, req.Roles)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, ok := resolveAbility(w, r, h.logger, ability.AppTeam)
	if !ok {
		return
	}
	if !a.Can(ability.ActionUpdateRole, ability.SubjectTeamMember, nil) {
		writeError(w, http.StatusForbidden, p.T(i18n.NotTeamOwner))
		return
	}
	change := ability.RoleChange{TargetUserID: userID, App: app, Roles: roles}
	if !a.Can(ability.ActionUpdateRole, ability.SubjectTeamMember, change) {
		writeError(w, http.StatusBadRequest, p.T(i18n.OwnerKeepsAdmin))
		return
	}

	if err := h.teamStore.SetRoles(ac.TeamID, userID, app, roles); err != nil {
		if errors.Is(err, store.ErrNotMember) {
			writeError(w, http.StatusNotFound, "member not found")
			return
		}
		h.logger.Error("set roles", "error", err, "user_id", userID, "app", app)
		writeError(w, http.StatusInternalServerError, "failed to update roles")
		return
	}

	member, err := h.teamStore.GetMember(ac.TeamID, userID)
	if err != nil || member == nil {
		h.logger.Error("reload member", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.broadcast(ac.TeamID, websocket.NewMessage("team_member", "updated", userID, map[string]any{"app": req.App}))
	writeJSON(w, http.StatusOK, member)
}

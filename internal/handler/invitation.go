package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/i18n"
	"github.com/kodix/kodix/internal/model"
	"github.com/kodix/kodix/internal/store"
	"github.com/kodix/kodix/internal/websocket"
)

type InvitationHandler struct {
	invitationStore *store.InvitationStore
	teamStore       *store.TeamStore
	userStore       *store.UserStore
	sessionStore    *store.SessionStore
	mailer          Mailer
	broadcaster
	logger *slog.Logger
	now    func() time.Time
}

func NewInvitationHandler(
	is *store.InvitationStore,
	ts *store.TeamStore,
	us *store.UserStore,
	ss *store.SessionStore,
	mailer Mailer,
	hub *websocket.Hub,
	logger *slog.Logger,
) *InvitationHandler {
	return &InvitationHandler{
		invitationStore: is,
		teamStore:       ts,
		userStore:       us,
		sessionStore:    ss,
		mailer:          mailer,
		broadcaster:     broadcaster{hub},
		logger:          logger,
		now:             time.Now,
	}
}

// List returns the active team's pending invitations.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppTeam, ability.ActionRead, ability.SubjectInvitation, nil); !ok {
		return
	}
	invs, err := h.invitationStore.ListByTeam(auth.TeamID(r.Context()))
	if err != nil {
		h.logger.Error("list invitations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list invitations")
		return
	}
	if invs == nil {
		invs = []model.Invitation{}
	}
	writeJSON(w, http.StatusOK, invs)
}

// ListMine returns pending invitations addressed to the caller's email.
func (h *InvitationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	invs, err := h.invitationStore.ListPendingByEmail(user.Email)
	if err != nil {
		h.logger.Error("list my invitations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list invitations")
		return
	}
	if invs == nil {
		invs = []model.Invitation{}
	}
	writeJSON(w, http.StatusOK, invs)
}

type inviteRequest struct {
	Emails []string `json:"emails"`
}

type inviteResponse struct {
	Message     string             `json:"message"`
	Invitations []model.Invitation `json:"invitations"`
	Skipped     []string           `json:"skipped"`
}

// Invite creates one invitation per email and mails each its code. Emails
// that already belong to a member or already have an invitation are
// skipped.
func (h *InvitationHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := i18n.FromRequest(r)
	ac, _ := auth.FromContext(r.Context())

	a, ok := resolveAbility(w, r, h.logger, ability.AppTeam)
	if !ok {
		return
	}
	if !a.Can(ability.ActionInvite, ability.SubjectInvitation, nil) {
		writeError(w, http.StatusForbidden, p.T(i18n.NotTeamOwner))
		return
	}

	seen := make(map[string]bool)
	var emails []string
	for _, e := range req.Emails {
		e = store.NormalizeEmail(e)
		if e == "" || seen[e] {
			continue
		}
		if !validEmail(e) {
			writeError(w, http.StatusBadRequest, "invalid email: "+e)
			return
		}
		seen[e] = true
		emails = append(emails, e)
	}
	if len(emails) == 0 {
		writeError(w, http.StatusBadRequest, "at least one email is required")
		return
	}

	team, err := h.teamStore.GetByID(ac.TeamID)
	if err != nil || team == nil {
		h.logger.Error("load team", "error", err, "team_id", ac.TeamID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	inviter, err := h.userStore.GetByID(ac.UserID)
	if err != nil || inviter == nil {
		h.logger.Error("load inviter", "error", err, "user_id", ac.UserID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := inviteResponse{Invitations: []model.Invitation{}, Skipped: []string{}}
	for _, e := range emails {
		member, err := h.teamStore.IsMemberByEmail(ac.TeamID, e)
		if err != nil {
			h.logger.Error("check member email", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if member {
			resp.Skipped = append(resp.Skipped, e)
			continue
		}

		code, err := auth.GenerateCode()
		if err != nil {
			h.logger.Error("generate invitation code", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		hash, err := auth.HashCode(code)
		if err != nil {
			h.logger.Error("hash invitation code", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		inv, err := h.invitationStore.Create(ac.TeamID, e, ac.UserID, hash)
		if errors.Is(err, store.ErrAlreadyInvited) {
			resp.Skipped = append(resp.Skipped, e)
			continue
		}
		if err != nil {
			h.logger.Error("create invitation", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create invitation")
			return
		}

		if err := h.mailer.SendInvitation(r.Context(), p, e, team.Name, inviter.Name, inv.ID, code); err != nil {
			h.logger.Error("send invitation", "error", err, "invitation_id", inv.ID)
		}
		resp.Invitations = append(resp.Invitations, *inv)
		h.broadcast(ac.TeamID, websocket.NewRefMessage("invitation", "created", inv.ID))
	}

	resp.Message = p.T(i18n.InvitationsSent, len(resp.Invitations))
	h.logger.Info("invitations sent", "team_id", ac.TeamID, "count", len(resp.Invitations), "skipped", len(resp.Skipped))
	writeJSON(w, http.StatusCreated, resp)
}

// Delete revokes an invitation of the active team.
func (h *InvitationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppTeam, ability.ActionDeleteInvitation, ability.SubjectInvitation, nil); !ok {
		return
	}
	teamID := auth.TeamID(r.Context())
	id := r.PathValue("id")

	inv, err := h.invitationStore.GetByID(id)
	if err != nil {
		h.logger.Error("get invitation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if inv == nil || inv.TeamID != teamID {
		writeError(w, http.StatusNotFound, "invitation not found")
		return
	}
	if err := h.invitationStore.Delete(id); err != nil {
		h.logger.Error("delete invitation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete invitation")
		return
	}
	h.broadcast(teamID, websocket.NewRefMessage("invitation", "deleted", id))
	w.WriteHeader(http.StatusNoContent)
}

type acceptInvitationRequest struct {
	Code string `json:"code"`
}

// Accept joins the invitation's team and makes it the session's active
// team. The invitation must be addressed to the caller.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := i18n.FromRequest(r)
	ac, _ := auth.FromContext(r.Context())

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	inv, ok := h.pendingFor(w, r, user)
	if !ok {
		return
	}
	if !auth.CheckCode(inv.CodeHash, strings.TrimSpace(req.Code)) {
		writeError(w, http.StatusBadRequest, p.T(i18n.InvalidInvitation))
		return
	}

	if err := h.invitationStore.Accept(inv.ID, user.ID); err != nil {
		if errors.Is(err, store.ErrAlreadyMember) {
			writeError(w, http.StatusBadRequest, p.T(i18n.AlreadyMember, user.Email))
			return
		}
		h.logger.Error("accept invitation", "error", err, "invitation_id", inv.ID)
		writeError(w, http.StatusInternalServerError, "failed to accept invitation")
		return
	}
	if err := h.sessionStore.UpdateTeamID(ac.SessionID, inv.TeamID); err != nil {
		h.logger.Error("switch to invited team", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("invitation accepted", "team_id", inv.TeamID, "user_id", user.ID)
	h.broadcast(inv.TeamID, websocket.NewMessage("team_member", "created", user.ID, nil))
	writeJSON(w, http.StatusOK, map[string]int64{"active_team_id": inv.TeamID})
}

// Decline deletes an invitation addressed to the caller.
func (h *InvitationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	inv, ok := h.pendingFor(w, r, user)
	if !ok {
		return
	}
	if err := h.invitationStore.Delete(inv.ID); err != nil {
		h.logger.Error("decline invitation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to decline invitation")
		return
	}
	h.broadcast(inv.TeamID, websocket.NewRefMessage("invitation", "deleted", inv.ID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *InvitationHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	uid := auth.UserID(r.Context())
	user, err := h.userStore.GetByID(uid)
	if err != nil || user == nil {
		h.logger.Error("load user", "error", err, "user_id", uid)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return user, true
}

// pendingFor loads the invitation in the path and checks it is unexpired
// and addressed to user.
func (h *InvitationHandler) pendingFor(w http.ResponseWriter, r *http.Request, user *model.User) (*model.Invitation, bool) {
	inv, err := h.invitationStore.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get invitation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if inv == nil || inv.Accepted || !inv.ExpiresAt.After(h.now()) || inv.Email != store.NormalizeEmail(user.Email) {
		writeError(w, http.StatusBadRequest, i18n.FromRequest(r).T(i18n.InvalidInvitation))
		return nil, false
	}
	return inv, true
}

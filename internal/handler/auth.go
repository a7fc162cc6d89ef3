package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/i18n"
	"github.com/kodix/kodix/internal/middleware"
	"github.com/kodix/kodix/internal/model"
	"github.com/kodix/kodix/internal/store"
)

type AuthHandler struct {
	userStore      *store.UserStore
	teamStore      *store.TeamStore
	sessionStore   *store.SessionStore
	loginCodeStore *store.LoginCodeStore
	mailer         Mailer
	sessionTTL     time.Duration
	logger         *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ts *store.TeamStore,
	ss *store.SessionStore,
	lcs *store.LoginCodeStore,
	mailer Mailer,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:      us,
		teamStore:      ts,
		sessionStore:   ss,
		loginCodeStore: lcs,
		mailer:         mailer,
		sessionTTL:     sessionTTL,
		logger:         logger,
	}
}

type signupRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Signup creates the user with a personal team and mails a login code. An
// email that is already registered gets a code too, so the response never
// reveals whether an account exists.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = store.NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	user, team, err := h.teamStore.Signup(req.Email, req.Name)
	switch {
	case errors.Is(err, store.ErrEmailTaken):
	case err != nil:
		h.logger.Error("signup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	default:
		h.logger.Info("user signed up", "user_id", user.ID, "team_id", team.ID)
	}

	h.sendCode(r, req.Email)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

type loginRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = store.NormalizeEmail(req.Email)
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	// Always answer the same way to prevent user enumeration.
	defer writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		return
	}
	if user == nil {
		return
	}
	h.sendCode(r, req.Email)
}

func (h *AuthHandler) sendCode(r *http.Request, email string) {
	code, err := auth.GenerateCode()
	if err != nil {
		h.logger.Error("generate login code", "error", err)
		return
	}
	hash, err := auth.HashCode(code)
	if err != nil {
		h.logger.Error("hash login code", "error", err)
		return
	}
	if _, err := h.loginCodeStore.Create(email, hash); err != nil {
		h.logger.Error("create login code", "error", err)
		return
	}
	if err := h.mailer.SendLoginCode(r.Context(), i18n.FromRequest(r), email, code); err != nil {
		h.logger.Error("send login code", "error", err)
	}
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// validateCode checks code against the latest login code for email,
// counting failed attempts. It returns a message key on failure.
func (h *AuthHandler) validateCode(email, code string) (*model.LoginCode, string, error) {
	latest, err := h.loginCodeStore.GetLatestByEmail(email)
	if err != nil {
		return nil, "", err
	}
	if latest == nil {
		return nil, i18n.InvalidCode, nil
	}
	if latest.Attempts >= store.MaxLoginCodeAttempts {
		return nil, i18n.TooManyAttempts, h.loginCodeStore.MarkUsed(latest.ID)
	}

	if !auth.CheckCode(latest.CodeHash, code) {
		attempts, err := h.loginCodeStore.IncrementAttempts(latest.ID)
		if err != nil {
			return nil, "", err
		}
		if attempts >= store.MaxLoginCodeAttempts {
			return nil, i18n.TooManyAttempts, h.loginCodeStore.MarkUsed(latest.ID)
		}
		return nil, i18n.InvalidCode, nil
	}

	if err := h.loginCodeStore.MarkUsed(latest.ID); err != nil {
		return nil, "", err
	}
	return latest, "", nil
}

type sessionResponse struct {
	Token  string     `json:"token"`
	User   model.User `json:"user"`
	TeamID int64      `json:"team_id"`
}

// Verify exchanges a login code for a session in the user's own team. The
// token is returned in the body and set as a cookie.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = store.NormalizeEmail(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	p := i18n.FromRequest(r)
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, p.T(i18n.InvalidCode))
		return
	}

	_, msg, err := h.validateCode(req.Email, req.Code)
	if err != nil {
		h.logger.Error("validate login code", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, p.T(msg))
		return
	}

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil || user == nil {
		h.logger.Error("verify user lookup", "error", err)
		writeError(w, http.StatusBadRequest, p.T(i18n.InvalidCode))
		return
	}

	teams, err := h.teamStore.ListForUser(user.ID)
	if err != nil || len(teams) == 0 {
		h.logger.Error("verify teams", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "no team found")
		return
	}
	teamID := teams[0].ID
	for _, t := range teams {
		if t.OwnerID == user.ID {
			teamID = t.ID
			break
		}
	}

	sess, err := h.sessionStore.Create(user.ID, teamID, h.sessionTTL)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	writeJSON(w, http.StatusOK, sessionResponse{Token: sess.Token, User: *user, TeamID: teamID})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessionStore.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	User  model.User          `json:"user"`
	Team  model.Team          `json:"team"`
	Roles map[string][]string `json:"roles"`
}

// Me returns the caller with their active team and app roles.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil || user == nil {
		h.logger.Error("load user", "error", err, "user_id", ac.UserID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	team, err := h.teamStore.GetByID(ac.TeamID)
	if err != nil || team == nil {
		h.logger.Error("load team", "error", err, "team_id", ac.TeamID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	roles := make(map[string][]string, len(ac.Roles))
	for app, rs := range ac.Roles {
		for _, role := range rs {
			roles[string(app)] = append(roles[string(app)], string(role))
		}
	}
	writeJSON(w, http.StatusOK, meResponse{User: *user, Team: *team, Roles: roles})
}

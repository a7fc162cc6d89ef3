package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/store"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "kodix_session"

// SessionToken returns the token from the session cookie or, failing
// that, an "Authorization: Bearer" header.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// RequireAuth resolves the session, checks the user still belongs to the
// session's active team, and populates AuthContext with the team owner and
// the user's app roles. Unauthenticated requests get 401.
func RequireAuth(sessions *store.SessionStore, teams *store.TeamStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			sess, err := sessions.GetByToken(token)
			if err != nil {
				logger.Error("load session", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if sess == nil {
				unauthorized(w)
				return
			}

			team, err := teams.GetByID(sess.TeamID)
			if err != nil {
				logger.Error("load session team", "error", err, "team_id", sess.TeamID)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			member, err := teams.IsMember(sess.TeamID, sess.UserID)
			if err != nil {
				logger.Error("check membership", "error", err, "team_id", sess.TeamID)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if team == nil || !member {
				unauthorized(w)
				return
			}

			roles, err := teams.Roles(sess.TeamID, sess.UserID)
			if err != nil {
				logger.Error("load roles", "error", err, "team_id", sess.TeamID)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ac := auth.AuthContext{
				UserID:      sess.UserID,
				TeamID:      sess.TeamID,
				TeamOwnerID: team.OwnerID,
				SessionID:   sess.ID,
				Roles:       roles,
			}
			noteIdentity(r.Context(), ac.TeamID, ac.UserID)
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

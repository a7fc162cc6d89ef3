package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/database"
	"github.com/kodix/kodix/internal/store"
)

func setupAuthMiddlewareDB(t *testing.T) (*store.SessionStore, *store.TeamStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewSessionStore(db), store.NewTeamStore(db)
}

func mustNotReach(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})
}

func TestRequireAuthNoToken(t *testing.T) {
	ss, ts := setupAuthMiddlewareDB(t)

	rec := httptest.NewRecorder()
	RequireAuth(ss, ts, slog.Default())(mustNotReach(t)).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	ss, ts := setupAuthMiddlewareDB(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	RequireAuth(ss, ts, slog.Default())(mustNotReach(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	ss, ts := setupAuthMiddlewareDB(t)

	u, team, err := ts.Signup("alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	sess, _ := ss.Create(u.ID, team.ID, time.Hour)

	var gotAC auth.AuthContext
	handler := RequireAuth(ss, ts, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		gotAC = ac
		w.WriteHeader(http.StatusOK)
	}))

	for _, viaCookie := range []bool{true, false} {
		req := httptest.NewRequest("GET", "/", nil)
		if viaCookie {
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
		} else {
			req.Header.Set("Authorization", "Bearer "+sess.Token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("cookie=%v status = %d, want %d", viaCookie, rec.Code, http.StatusOK)
		}
		if gotAC.UserID != u.ID || gotAC.TeamID != team.ID || gotAC.TeamOwnerID != u.ID {
			t.Errorf("auth context = %+v", gotAC)
		}
		if roles := gotAC.Roles[ability.AppCare]; len(roles) != 1 || roles[0] != ability.RoleAdmin {
			t.Errorf("care roles = %v, want [ADMIN]", roles)
		}
	}
}

func TestRequireAuthRemovedMember(t *testing.T) {
	ss, ts := setupAuthMiddlewareDB(t)

	_, team, _ := ts.Signup("owner@example.com", "Owner")
	bob, _, _ := ts.Signup("bob@example.com", "Bob")
	ts.AddMember(team.ID, bob.ID, map[ability.App][]ability.Role{ability.AppTeam: {ability.RoleUser}})
	sess, _ := ss.Create(bob.ID, team.ID, time.Hour)
	if err := ts.RemoveMember(team.ID, bob.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	RequireAuth(ss, ts, slog.Default())(mustNotReach(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequestLoggerNamesTeamAndUser(t *testing.T) {
	ss, ts := setupAuthMiddlewareDB(t)
	u, team, _ := ts.Signup("alice@example.com", "Alice")
	sess, _ := ss.Create(u.ID, team.ID, time.Hour)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	var seenID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})
	handler := RequestLogger(logger)(RequireAuth(ss, ts, slog.Default())(inner))

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if seenID == "" || rec.Header().Get(RequestIDHeader) != seenID {
		t.Errorf("request id = %q, header %q", seenID, rec.Header().Get(RequestIDHeader))
	}

	var line struct {
		Level     string `json:"level"`
		RequestID string `json:"request_id"`
		Status    int    `json:"status"`
		Bytes     int    `json:"bytes"`
		TeamID    int64  `json:"team_id"`
		UserID    int64  `json:"user_id"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line.Level != "WARN" || line.Status != http.StatusTeapot || line.Bytes != 15 {
		t.Errorf("log line = %+v", line)
	}
	if line.RequestID != seenID || line.TeamID != team.ID || line.UserID != u.ID {
		t.Errorf("log line = %+v, want team %d user %d", line, team.ID, u.ID)
	}
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogger(slog.New(slog.NewJSONHandler(&buf, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/auth/login", nil)
	req.Header.Set(RequestIDHeader, "edge-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "edge-42" {
		t.Errorf("%s = %q", RequestIDHeader, got)
	}
	if bytes.Contains(buf.Bytes(), []byte(`"user_id"`)) {
		t.Errorf("anonymous request logged a user: %s", buf.String())
	}
}

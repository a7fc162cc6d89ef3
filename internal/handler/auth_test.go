package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kodix/kodix/internal/middleware"
	"github.com/kodix/kodix/internal/store"
)

func newAuthHandler(env *testEnv) *AuthHandler {
	return NewAuthHandler(env.users, env.teams, env.sessions, env.codes, env.mailer, 24*time.Hour, env.logger)
}

func TestSignupThenVerify(t *testing.T) {
	env := newTestEnv(t)
	h := newAuthHandler(env)

	rec := httptest.NewRecorder()
	h.Signup(rec, newRequest("POST", "/auth/signup", signupRequest{Email: " New@Example.com ", Name: "New"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signup status = %d, body = %s", rec.Code, rec.Body.String())
	}
	sent := env.mailer.last(t)
	if sent.To != "new@example.com" || len(sent.Code) != 6 {
		t.Fatalf("sent = %+v", sent)
	}

	rec = httptest.NewRecorder()
	h.Verify(rec, newRequest("POST", "/auth/verify", verifyRequest{Email: "new@example.com", Code: sent.Code}))
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[sessionResponse](t, rec)
	if resp.Token == "" || resp.User.Email != "new@example.com" {
		t.Errorf("resp = %+v", resp)
	}

	teams, _ := env.teams.ListForUser(resp.User.ID)
	if len(teams) != 1 || teams[0].ID != resp.TeamID || teams[0].Name != store.PersonalTeamName {
		t.Errorf("teams = %+v, session team = %d", teams, resp.TeamID)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != resp.Token || !cookie.HttpOnly {
		t.Errorf("cookie = %+v", cookie)
	}

	sess, err := env.sessions.GetByToken(resp.Token)
	if err != nil || sess == nil {
		t.Fatalf("session lookup: %v", err)
	}
}

func TestSignupExistingEmailStillSendsCode(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "taken@example.com")
	h := newAuthHandler(env)

	rec := httptest.NewRecorder()
	h.Signup(rec, newRequest("POST", "/auth/signup", signupRequest{Email: "taken@example.com", Name: "Again"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if env.mailer.last(t).To != "taken@example.com" {
		t.Error("expected code to be sent")
	}
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)
	h := newAuthHandler(env)
	for _, req := range []signupRequest{
		{Email: "not-an-email", Name: "X"},
		{Email: "a@b.co", Name: "  "},
	} {
		rec := httptest.NewRecorder()
		h.Signup(rec, newRequest("POST", "/auth/signup", req))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%+v: status = %d, want 400", req, rec.Code)
		}
	}
}

func TestLoginUnknownEmailSendsNothing(t *testing.T) {
	env := newTestEnv(t)
	h := newAuthHandler(env)

	rec := httptest.NewRecorder()
	h.Login(rec, newRequest("POST", "/auth/login", loginRequest{Email: "ghost@example.com"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(env.mailer.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(env.mailer.sent))
	}
}

func TestVerifyWrongCodeCountsAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "user@example.com")
	h := newAuthHandler(env)

	rec := httptest.NewRecorder()
	h.Login(rec, newRequest("POST", "/auth/login", loginRequest{Email: "user@example.com"}))
	good := env.mailer.last(t).Code
	bad := "000000"
	if good == bad {
		bad = "111111"
	}

	for i := 1; i < store.MaxLoginCodeAttempts; i++ {
		rec = httptest.NewRecorder()
		h.Verify(rec, newRequest("POST", "/auth/verify", verifyRequest{Email: "user@example.com", Code: bad}))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: status = %d", i, rec.Code)
		}
	}

	rec = httptest.NewRecorder()
	h.Verify(rec, newRequest("POST", "/auth/verify", verifyRequest{Email: "user@example.com", Code: bad}))
	body := decode[map[string]string](t, rec)
	if body["error"] != "Too many attempts. Request a new code." {
		t.Errorf("error = %q", body["error"])
	}

	// The code is burned even when the right one arrives afterwards.
	rec = httptest.NewRecorder()
	h.Verify(rec, newRequest("POST", "/auth/verify", verifyRequest{Email: "user@example.com", Code: good}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 after lockout", rec.Code)
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	env := newTestEnv(t)
	u, team := env.signup(t, "user@example.com")
	h := newAuthHandler(env)

	r := env.as(t, newRequest("POST", "/auth/logout", nil), u.ID, team.ID)
	rec := httptest.NewRecorder()
	h.Logout(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	var n int
	env.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, u.ID).Scan(&n)
	if n != 0 {
		t.Errorf("sessions left = %d, want 0", n)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	u, team := env.signup(t, "user@example.com")
	h := newAuthHandler(env)

	rec := httptest.NewRecorder()
	h.Me(rec, env.as(t, newRequest("GET", "/api/me", nil), u.ID, team.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[meResponse](t, rec)
	if resp.Team.ID != team.ID || len(resp.Roles["care"]) != 1 || resp.Roles["care"][0] != "ADMIN" {
		t.Errorf("resp = %+v", resp)
	}
}

package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newInvitationHandler(env *testEnv) *InvitationHandler {
	return NewInvitationHandler(env.invitations, env.teams, env.users, env.sessions, env.mailer, nil, env.logger)
}

func TestInviteSkipsMembersAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	owner, team := env.signup(t, "owner@example.com")
	env.member(t, team, "member@example.com", userRoles)
	h := newInvitationHandler(env)

	body := inviteRequest{Emails: []string{"New@Example.com", "new@example.com", "member@example.com"}}
	rec := httptest.NewRecorder()
	h.Invite(rec, env.as(t, newRequest("POST", "/api/team/invitations", body), owner.ID, team.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[inviteResponse](t, rec)
	if len(resp.Invitations) != 1 || resp.Invitations[0].Email != "new@example.com" {
		t.Errorf("invitations = %+v", resp.Invitations)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0] != "member@example.com" {
		t.Errorf("skipped = %v", resp.Skipped)
	}
	if sent := env.mailer.last(t); sent.InvitationID != resp.Invitations[0].ID {
		t.Errorf("mailed invitation %q, want %q", sent.InvitationID, resp.Invitations[0].ID)
	}

	// A second round finds the pending invitation.
	rec = httptest.NewRecorder()
	h.Invite(rec, env.as(t, newRequest("POST", "/api/team/invitations", inviteRequest{Emails: []string{"new@example.com"}}), owner.ID, team.ID))
	if resp := decode[inviteResponse](t, rec); len(resp.Invitations) != 0 || len(resp.Skipped) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestInviteRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	_, team := env.signup(t, "owner@example.com")
	u := env.member(t, team, "member@example.com", userRoles)
	h := newInvitationHandler(env)

	rec := httptest.NewRecorder()
	h.Invite(rec, env.as(t, newRequest("POST", "/api/team/invitations", inviteRequest{Emails: []string{"x@example.com"}}), u.ID, team.ID))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestInviteRejectsBadEmail(t *testing.T) {
	env := newTestEnv(t)
	owner, team := env.signup(t, "owner@example.com")
	h := newInvitationHandler(env)

	rec := httptest.NewRecorder()
	h.Invite(rec, env.as(t, newRequest("POST", "/api/team/invitations", inviteRequest{Emails: []string{"nope"}}), owner.ID, team.ID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// invite has owner invite email into team and returns the invitation ID and
// mailed code.
func invite(t *testing.T, env *testEnv, h *InvitationHandler, ownerID, teamID int64, email string) (string, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Invite(rec, env.as(t, newRequest("POST", "/api/team/invitations", inviteRequest{Emails: []string{email}}), ownerID, teamID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("invite status = %d", rec.Code)
	}
	sent := env.mailer.last(t)
	return sent.InvitationID, sent.Code
}

func TestAcceptInvitation(t *testing.T) {
	env := newTestEnv(t)
	owner, team := env.signup(t, "owner@example.com")
	guest, personal := env.signup(t, "guest@example.com")
	h := newInvitationHandler(env)
	id, code := invite(t, env, h, owner.ID, team.ID, "guest@example.com")

	accept := func(code string) (*httptest.ResponseRecorder, *http.Request) {
		r := newRequest("POST", "/api/invitations/"+id+"/accept", acceptInvitationRequest{Code: code})
		r.SetPathValue("id", id)
		r = env.as(t, r, guest.ID, personal.ID)
		rec := httptest.NewRecorder()
		h.Accept(rec, r)
		return rec, r
	}

	rec, _ := accept("not-the-code")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong code status = %d, want 400", rec.Code)
	}

	rec, _ = accept(code)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ok, _ := env.teams.IsMember(team.ID, guest.ID); !ok {
		t.Error("guest is not a member after accepting")
	}
	roles, _ := env.teams.Roles(team.ID, guest.ID)
	if len(roles) != 1 || len(roles["team"]) != 1 || roles["team"][0] != "USER" {
		t.Errorf("roles = %v, want team USER only", roles)
	}

	var active int64
	env.db.QueryRow(`SELECT team_id FROM sessions WHERE user_id = ? ORDER BY id DESC LIMIT 1`, guest.ID).Scan(&active)
	if active != team.ID {
		t.Errorf("session team = %d, want %d", active, team.ID)
	}

	// Accepted invitations are gone.
	rec, _ = accept(code)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("second accept status = %d, want 400", rec.Code)
	}
}

func TestAcceptInvitationWrongRecipient(t *testing.T) {
	env := newTestEnv(t)
	owner, team := env.signup(t, "owner@example.com")
	intruder, personal := env.signup(t, "intruder@example.com")
	h := newInvitationHandler(env)
	id, code := invite(t, env, h, owner.ID, team.ID, "guest@example.com")

	r := newRequest("POST", "/api/invitations/"+id+"/accept", acceptInvitationRequest{Code: code})
	r.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.Accept(rec, env.as(t, r, intruder.ID, personal.ID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ok, _ := env.teams.IsMember(team.ID, intruder.ID); ok {
		t.Error("intruder joined the team")
	}
}

func TestAcceptExpiredInvitation(t *testing.T) {
	env := newTestEnv(t)
	owner, team := env.signup(t, "owner@example.com")
	guest, personal := env.signup(t, "guest@example.com")
	h := newInvitationHandler(env)
	id, code := invite(t, env, h, owner.ID, team.ID, "guest@example.com")
	h.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	r := newRequest("POST", "/api/invitations/"+id+"/accept", acceptInvitationRequest{Code: code})
	r.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.Accept(rec, env.as(t, r, guest.ID, personal.ID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDeclineInvitation(t *testing.T) {
	env := newTestEnv(t)
	owner, team := env.signup(t, "owner@example.com")
	guest, personal := env.signup(t, "guest@example.com")
	h := newInvitationHandler(env)
	id, _ := invite(t, env, h, owner.ID, team.ID, "guest@example.com")

	rec := httptest.NewRecorder()
	h.ListMine(rec, env.as(t, newRequest("GET", "/api/invitations", nil), guest.ID, personal.ID))
	if mine := decode[[]map[string]any](t, rec); len(mine) != 1 {
		t.Fatalf("pending = %v", mine)
	}

	r := newRequest("POST", "/api/invitations/"+id+"/decline", nil)
	r.SetPathValue("id", id)
	rec = httptest.NewRecorder()
	h.Decline(rec, env.as(t, r, guest.ID, personal.ID))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if inv, _ := env.invitations.GetByID(id); inv != nil {
		t.Error("invitation still exists")
	}
}

func TestDeleteInvitationOtherTeam(t *testing.T) {
	env := newTestEnv(t)
	owner, team := env.signup(t, "owner@example.com")
	other, otherTeam := env.signup(t, "other@example.com")
	h := newInvitationHandler(env)
	id, _ := invite(t, env, h, owner.ID, team.ID, "guest@example.com")

	r := newRequest("DELETE", "/api/team/invitations/"+id, nil)
	r.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.Delete(rec, env.as(t, r, other.ID, otherTeam.ID))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	r = newRequest("DELETE", "/api/team/invitations/"+id, nil)
	r.SetPathValue("id", id)
	rec = httptest.NewRecorder()
	h.Delete(rec, env.as(t, r, owner.ID, team.ID))
	if rec.Code != http.StatusNoContent {
		t.Errorf("owner delete status = %d, want 204", rec.Code)
	}
}

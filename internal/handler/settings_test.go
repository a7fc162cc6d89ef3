package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/model"
)

func newSettingsHandler(env *testEnv) *SettingsHandler {
	return NewSettingsHandler(env.teams, env.users, env.settings, nil, env.logger)
}

func TestCreateTeamMakesCallerOwner(t *testing.T) {
	env := newTestEnv(t)
	u, personal := env.signup(t, "user@example.com")
	h := newSettingsHandler(env)

	rec := httptest.NewRecorder()
	h.CreateTeam(rec, env.as(t, newRequest("POST", "/api/teams", nameRequest{Name: " Pharmacy "}), u.ID, personal.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	team := decode[model.Team](t, rec)
	if team.Name != "Pharmacy" || team.OwnerID != u.ID {
		t.Errorf("team = %+v", team)
	}
	roles, _ := env.teams.Roles(team.ID, u.ID)
	for _, app := range ability.Apps() {
		if len(roles[app]) != 1 || roles[app][0] != ability.RoleAdmin {
			t.Errorf("%s roles = %v, want ADMIN", app, roles[app])
		}
	}
}

func TestRenameTeam(t *testing.T) {
	env := newTestEnv(t)
	owner, team := env.signup(t, "owner@example.com")
	u := env.member(t, team, "member@example.com", userRoles)
	h := newSettingsHandler(env)

	rec := httptest.NewRecorder()
	h.RenameTeam(rec, env.as(t, newRequest("PUT", "/api/team", nameRequest{Name: "Nope"}), u.ID, team.ID))
	if rec.Code != http.StatusForbidden {
		t.Errorf("member rename status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.RenameTeam(rec, env.as(t, newRequest("PUT", "/api/team", nameRequest{Name: strings.Repeat("x", maxNameLen+1)}), owner.ID, team.ID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("long name status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.RenameTeam(rec, env.as(t, newRequest("PUT", "/api/team", nameRequest{Name: "Family"}), owner.ID, team.ID))
	if got := decode[model.Team](t, rec); got.Name != "Family" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	u, team := env.signup(t, "user@example.com")
	h := newSettingsHandler(env)

	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, env.as(t, newRequest("PUT", "/api/me", nameRequest{Name: "Ana"}), u.ID, team.ID))
	if got := decode[model.User](t, rec); got.Name != "Ana" {
		t.Errorf("user = %+v", got)
	}

	rec = httptest.NewRecorder()
	h.UpdateProfile(rec, env.as(t, newRequest("PUT", "/api/me", nameRequest{Name: "   "}), u.ID, team.ID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", rec.Code)
	}
}

func TestAppSettings(t *testing.T) {
	env := newTestEnv(t)
	owner, team := env.signup(t, "owner@example.com")
	cg := env.member(t, team, "cg@example.com", caregiverRoles)
	if err := env.settings.SetUnlockedUntil(team.ID, careNow); err != nil {
		t.Fatal(err)
	}
	h := newSettingsHandler(env)

	get := func(userID int64, app string) *httptest.ResponseRecorder {
		r := newRequest("GET", "/api/apps/"+app+"/settings", nil)
		r.SetPathValue("app", app)
		rec := httptest.NewRecorder()
		h.AppSettings(rec, env.as(t, r, userID, team.ID))
		return rec
	}

	rec := get(cg.ID, "care")
	resp := decode[appSettingsResponse](t, rec)
	if resp.Settings["unlocked_until"] != "2026-03-10T10:00:00Z" {
		t.Errorf("settings = %v", resp.Settings)
	}
	if len(resp.Roles) != 1 || resp.Roles[0] != ability.RoleCaregiver {
		t.Errorf("roles = %v", resp.Roles)
	}

	if rec := get(cg.ID, "cashback"); rec.Code != http.StatusForbidden {
		t.Errorf("caregiver cashback status = %d, want 403", rec.Code)
	}
	if rec := get(owner.ID, "billing"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown app status = %d, want 404", rec.Code)
	}
}

package store

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kodix/kodix/internal/ability"
)

func TestSignupCreatesPersonalTeam(t *testing.T) {
	db := openTestDB(t)
	ts := NewTeamStore(db)

	u, team, err := ts.Signup("alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if team.Name != PersonalTeamName {
		t.Errorf("team name = %q, want %q", team.Name, PersonalTeamName)
	}
	if team.OwnerID != u.ID {
		t.Errorf("owner = %d, want %d", team.OwnerID, u.ID)
	}

	roles, err := ts.Roles(team.ID, u.ID)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	want := map[ability.App][]ability.Role{
		ability.AppTeam:     {ability.RoleAdmin},
		ability.AppCare:     {ability.RoleAdmin},
		ability.AppCashback: {ability.RoleAdmin},
	}
	if diff := cmp.Diff(want, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
}

func TestSignupDuplicateEmailRollsBack(t *testing.T) {
	db := openTestDB(t)
	ts := NewTeamStore(db)

	signup(t, db, "alice@example.com")
	if _, _, err := ts.Signup("ALICE@example.com", "Again"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM teams`).Scan(&n); err != nil {
		t.Fatalf("count teams: %v", err)
	}
	if n != 1 {
		t.Errorf("teams = %d, want 1", n)
	}
}

func TestTeamMembersAndRoles(t *testing.T) {
	db := openTestDB(t)
	ts := NewTeamStore(db)

	owner, team := signup(t, db, "owner@example.com")
	bob, _ := signup(t, db, "bob@example.com")

	err := ts.AddMember(team.ID, bob.ID, map[ability.App][]ability.Role{
		ability.AppTeam: {ability.RoleUser},
		ability.AppCare: {ability.RoleCaregiver},
	})
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := ts.AddMember(team.ID, bob.ID, nil); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("second add err = %v, want ErrAlreadyMember", err)
	}

	members, err := ts.ListMembers(team.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	if members[0].UserID != owner.ID {
		t.Errorf("first member = %d, want owner %d", members[0].UserID, owner.ID)
	}
	wantBob := map[string][]string{"care": {"CAREGIVER"}, "team": {"USER"}}
	if diff := cmp.Diff(wantBob, members[1].Roles); diff != "" {
		t.Errorf("bob roles mismatch (-want +got):\n%s", diff)
	}

	if err := ts.SetRoles(team.ID, bob.ID, ability.AppCashback, []ability.Role{ability.RoleCashier}); err != nil {
		t.Fatalf("set roles: %v", err)
	}
	m, err := ts.GetMember(team.ID, bob.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if diff := cmp.Diff([]string{"CASHIER"}, m.Roles["cashback"]); diff != "" {
		t.Errorf("cashback roles mismatch (-want +got):\n%s", diff)
	}

	teams, err := ts.ListForUser(bob.ID)
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(teams) != 2 {
		t.Errorf("bob teams = %d, want 2", len(teams))
	}
}

func TestRemoveMemberDropsRolesAndSessions(t *testing.T) {
	db := openTestDB(t)
	ts := NewTeamStore(db)
	ss := NewSessionStore(db)

	_, team := signup(t, db, "owner@example.com")
	bob, _ := signup(t, db, "bob@example.com")
	if err := ts.AddMember(team.ID, bob.ID, map[ability.App][]ability.Role{ability.AppTeam: {ability.RoleUser}}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	sess, err := ss.Create(bob.ID, team.ID, sessionTTL)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := ts.RemoveMember(team.ID, bob.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	ok, err := ts.IsMember(team.ID, bob.ID)
	if err != nil {
		t.Fatalf("is member: %v", err)
	}
	if ok {
		t.Error("bob should no longer be a member")
	}
	roles, _ := ts.Roles(team.ID, bob.ID)
	if len(roles) != 0 {
		t.Errorf("roles = %v, want none", roles)
	}
	if got, _ := ss.GetByToken(sess.Token); got != nil {
		t.Error("session on removed team should be revoked")
	}

	if err := ts.RemoveMember(team.ID, bob.ID); !errors.Is(err, ErrNotMember) {
		t.Errorf("second remove err = %v, want ErrNotMember", err)
	}
}

func TestSetRolesRequiresMembership(t *testing.T) {
	db := openTestDB(t)
	ts := NewTeamStore(db)

	_, team := signup(t, db, "owner@example.com")
	stranger, _ := signup(t, db, "stranger@example.com")

	err := ts.SetRoles(team.ID, stranger.ID, ability.AppCare, []ability.Role{ability.RoleAdmin})
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("err = %v, want ErrNotMember", err)
	}
}

func TestIsMemberByEmail(t *testing.T) {
	db := openTestDB(t)
	ts := NewTeamStore(db)

	_, team := signup(t, db, "owner@example.com")

	ok, err := ts.IsMemberByEmail(team.ID, "Owner@Example.com")
	if err != nil {
		t.Fatalf("is member by email: %v", err)
	}
	if !ok {
		t.Error("owner should be a member")
	}
	ok, _ = ts.IsMemberByEmail(team.ID, "nobody@example.com")
	if ok {
		t.Error("unknown email should not be a member")
	}
}

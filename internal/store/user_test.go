package store

import "testing"

func TestUserLookupsNormalizeEmail(t *testing.T) {
	db := openTestDB(t)
	u, _, err := NewTeamStore(db).Signup("  Alice@Example.com ", " Alice ")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if u.Email != "alice@example.com" || u.Name != "Alice" {
		t.Errorf("user = %+v", u)
	}

	us := NewUserStore(db)
	got, err := us.GetByEmail("ALICE@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("get by email = %+v, want id %d", got, u.ID)
	}
}

func TestUserNotFound(t *testing.T) {
	us := NewUserStore(openTestDB(t))

	if u, err := us.GetByID(999); err != nil || u != nil {
		t.Errorf("GetByID = %+v, %v", u, err)
	}
	if u, err := us.GetByEmail("ghost@example.com"); err != nil || u != nil {
		t.Errorf("GetByEmail = %+v, %v", u, err)
	}
	if u, err := us.UpdateName(999, "Ghost"); err != nil || u != nil {
		t.Errorf("UpdateName = %+v, %v", u, err)
	}
}

func TestUserUpdateName(t *testing.T) {
	db := openTestDB(t)
	u, _, _ := NewTeamStore(db).Signup("alice@example.com", "Alice")

	updated, err := NewUserStore(db).UpdateName(u.ID, " Alice B ")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Alice B" {
		t.Errorf("name = %q, want %q", updated.Name, "Alice B")
	}
}

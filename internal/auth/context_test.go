package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/kodix/kodix/internal/ability"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:      1,
		TeamID:      2,
		TeamOwnerID: 1,
		SessionID:   3,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.TeamID != 2 {
		t.Errorf("TeamID = %d, want 2", got.TeamID)
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
	if !IsTeamOwner(ctx) {
		t.Error("expected team owner")
	}
}

func TestFromContextMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Error("expected false for missing AuthContext")
	}
	if TeamID(ctx) != 0 || UserID(ctx) != 0 {
		t.Error("expected zero IDs for missing AuthContext")
	}
	if IsTeamOwner(ctx) {
		t.Error("missing AuthContext must not be team owner")
	}
}

func TestAbilityFromContext(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{
		UserID:      5,
		TeamID:      2,
		TeamOwnerID: 1,
		Roles: map[ability.App][]ability.Role{
			ability.AppCare: {ability.RoleCaregiver},
		},
	})

	a, err := Ability(ctx, ability.AppCare)
	if err != nil {
		t.Fatalf("ability: %v", err)
	}
	if !a.Can(ability.ActionCreate, ability.SubjectCareTask, nil) {
		t.Error("caregiver should create care tasks")
	}

	cb, err := Ability(ctx, ability.AppCashback)
	if err != nil {
		t.Fatalf("cashback ability: %v", err)
	}
	if cb.Can(ability.ActionRead, ability.SubjectClient, nil) {
		t.Error("user without cashback roles should not read clients")
	}

	if _, err := Ability(ctx, ability.App("bogus")); !errors.Is(err, ability.ErrUnknownApp) {
		t.Errorf("err = %v, want ErrUnknownApp", err)
	}
}

package auth

import (
	"context"

	"github.com/kodix/kodix/internal/ability"
)

type contextKey struct{}

type AuthContext struct {
	UserID      int64
	TeamID      int64
	TeamOwnerID int64
	SessionID   int64
	Roles       map[ability.App][]ability.Role
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func TeamID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.TeamID
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsTeamOwner(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.UserID != 0 && ac.UserID == ac.TeamOwnerID
}

// Ability resolves the caller's ability in app. A request without auth
// resolves to an ability with no roles.
func Ability(ctx context.Context, app ability.App) (*ability.Ability, error) {
	ac, _ := FromContext(ctx)
	user := ability.User{ID: ac.UserID, TeamOwnerID: ac.TeamOwnerID}
	return ability.Resolve(user, app, ac.Roles[app])
}

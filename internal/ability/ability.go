// Package ability resolves what a user may do inside one app of a team.
//
// Rules are an explicit table keyed by app, role, action and subject.
// Conditional rules inspect the object passed to Can.
package ability

import (
	"errors"
	"fmt"
	"slices"
)

type App string

const (
	AppTeam     App = "team"
	AppCare     App = "care"
	AppCashback App = "cashback"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleUser      Role = "USER"
	RoleCaregiver Role = "CAREGIVER"
	RoleCashier   Role = "CASHIER"
)

type Action string

const (
	ActionCreate           Action = "create"
	ActionRead             Action = "read"
	ActionUpdate           Action = "update"
	ActionDelete           Action = "delete"
	ActionInvite           Action = "invite"
	ActionRemoveMember     Action = "remove_member"
	ActionDeleteInvitation Action = "delete_invitation"
	ActionUpdateRole       Action = "update_role"
	ActionUnlock           Action = "unlock"
)

type Subject string

const (
	SubjectTeam          Subject = "Team"
	SubjectTeamMember    Subject = "TeamMember"
	SubjectInvitation    Subject = "Invitation"
	SubjectCareTask      Subject = "CareTask"
	SubjectCareShift     Subject = "CareShift"
	SubjectCalendarEvent Subject = "CalendarEvent"
	SubjectClient        Subject = "Client"
	SubjectVoucher       Subject = "Voucher"
)

var appRoles = map[App][]Role{
	AppTeam:     {RoleAdmin, RoleUser},
	AppCare:     {RoleAdmin, RoleCaregiver},
	AppCashback: {RoleAdmin, RoleCashier},
}

var (
	ErrUnknownApp  = errors.New("unknown app")
	ErrUnknownRole = errors.New("unknown role")
	ErrForbidden   = errors.New("action not allowed")
)

// ConfigError reports a role table that cannot be resolved. It is a
// deployment problem, never retried.
type ConfigError struct {
	App  App
	Role Role
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("ability: %v %q", e.Err, e.App)
	}
	return fmt.Sprintf("ability: %v %q for app %q", e.Err, e.Role, e.App)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// User is the acting principal. TeamOwnerID is the owner of the team the
// ability is resolved for.
type User struct {
	ID          int64
	TeamOwnerID int64
}

// IsTeamOwner reports whether the user owns the active team.
func (u User) IsTeamOwner() bool {
	return u.ID != 0 && u.ID == u.TeamOwnerID
}

// Ability is a resolved set of allowed actions for one user in one app.
type Ability struct {
	user  User
	app   App
	roles []Role
}

// Resolve builds the ability for user in app. Every role must be valid for
// the app.
func Resolve(user User, app App, roles []Role) (*Ability, error) {
	valid, ok := appRoles[app]
	if !ok {
		return nil, &ConfigError{App: app, Err: ErrUnknownApp}
	}
	for _, r := range roles {
		if !slices.Contains(valid, r) {
			return nil, &ConfigError{App: app, Role: r, Err: ErrUnknownRole}
		}
	}
	return &Ability{user: user, app: app, roles: slices.Clone(roles)}, nil
}

// ParseRoles converts stored role strings, validating them for app.
func ParseRoles(app App, raw []string) ([]Role, error) {
	valid, ok := appRoles[app]
	if !ok {
		return nil, &ConfigError{App: app, Err: ErrUnknownApp}
	}
	roles := make([]Role, 0, len(raw))
	for _, s := range raw {
		r := Role(s)
		if !slices.Contains(valid, r) {
			return nil, &ConfigError{App: app, Role: r, Err: ErrUnknownRole}
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// Apps lists every app a team carries roles for.
func Apps() []App {
	return []App{AppTeam, AppCare, AppCashback}
}

// Roles lists the roles defined for app.
func Roles(app App) []Role {
	return slices.Clone(appRoles[app])
}

func (a *Ability) App() App { return a.app }

func (a *Ability) Roles() []Role { return slices.Clone(a.roles) }

func (a *Ability) HasRole(r Role) bool { return slices.Contains(a.roles, r) }

// Can reports whether action on subject is allowed. obj carries the
// concrete instance for conditional rules; nil asks whether any instance
// could be allowed.
func (a *Ability) Can(action Action, subject Subject, obj any) bool {
	switch a.app {
	case AppTeam:
		return a.canTeam(action, subject, obj)
	case AppCare:
		for _, r := range a.roles {
			if canCare(a.user, r, action, subject, obj) {
				return true
			}
		}
	case AppCashback:
		for _, r := range a.roles {
			if canCashback(r, action, subject) {
				return true
			}
		}
	}
	return false
}

// Require is Can returning an error wrapping ErrForbidden.
func (a *Ability) Require(action Action, subject Subject, obj any) error {
	if a.Can(action, subject, obj) {
		return nil
	}
	return fmt.Errorf("%w: %s %s", ErrForbidden, action, subject)
}

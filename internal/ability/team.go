package ability

import "slices"

// RoleChange is the object of an update_role check.
type RoleChange struct {
	TargetUserID int64
	App          App
	Roles        []Role
}

// MemberTarget is the object of a remove_member check.
type MemberTarget struct {
	UserID int64
}

func (a *Ability) canTeam(action Action, subject Subject, obj any) bool {
	switch subject {
	case SubjectTeam, SubjectTeamMember:
		switch action {
		case ActionRead:
			return true
		case ActionInvite:
			return a.user.IsTeamOwner()
		case ActionUpdate:
			return subject == SubjectTeam && a.user.IsTeamOwner()
		case ActionRemoveMember:
			if !a.user.IsTeamOwner() {
				return false
			}
			if t, ok := obj.(MemberTarget); ok && t.UserID == a.user.TeamOwnerID {
				return false
			}
			return true
		case ActionUpdateRole:
			if !a.user.IsTeamOwner() {
				return false
			}
			if c, ok := obj.(RoleChange); ok && c.TargetUserID == a.user.ID {
				return slices.Contains(c.Roles, RoleAdmin)
			}
			return true
		}
	case SubjectInvitation:
		switch action {
		case ActionRead:
			return true
		case ActionInvite, ActionDeleteInvitation:
			return a.user.IsTeamOwner()
		}
	}
	return false
}

package model

import "time"

type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeamMember is a user's membership in a team together with the roles they
// hold in each app.
type TeamMember struct {
	TeamID    int64               `json:"team_id"`
	UserID    int64               `json:"user_id"`
	Email     string              `json:"email"`
	Name      string              `json:"name"`
	Roles     map[string][]string `json:"roles"`
	CreatedAt time.Time           `json:"created_at"`
}

type Invitation struct {
	ID          string    `json:"id"`
	TeamID      int64     `json:"team_id"`
	Email       string    `json:"email"`
	InvitedByID int64     `json:"invited_by_id"`
	CodeHash    string    `json:"-"`
	Accepted    bool      `json:"accepted"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

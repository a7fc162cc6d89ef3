package model

import "time"

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	TeamID    int64     `json:"team_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginCode struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	CodeHash  string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
}

package domain

import (
	"time"
)

// User is a local account bound to exactly one remote tracker identity.
type User struct {
	ID              string            `json:"id"`
	RemoteID        int64             `json:"remote_id"`
	Username        string            `json:"username"`
	Profile         map[string]string `json:"profile,omitempty"`
	Role            string            `json:"role"`
	LastLogin       *time.Time        `json:"last_login,omitempty"`
	ConversionCount int64             `json:"conversion_count"`
	CreatedAt       time.Time         `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// NewUser holds the fields needed to create a user. The role is decided by the store.
type NewUser struct {
	RemoteID int64
	Username string
	Profile  map[string]string
}

// UserStats aggregates the user table for the admin dashboard.
type UserStats struct {
	TotalUsers       int   `json:"total_users"`
	TotalAdmins      int   `json:"total_admins"`
	TotalConversions int64 `json:"total_conversions"`
}

// ComputeUserStats folds a user listing into UserStats.
func ComputeUserStats(users []*User) UserStats {
	var s UserStats
	for _, u := range users {
		s.TotalUsers++
		if u.Role == RoleAdmin {
			s.TotalAdmins++
		}
		s.TotalConversions += u.ConversionCount
	}
	return s
}

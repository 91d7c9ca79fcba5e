// Package model defines domain entities for the application.
package model

import "time"

// User is an account that owns a credit balance.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"` // Never serialize
	CreditBalance int64     `json:"credit_balance"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserSummary is the public view of a user returned alongside credit balances.
type UserSummary struct {
	Name string `json:"name"`
}

// Summary returns the public view of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{Name: u.Name}
}

// AuthContext holds the authenticated caller for a request.
// It is injected into the request context by the auth middleware.
type AuthContext struct {
	UserID  string
	Email   string
	TokenID string
	// ExpiresAt is when the presented token stops being valid.
	ExpiresAt time.Time
}

package models

import (
	"time"
)

type Account struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	HashedCredential string     `json:"-"`
	SessionToken     *string    `json:"-"`
	SessionCreatedAt *time.Time `json:"-"`
	ResetToken       *string    `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasSession reports whether a session token is currently stored on the account.
func (a *Account) HasSession() bool {
	return a.SessionToken != nil && *a.SessionToken != ""
}

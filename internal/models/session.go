package models

import (
	"time"
)

// Session is the server-side record behind a session token. Token holds the
// digest of the bearer token, never the token itself.
type Session struct {
	Token     string    `json:"token"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiredAt reports whether the session is past its lifetime at now.
// A zero or negative lifetime never expires. The session is still valid at
// exactly CreatedAt+lifetime.
func (s *Session) ExpiredAt(now time.Time, lifetime time.Duration) bool {
	if lifetime <= 0 {
		return false
	}
	return s.CreatedAt.Add(lifetime).Before(now)
}

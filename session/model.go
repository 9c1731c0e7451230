package session

import "time"

// Session is a legacy server-side login session, still honoured while
// browsers migrate to the signed app_session credential.
type Session struct {
	ID     string
	UserID string
	Email  string
	Role   string

	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the session is past ExpiresAt (Unix seconds) at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

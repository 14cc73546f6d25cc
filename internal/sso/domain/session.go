package domain

import "time"

// Session is a broker-issued login. ID is the bearer credential and only
// exists in memory between creation and cookie encoding; stores key
// sessions by IDHash.
type Session struct {
	ID        string
	IDHash    string
	Claims    IdentityClaims
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

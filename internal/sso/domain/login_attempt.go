package domain

import "time"

// LoginAttempt is the server half of an in-flight authorization request. It
// is created by login and consumed exactly once by the matching callback.
type LoginAttempt struct {
	State        string
	Nonce        string
	CodeVerifier string // PKCE verifier, sent with the code exchange
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the attempt is no longer usable at now.
func (a LoginAttempt) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

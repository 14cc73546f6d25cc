package store

import (
	"context"
	"errors"
	"time"

	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrExpired       = errors.New("store: expired")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the backing storage shared by every broker instance. Drivers
// (memory, sqlite, redis) implement it; the flow never holds ambient state
// of its own.
type Store interface {
	LoginAttempts() LoginAttempts
	Sessions() Sessions

	// ApplyMigrations prepares the schema. Drivers without one return nil.
	ApplyMigrations() error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

type LoginAttempts interface {
	// CreateLoginAttempt stores a new attempt keyed by state. Returns
	// ErrAlreadyExists when the state is already pending.
	CreateLoginAttempt(ctx context.Context, a domain.LoginAttempt) error

	// ConsumeLoginAttempt removes and returns the attempt for state in one
	// atomic step, so two concurrent callers can never both receive it.
	// Returns ErrNotFound when absent, and ErrExpired (after removing it)
	// when it is past its expiry at now.
	ConsumeLoginAttempt(ctx context.Context, state string, now time.Time) (domain.LoginAttempt, error)

	// DeleteExpiredLoginAttempts removes attempts that expired before now.
	DeleteExpiredLoginAttempts(ctx context.Context, now time.Time) (int64, error)
}

type Sessions interface {
	// CreateSession stores s under s.IDHash.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByHash returns the session; expiry is the caller's concern.
	// The returned session never carries the raw ID.
	GetSessionByHash(ctx context.Context, hash string) (domain.Session, error)

	// DeleteSessionByHash is idempotent.
	DeleteSessionByHash(ctx context.Context, hash string) error

	// DeleteExpiredSessions removes sessions that expired before now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

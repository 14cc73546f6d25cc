package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
	"github.com/zwj1kor/Agentic-sso/pkg/cryptox"
	"github.com/zwj1kor/Agentic-sso/pkg/slogx"
)

const DefaultSessionTTL = 8 * time.Hour

// SessionService owns broker sessions. Expiry is fixed at creation; reads
// never extend it.
type SessionService struct {
	Store store.Sessions
	TTL   time.Duration
	Now   func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// DefaultTTL is the lifetime used when Create is given none.
func (s *SessionService) DefaultTTL() time.Duration {
	if s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}

// Create stores a session for claims and returns it with its raw ID set.
// A ttl of zero uses the service default.
func (s *SessionService) Create(ctx context.Context, claims domain.IdentityClaims, ttl time.Duration) (domain.Session, error) {
	if ttl <= 0 {
		ttl = s.DefaultTTL()
	}

	id, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Session{}, err
	}

	now := s.now()
	sess := domain.Session{
		ID:        id,
		IDHash:    cryptox.FingerprintToken(id),
		Claims:    claims,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.Store.CreateSession(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Read returns the live session for id. An expired session is deleted and
// reported as store.ErrExpired.
func (s *SessionService) Read(ctx context.Context, id string) (domain.Session, error) {
	if id == "" {
		return domain.Session{}, store.ErrNotFound
	}

	hash := cryptox.FingerprintToken(id)
	sess, err := s.Store.GetSessionByHash(ctx, hash)
	if err != nil {
		return domain.Session{}, err
	}

	if sess.Expired(s.now()) {
		if err := s.Store.DeleteSessionByHash(ctx, hash); err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, fmt.Errorf("delete expired session: %w", err)
		}
		return domain.Session{}, store.ErrExpired
	}

	sess.ID = id
	return sess, nil
}

// Delete removes the session. Deleting an unknown id is not an error.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.Store.DeleteSessionByHash(ctx, cryptox.FingerprintToken(id))
}

// Discard deletes a session that was never handed to the browser. A failed
// delete is logged and the record is left for housekeeping or its TTL.
func (s *SessionService) Discard(ctx context.Context, id string) {
	if err := s.Delete(ctx, id); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "failed to discard session",
			"session", slogx.Prefix(cryptox.FingerprintToken(id), 8),
			"error", err,
		)
	}
}

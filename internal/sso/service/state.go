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
	"golang.org/x/oauth2"
)

// ErrStateMismatch covers a callback whose state was never issued, was
// already used or has expired. It wraps the store error that caused it.
var ErrStateMismatch = errors.New("state mismatch")

const DefaultStateTTL = 10 * time.Minute

// StateService issues and consumes single-use login attempts.
type StateService struct {
	Store store.LoginAttempts
	TTL   time.Duration

	// SweepOnIssue removes expired attempts before each issue. Enabled for
	// backends without native expiry.
	SweepOnIssue bool

	Now func() time.Time
}

func (s *StateService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *StateService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultStateTTL
	}
	return s.TTL
}

// Issue records a fresh login attempt with random state and nonce and a
// PKCE code verifier.
func (s *StateService) Issue(ctx context.Context) (domain.LoginAttempt, error) {
	now := s.now()

	if s.SweepOnIssue {
		if n, err := s.Store.DeleteExpiredLoginAttempts(ctx, now); err != nil {
			slogx.FromContext(ctx).WarnContext(ctx, "sweep expired login attempts", "error", err)
		} else if n > 0 {
			slogx.FromContext(ctx).DebugContext(ctx, "swept expired login attempts", "count", n)
		}
	}

	// A collision of 256-bit states is practically impossible; one retry
	// keeps the invariant without looping on a broken random source.
	var err error
	for range 2 {
		var a domain.LoginAttempt
		a, err = s.newAttempt(now)
		if err != nil {
			return domain.LoginAttempt{}, err
		}
		err = s.Store.CreateLoginAttempt(ctx, a)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			break
		}
	}
	return domain.LoginAttempt{}, fmt.Errorf("issue login attempt: %w", err)
}

func (s *StateService) newAttempt(now time.Time) (domain.LoginAttempt, error) {
	state, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.LoginAttempt{}, err
	}
	nonce, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.LoginAttempt{}, err
	}
	return domain.LoginAttempt{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: oauth2.GenerateVerifier(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl()),
	}, nil
}

// Consume atomically takes the attempt for state. Unknown, reused and
// expired states all fail with ErrStateMismatch.
func (s *StateService) Consume(ctx context.Context, state string) (domain.LoginAttempt, error) {
	if state == "" {
		return domain.LoginAttempt{}, fmt.Errorf("%w: %w", ErrStateMismatch, store.ErrNotFound)
	}

	a, err := s.Store.ConsumeLoginAttempt(ctx, state, s.now())
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrExpired):
		return domain.LoginAttempt{}, fmt.Errorf("%w: %w", ErrStateMismatch, err)
	default:
		return domain.LoginAttempt{}, fmt.Errorf("consume login attempt: %w", err)
	}
}

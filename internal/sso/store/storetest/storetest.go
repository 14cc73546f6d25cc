// Package storetest holds behaviour tests every store driver must pass.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func attempt(state string, ttl time.Duration) domain.LoginAttempt {
	return domain.LoginAttempt{
		State:        state,
		Nonce:        "nonce-" + state,
		CodeVerifier: "verifier-" + state,
		CreatedAt:    base,
		ExpiresAt:    base.Add(ttl),
	}
}

func session(hash string, ttl time.Duration) domain.Session {
	return domain.Session{
		IDHash: hash,
		Claims: domain.IdentityClaims{
			Subject:   "user-" + hash,
			Issuer:    "https://issuer.test",
			Audience:  []string{"client"},
			ExpiresAt: base.Add(time.Hour),
			IssuedAt:  base,
			Nonce:     "n",
			Name:      "Ada",
			Email:     "ada@example.test",
			Raw:       map[string]any{"sub": "user-" + hash, "roles": []any{"admin"}},
		},
		CreatedAt: base,
		ExpiresAt: base.Add(ttl),
	}
}

// Run exercises the LoginAttempts and Sessions contracts.
func Run(t *testing.T, newStore Factory) {
	t.Run("LoginAttempts", func(t *testing.T) { runLoginAttempts(t, newStore) })
	t.Run("Sessions", func(t *testing.T) { runSessions(t, newStore) })
	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
}

func runLoginAttempts(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("consume succeeds once", func(t *testing.T) {
		la := newStore(t).LoginAttempts()
		want := attempt("s1", 10*time.Minute)
		require.NoError(t, la.CreateLoginAttempt(ctx, want))

		got, err := la.ConsumeLoginAttempt(ctx, "s1", base.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, want.Nonce, got.Nonce)
		require.Equal(t, want.CodeVerifier, got.CodeVerifier)
		require.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

		_, err = la.ConsumeLoginAttempt(ctx, "s1", base.Add(time.Minute))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := newStore(t).LoginAttempts().ConsumeLoginAttempt(ctx, "never-issued", base)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired on first use", func(t *testing.T) {
		la := newStore(t).LoginAttempts()
		require.NoError(t, la.CreateLoginAttempt(ctx, attempt("s2", time.Minute)))

		_, err := la.ConsumeLoginAttempt(ctx, "s2", base.Add(2*time.Minute))
		require.ErrorIs(t, err, store.ErrExpired)

		// Removed by the failed consume.
		_, err = la.ConsumeLoginAttempt(ctx, "s2", base)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate state", func(t *testing.T) {
		la := newStore(t).LoginAttempts()
		require.NoError(t, la.CreateLoginAttempt(ctx, attempt("dup", time.Minute)))
		require.ErrorIs(t, la.CreateLoginAttempt(ctx, attempt("dup", time.Minute)), store.ErrAlreadyExists)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		la := newStore(t).LoginAttempts()
		require.NoError(t, la.CreateLoginAttempt(ctx, attempt("race", time.Minute)))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := la.ConsumeLoginAttempt(ctx, "race", base); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, wins.Load())
	})

	t.Run("delete expired", func(t *testing.T) {
		la := newStore(t).LoginAttempts()
		require.NoError(t, la.CreateLoginAttempt(ctx, attempt("old", time.Minute)))
		require.NoError(t, la.CreateLoginAttempt(ctx, attempt("fresh", time.Hour)))

		_, err := la.DeleteExpiredLoginAttempts(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)

		_, err = la.ConsumeLoginAttempt(ctx, "old", base)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = la.ConsumeLoginAttempt(ctx, "fresh", base)
		require.NoError(t, err)
	})
}

func runSessions(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create get delete", func(t *testing.T) {
		ss := newStore(t).Sessions()
		want := session("h1", time.Hour)
		require.NoError(t, ss.CreateSession(ctx, want))

		got, err := ss.GetSessionByHash(ctx, "h1")
		require.NoError(t, err)
		require.Empty(t, got.ID)
		require.Equal(t, "h1", got.IDHash)
		require.Equal(t, want.Claims.Subject, got.Claims.Subject)
		require.Equal(t, want.Claims.Email, got.Claims.Email)
		require.Equal(t, want.Claims.Audience, got.Claims.Audience)
		require.Equal(t, want.Claims.Raw, got.Claims.Raw)
		require.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
		require.True(t, want.CreatedAt.Equal(got.CreatedAt))

		require.NoError(t, ss.DeleteSessionByHash(ctx, "h1"))
		_, err = ss.GetSessionByHash(ctx, "h1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		ss := newStore(t).Sessions()
		require.NoError(t, ss.DeleteSessionByHash(ctx, "missing"))
	})

	t.Run("duplicate hash", func(t *testing.T) {
		ss := newStore(t).Sessions()
		require.NoError(t, ss.CreateSession(ctx, session("dup", time.Hour)))
		require.ErrorIs(t, ss.CreateSession(ctx, session("dup", time.Hour)), store.ErrAlreadyExists)
	})

	t.Run("delete expired", func(t *testing.T) {
		ss := newStore(t).Sessions()
		require.NoError(t, ss.CreateSession(ctx, session("old", time.Minute)))
		require.NoError(t, ss.CreateSession(ctx, session("fresh", time.Hour)))

		_, err := ss.DeleteExpiredSessions(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)

		_, err = ss.GetSessionByHash(ctx, "old")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = ss.GetSessionByHash(ctx, "fresh")
		require.NoError(t, err)
	})
}

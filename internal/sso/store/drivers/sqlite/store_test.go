package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store/drivers/sqlite"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store/storetest"
)

func newMemoryStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(sqlite.MemoryDSN)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newMemoryStore)
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newMemoryStore(t)
	require.NoError(t, s.ApplyMigrations())
}

func TestSessionsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sso.db")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	s, err := sqlite.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Sessions().CreateSession(ctx, domain.Session{
		IDHash:    "hash",
		Claims:    domain.IdentityClaims{Subject: "user-1"},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, s.Close())

	reopened, err := sqlite.NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	require.NoError(t, reopened.ApplyMigrations())

	got, err := reopened.Sessions().GetSessionByHash(ctx, "hash")
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Claims.Subject)
	require.Equal(t, now.Add(time.Hour), got.ExpiresAt)
}

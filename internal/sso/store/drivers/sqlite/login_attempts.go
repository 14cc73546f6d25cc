package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
)

type loginAttemptsRepo struct {
	db *sql.DB
}

func (r *loginAttemptsRepo) CreateLoginAttempt(ctx context.Context, a domain.LoginAttempt) error {
	return mapInserted(r.db.ExecContext(ctx, `
		INSERT INTO login_attempts (state, nonce, code_verifier, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (state) DO NOTHING`,
		a.State, a.Nonce, a.CodeVerifier, toMillis(a.CreatedAt), toMillis(a.ExpiresAt),
	))
}

// ConsumeLoginAttempt relies on DELETE ... RETURNING being a single
// statement, so only one caller can ever get the row back.
func (r *loginAttemptsRepo) ConsumeLoginAttempt(ctx context.Context, state string, now time.Time) (domain.LoginAttempt, error) {
	var (
		a                    = domain.LoginAttempt{State: state}
		createdAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM login_attempts
		WHERE state = ?
		RETURNING nonce, code_verifier, created_at, expires_at`,
		state,
	).Scan(&a.Nonce, &a.CodeVerifier, &createdAt, &expiresAt)
	if err != nil {
		return domain.LoginAttempt{}, mapNotFound(err)
	}

	a.CreatedAt = fromMillis(createdAt)
	a.ExpiresAt = fromMillis(expiresAt)
	if a.Expired(now) {
		return domain.LoginAttempt{}, store.ErrExpired
	}
	return a, nil
}

func (r *loginAttemptsRepo) DeleteExpiredLoginAttempts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

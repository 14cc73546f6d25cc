package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
)

type sessionsRepo struct {
	db *sql.DB
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	claims, err := json.Marshal(s.Claims)
	if err != nil {
		return fmt.Errorf("sqlite: encode claims: %w", err)
	}

	return mapInserted(r.db.ExecContext(ctx, `
		INSERT INTO sessions (id_hash, subject, claims, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id_hash) DO NOTHING`,
		s.IDHash, s.Claims.Subject, string(claims), toMillis(s.CreatedAt), toMillis(s.ExpiresAt),
	))
}

func (r *sessionsRepo) GetSessionByHash(ctx context.Context, hash string) (domain.Session, error) {
	var (
		s                    = domain.Session{IDHash: hash}
		claims               string
		createdAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT claims, created_at, expires_at
		FROM sessions
		WHERE id_hash = ?`,
		hash,
	).Scan(&claims, &createdAt, &expiresAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}

	if err := json.Unmarshal([]byte(claims), &s.Claims); err != nil {
		return domain.Session{}, fmt.Errorf("sqlite: decode claims: %w", err)
	}
	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	return s, nil
}

func (r *sessionsRepo) DeleteSessionByHash(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id_hash = ?`, hash)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

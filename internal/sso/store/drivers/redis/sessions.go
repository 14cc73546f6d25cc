package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
)

type sessionsRepo struct {
	s *Store
}

func (r *sessionsRepo) CreateSession(ctx context.Context, sess domain.Session) error {
	sess.ID = ""
	return r.s.create(ctx, r.s.key(sessionKeyspace, sess.IDHash), sess, ttlFor(sess.CreatedAt, sess.ExpiresAt))
}

func (r *sessionsRepo) GetSessionByHash(ctx context.Context, hash string) (domain.Session, error) {
	data, err := r.s.rdb.Get(ctx, r.s.key(sessionKeyspace, hash)).Result()

	var sess domain.Session
	if err := decode(data, err, &sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

func (r *sessionsRepo) DeleteSessionByHash(ctx context.Context, hash string) error {
	if err := r.s.rdb.Del(ctx, r.s.key(sessionKeyspace, hash)).Err(); err != nil {
		return fmt.Errorf("redis: del: %w", err)
	}
	return nil
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired[domain.Session](ctx, r.s, sessionKeyspace, now)
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
)

type loginAttemptsRepo struct {
	s *Store
}

func (r *loginAttemptsRepo) CreateLoginAttempt(ctx context.Context, a domain.LoginAttempt) error {
	return r.s.create(ctx, r.s.key(stateKeyspace, a.State), a, ttlFor(a.CreatedAt, a.ExpiresAt))
}

// ConsumeLoginAttempt uses GETDEL, which reads and removes the key in one
// server-side step.
func (r *loginAttemptsRepo) ConsumeLoginAttempt(ctx context.Context, state string, now time.Time) (domain.LoginAttempt, error) {
	data, err := r.s.rdb.GetDel(ctx, r.s.key(stateKeyspace, state)).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return domain.LoginAttempt{}, fmt.Errorf("redis: getdel: %w", err)
	}

	var a domain.LoginAttempt
	if err := decode(data, err, &a); err != nil {
		return domain.LoginAttempt{}, err
	}
	if a.Expired(now) {
		return domain.LoginAttempt{}, store.ErrExpired
	}
	return a, nil
}

func (r *loginAttemptsRepo) DeleteExpiredLoginAttempts(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired[domain.LoginAttempt](ctx, r.s, stateKeyspace, now)
}

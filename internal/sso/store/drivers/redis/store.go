// Package redis is the shared store backend for horizontally scaled
// deployments. Records are JSON values with a TTL, so Redis itself expires
// abandoned logins and sessions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
)

const (
	DefaultKeyPrefix = "sso:"

	stateKeyspace   = "state:"
	sessionKeyspace = "session:"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store keeps login attempts under {prefix}state:{state} and sessions under
// {prefix}session:{id hash}.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	owned  bool
}

var _ store.Store = (*Store)(nil)

// NewStore dials Redis with cfg. The connection is checked lazily; call
// Ping to fail fast.
func NewStore(cfg Config) *Store {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	s := NewStoreWithClient(rdb, cfg.KeyPrefix)
	s.owned = true
	return s
}

// NewStoreWithClient wraps an existing client, which the caller keeps
// ownership of.
func NewStoreWithClient(rdb goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) LoginAttempts() store.LoginAttempts { return &loginAttemptsRepo{s: s} }
func (s *Store) Sessions() store.Sessions           { return &sessionsRepo{s: s} }

// ApplyMigrations is a no-op; Redis has no schema.
func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) key(keyspace, id string) string {
	return s.prefix + keyspace + id
}

// ttlFor is the key lifetime. It is derived from the record's own validity
// window rather than the wall clock so the stored expiry stays authoritative.
func ttlFor(createdAt, expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(createdAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *Store) create(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: encode: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func decode(data string, err error, v any) error {
	if errors.Is(err, goredis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("redis: decode: %w", err)
	}
	return nil
}

// deleteExpired walks a keyspace with SCAN and removes records whose stored
// expiry has passed. Redis TTLs normally get there first.
func deleteExpired[T interface{ Expired(time.Time) bool }](ctx context.Context, s *Store, keyspace string, now time.Time) (int64, error) {
	var (
		deleted int64
		cursor  uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+keyspace+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis: scan: %w", err)
		}
		for _, k := range keys {
			var rec T
			data, err := s.rdb.Get(ctx, k).Result()
			if err := decode(data, err, &rec); err != nil {
				continue
			}
			if !rec.Expired(now) {
				continue
			}
			n, err := s.rdb.Del(ctx, k).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis: del: %w", err)
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

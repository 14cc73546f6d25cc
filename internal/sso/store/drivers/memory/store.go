// Package memory is an in-process store backend for tests and single
// instance development setups. Its contents do not survive a restart.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
)

type Store struct {
	mu       sync.Mutex
	attempts map[string]domain.LoginAttempt
	sessions map[string]domain.Session
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		attempts: make(map[string]domain.LoginAttempt),
		sessions: make(map[string]domain.Session),
	}
}

func (s *Store) LoginAttempts() store.LoginAttempts { return (*loginAttempts)(s) }
func (s *Store) Sessions() store.Sessions           { return (*sessions)(s) }

func (s *Store) ApplyMigrations() error     { return nil }
func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

type loginAttempts Store

func (r *loginAttempts) CreateLoginAttempt(_ context.Context, a domain.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.attempts[a.State]; ok {
		return store.ErrAlreadyExists
	}
	r.attempts[a.State] = a
	return nil
}

func (r *loginAttempts) ConsumeLoginAttempt(_ context.Context, state string, now time.Time) (domain.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[state]
	if !ok {
		return domain.LoginAttempt{}, store.ErrNotFound
	}
	delete(r.attempts, state)

	if a.Expired(now) {
		return domain.LoginAttempt{}, store.ErrExpired
	}
	return a, nil
}

func (r *loginAttempts) DeleteExpiredLoginAttempts(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.attempts)
	maps.DeleteFunc(r.attempts, func(_ string, a domain.LoginAttempt) bool { return a.Expired(now) })
	return int64(before - len(r.attempts)), nil
}

type sessions Store

func (r *sessions) CreateSession(_ context.Context, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.IDHash]; ok {
		return store.ErrAlreadyExists
	}
	s.ID = ""
	r.sessions[s.IDHash] = s
	return nil
}

func (r *sessions) GetSessionByHash(_ context.Context, hash string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[hash]
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	return s, nil
}

func (r *sessions) DeleteSessionByHash(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, hash)
	return nil
}

func (r *sessions) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.sessions)
	maps.DeleteFunc(r.sessions, func(_ string, s domain.Session) bool { return s.Expired(now) })
	return int64(before - len(r.sessions)), nil
}

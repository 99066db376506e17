package repofakes

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/auth"
)

var _ auth.SessionRepository = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-memory auth.SessionRepository for tests
type FakeSessionRepo struct {
	sessions map[string]auth.Session
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]auth.Session),
	}
}

func (r *FakeSessionRepo) Create(_ context.Context, s *auth.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.sessions[s.ID] = *s
	return nil
}

func (r *FakeSessionRepo) Get(_ context.Context, id string) (*auth.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	return &s, nil
}

func (r *FakeSessionRepo) Revoke(_ context.Context, id string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return auth.ErrSessionNotFound
	}
	if !s.RevokedAt.Valid {
		s.RevokedAt = sql.NullTime{Time: at, Valid: true}
		r.sessions[id] = s
	}
	return nil
}

// Count returns the number of stored sessions
func (r *FakeSessionRepo) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.sessions)
}

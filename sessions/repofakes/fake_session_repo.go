package fakesessionrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
	}
}

func (sr *FakeSessionRepo) Upsert(_ context.Context, key string, session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.sessions[key] = session.Clone()
	return nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, key string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.sessions, key)
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, key string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	session, ok := sr.sessions[key]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Package testsupport holds test doubles shared between packages.
package testsupport

import (
	"context"
	"errors"
	"sync"
	"time"

	"vivpro-songs/internal/models"
)

// ErrStubFailure is returned by SessionStoreStub operations switched to fail.
var ErrStubFailure = errors.New("session store stub failure")

// SessionStoreStub is an in-memory auth.SessionStore whose operations can be
// made to fail, and whose contents can be seeded and inspected.
type SessionStoreStub struct {
	mu       sync.RWMutex
	sessions map[string]models.Session

	FailSave   bool
	FailGet    bool
	FailDelete bool
	FailPurge  bool
	FailPing   bool
}

// NewSessionStoreStub constructs a SessionStoreStub with empty state.
func NewSessionStoreStub() *SessionStoreStub {
	return &SessionStoreStub{sessions: make(map[string]models.Session)}
}

func (s *SessionStoreStub) Save(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave {
		return ErrStubFailure
	}
	session.ExpiresAt = session.ExpiresAt.UTC()
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStoreStub) Get(_ context.Context, id string) (models.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailGet {
		return models.Session{}, false, ErrStubFailure
	}
	session, ok := s.sessions[id]
	return session, ok, nil
}

func (s *SessionStoreStub) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete {
		return false, ErrStubFailure
	}
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok, nil
}

// PurgeExpired removes sessions whose expiry is not after now.
func (s *SessionStoreStub) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPurge {
		return 0, ErrStubFailure
	}
	var n int64
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *SessionStoreStub) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailPing {
		return ErrStubFailure
	}
	return nil
}

// SetFailDelete toggles Delete failures while other goroutines use the stub.
func (s *SessionStoreStub) SetFailDelete(fail bool) {
	s.mu.Lock()
	s.FailDelete = fail
	s.mu.Unlock()
}

// Seed inserts a session, overriding any existing entry.
func (s *SessionStoreStub) Seed(session models.Session) {
	s.mu.Lock()
	session.ExpiresAt = session.ExpiresAt.UTC()
	s.sessions[session.ID] = session
	s.mu.Unlock()
}

// Session looks up a stored session by id.
func (s *SessionStoreStub) Session(id string) (models.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	return session, ok
}

func (s *SessionStoreStub) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vivpro-songs/internal/apperr"
	"vivpro-songs/internal/models"
)

// DefaultSessionTTL is the lifetime of a freshly created session.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionStore defines the persistence contract for sessions.
type SessionStore interface {
	Save(ctx context.Context, session models.Session) error
	Get(ctx context.Context, id string) (models.Session, bool, error)
	// Delete removes the session and reports whether a row existed.
	Delete(ctx context.Context, id string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithStore injects a custom SessionStore implementation.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		m.store = store
	}
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDFactory overrides session id generation.
func WithIDFactory(factory func() (string, error)) SessionOption {
	return func(m *SessionManager) {
		if factory != nil {
			m.idFactory = factory
		}
	}
}

// WithDeletionQueue hands ids whose deletion failed to queue for a later retry.
func WithDeletionQueue(queue DeletionQueue) SessionOption {
	return func(m *SessionManager) {
		m.retry = queue
	}
}

// WithLogger sets the logger used for best-effort cleanup failures.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// SessionManager coordinates session creation and validation against a backing store.
type SessionManager struct {
	store     SessionStore
	ttl       time.Duration
	now       func() time.Time
	idFactory func() (string, error)
	retry     DeletionQueue
	logger    *slog.Logger
}

// NewSessionManager constructs a SessionManager with the provided TTL and options.
// The manager defaults to a 7-day TTL and an in-memory store for local development when no store is supplied.
func NewSessionManager(ttl time.Duration, opts ...SessionOption) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	manager := &SessionManager{
		ttl:       ttl,
		now:       time.Now,
		idFactory: models.NewID,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.store == nil {
		manager.store = NewMemorySessionStore()
	}
	return manager
}

// TTL returns the lifetime applied to new sessions.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create issues a new session for the provided user identifier. The session
// expires exactly TTL after creation.
func (m *SessionManager) Create(ctx context.Context, userID string) (models.Session, error) {
	if userID == "" {
		return models.Session{}, ErrInvalidUserID
	}
	id, err := m.idFactory()
	if err != nil {
		return models.Session{}, err
	}
	session := models.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: m.now().Add(m.ttl).UTC(),
	}
	if err := m.store.Save(ctx, session); err != nil {
		return models.Session{}, apperr.Storage("save session", err)
	}
	return session, nil
}

// Get looks a session up without evaluating expiry.
func (m *SessionManager) Get(ctx context.Context, id string) (models.Session, bool, error) {
	if id == "" {
		return models.Session{}, false, nil
	}
	session, ok, err := m.store.Get(ctx, id)
	if err != nil {
		return models.Session{}, false, apperr.Storage("get session", err)
	}
	return session, ok, nil
}

// Delete removes the session and reports whether it existed. Deleting an
// absent session is not an error.
func (m *SessionManager) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	deleted, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, apperr.Storage("delete session", err)
	}
	return deleted, nil
}

// Validate returns the session behind id when it exists and has not expired.
// Expired sessions are deleted on the way out; a failed delete is queued for
// retry and never surfaced to the caller.
func (m *SessionManager) Validate(ctx context.Context, id string) (models.Session, error) {
	if id == "" {
		return models.Session{}, apperr.NewAuthError(apperr.Unauthenticated)
	}
	session, ok, err := m.Get(ctx, id)
	if err != nil {
		return models.Session{}, err
	}
	if !ok {
		return models.Session{}, apperr.NewAuthError(apperr.SessionNotFound)
	}
	if session.Expired(m.now()) {
		if _, err := m.store.Delete(ctx, id); err != nil {
			m.ScheduleDeletion(ctx, id, err)
		}
		return models.Session{}, apperr.NewAuthError(apperr.Expired)
	}
	return session, nil
}

// ScheduleDeletion records a failed delete and hands the id to the retry
// queue when one is configured.
func (m *SessionManager) ScheduleDeletion(ctx context.Context, id string, cause error) {
	m.logger.Warn("session delete failed", "session_id", id, "error", cause)
	if m.retry == nil {
		return
	}
	if err := m.retry.Enqueue(context.WithoutCancel(ctx), id); err != nil {
		m.logger.Error("queue session delete", "session_id", id, "error", err)
	}
}

// PurgeExpired removes any expired sessions from the backing store.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := m.store.PurgeExpired(ctx, m.now())
	if err != nil {
		return 0, apperr.Storage("purge sessions", err)
	}
	return removed, nil
}

// Ping verifies the underlying session store is reachable when it exposes a ping method.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// ErrInvalidUserID is returned when attempting to create a session without a user identifier.
var ErrInvalidUserID = errors.New("userID is required")

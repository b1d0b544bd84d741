// Package accounts implements registration, login, logout and the
// owner-checked user lookup.
package accounts

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"vivpro-songs/internal/apperr"
	"vivpro-songs/internal/auth"
	"vivpro-songs/internal/models"
	"vivpro-songs/internal/storage"
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// Service coordinates the user store, the password hasher and sessions.
type Service struct {
	users    storage.UserRepository
	sessions *auth.SessionManager
	hasher   Hasher
	newID    func() (string, error)
	logger   *slog.Logger

	decoyOnce sync.Once
	decoy     string
}

// Option customises a Service.
type Option func(*Service)

// WithIDFactory overrides user id generation.
func WithIDFactory(factory func() (string, error)) Option {
	return func(s *Service) {
		if factory != nil {
			s.newID = factory
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires the account operations.
func NewService(users storage.UserRepository, sessions *auth.SessionManager, hasher Hasher, opts ...Option) *Service {
	s := &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		newID:    models.NewID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RegisterParams carries validated registration input.
type RegisterParams struct {
	Username string
	Name     string
	Password string
}

// Register creates a user. Usernames are unique and compared case-sensitively.
// No session is created.
func (s *Service) Register(ctx context.Context, params RegisterParams) (models.User, error) {
	_, exists, err := s.users.FindUserByUsername(ctx, params.Username)
	if err != nil {
		return models.User{}, apperr.Storage("find user", err)
	}
	if exists {
		return models.User{}, &apperr.ConflictError{Field: "username", Value: params.Username}
	}
	hash, err := s.hasher.Hash(params.Password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return models.User{}, apperr.Invalid("password", "must be at most 72 bytes long")
	}
	if err != nil {
		return models.User{}, err
	}
	id, err := s.newID()
	if err != nil {
		return models.User{}, err
	}
	user := models.User{ID: id, Username: params.Username, Name: params.Name, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// A concurrent registration can still win the unique index.
		if errors.Is(err, storage.ErrDuplicateUsername) {
			return models.User{}, &apperr.ConflictError{Field: "username", Value: params.Username}
		}
		return models.User{}, apperr.Storage("create user", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and opens a session. An unknown username and a
// wrong password produce the same error.
func (s *Service) Login(ctx context.Context, username, password string) (models.Session, error) {
	user, ok, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		return models.Session{}, apperr.Storage("find user", err)
	}
	if !ok {
		// Spend the same hashing work as a real account so response time
		// does not reveal which usernames exist.
		s.hasher.Verify(password, s.decoyHash())
		return models.Session{}, apperr.ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return models.Session{}, apperr.ErrInvalidCredentials
	}
	session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return models.Session{}, err
	}
	s.logger.Info("session created", "user_id", user.ID)
	return session, nil
}

func (s *Service) decoyHash() string {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash("decoy-password")
		if err != nil {
			s.logger.Warn("decoy password hash", "error", err)
			return
		}
		s.decoy = hash
	})
	return s.decoy
}

// Logout deletes the session. A session that is already gone is reported as
// not found. A storage failure is queued for retry and still returned.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	deleted, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		s.sessions.ScheduleDeletion(ctx, sessionID, err)
		return err
	}
	if !deleted {
		return &apperr.NotFoundError{Resource: "session"}
	}
	return nil
}

// GetUser returns the account named username when it belongs to the caller.
func (s *Service) GetUser(ctx context.Context, caller auth.Identity, username string) (models.User, error) {
	user, ok, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		return models.User{}, apperr.Storage("find user", err)
	}
	if !ok {
		return models.User{}, &apperr.NotFoundError{Resource: "user", Key: username}
	}
	if user.ID != caller.UserID {
		return models.User{}, apperr.NewAuthError(apperr.Forbidden)
	}
	return user, nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vivpro-songs/internal/models"
)

// PostgresSessionStore persists sessions to the sessions table, allowing multiple
// API replicas to share authentication state. The pool is owned by the caller.
type PostgresSessionStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// PostgresSessionOption configures a PostgresSessionStore.
type PostgresSessionOption func(*PostgresSessionStore)

// WithTimeout bounds every statement issued by the store.
func WithTimeout(timeout time.Duration) PostgresSessionOption {
	return func(s *PostgresSessionStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewPostgresSessionStore wraps an existing pool.
func NewPostgresSessionStore(pool *pgxpool.Pool, opts ...PostgresSessionOption) (*PostgresSessionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres session pool required")
	}
	store := &PostgresSessionStore{pool: pool}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *PostgresSessionStore) withConn(ctx context.Context, fn func(context.Context, *pgxpool.Conn) error) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres session pool not configured")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return fn(ctx, conn)
}

// Save inserts the session.
func (s *PostgresSessionStore) Save(ctx context.Context, session models.Session) error {
	return s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `
INSERT INTO sessions (id, user_id, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
`, session.ID, session.UserID, session.ExpiresAt.UTC())
		return err
	})
}

// Get fetches the session for the provided id.
func (s *PostgresSessionStore) Get(ctx context.Context, id string) (models.Session, bool, error) {
	var (
		session models.Session
		found   bool
	)
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `SELECT user_id, expires_at FROM sessions WHERE id = $1`, id)
		session.ID = id
		if err := row.Scan(&session.UserID, &session.ExpiresAt); err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return models.Session{}, false, err
	}
	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, true, nil
}

// Delete removes the session.
func (s *PostgresSessionStore) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// PurgeExpired deletes expired sessions from the table.
func (s *PostgresSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now.UTC())
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return nil
	})
	return removed, err
}

// Ping checks the pool can reach the database.
func (s *PostgresSessionStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.Ping(ctx)
	})
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows)
}

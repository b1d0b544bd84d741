package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vivpro-songs/internal/models"
)

// SQLSessionStore persists sessions through database/sql. It is used with the
// embedded SQLite backend, where expiry is kept as Unix nanoseconds.
type SQLSessionStore struct {
	db *sql.DB
}

// NewSQLSessionStore wraps an existing handle. The caller owns db.
func NewSQLSessionStore(db *sql.DB) (*SQLSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sql session db required")
	}
	return &SQLSessionStore{db: db}, nil
}

func (s *SQLSessionStore) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// Save inserts the session.
func (s *SQLSessionStore) Save(ctx context.Context, session models.Session) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id, expires_at = excluded.expires_at
`, session.ID, session.UserID, session.ExpiresAt.UnixNano())
		return err
	})
}

// Get fetches the session for the provided id.
func (s *SQLSessionStore) Get(ctx context.Context, id string) (models.Session, bool, error) {
	var (
		session models.Session
		expires int64
		found   bool
	)
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT user_id, expires_at FROM sessions WHERE id = ?`, id)
		if err := row.Scan(&session.UserID, &expires); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
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
	session.ID = id
	session.ExpiresAt = time.Unix(0, expires).UTC()
	return session, true, nil
}

// Delete removes the session.
func (s *SQLSessionStore) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// PurgeExpired deletes expired sessions.
func (s *SQLSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UnixNano())
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// Ping checks the database is reachable.
func (s *SQLSessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

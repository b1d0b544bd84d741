package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"vivpro-songs/internal/models"
)

// SQLiteRepository implements Repository on database/sql. Each operation
// checks out one connection from the fixed pool and returns it on exit.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps db. The caller owns db.
func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite db required")
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
			return ErrStoreClosed
		}
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.withConn(ctx, func(conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, user models.User) error {
	return r.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO users (id, username, name, pwd_hash) VALUES (?, ?, ?, ?)`,
			user.ID, user.Username, user.Name, user.PasswordHash)
		if err != nil {
			if isSQLiteUnique(err) {
				return ErrDuplicateUsername
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) FindUserByUsername(ctx context.Context, username string) (models.User, bool, error) {
	var (
		user  models.User
		found bool
	)
	err := r.withConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT id, username, name, pwd_hash FROM users WHERE username = ?`, username)
		if err := row.Scan(&user.ID, &user.Username, &user.Name, &user.PasswordHash); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("select user: %w", err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return models.User{}, false, err
	}
	return user, true, nil
}

func (r *SQLiteRepository) InsertSongs(ctx context.Context, songs []models.Song) (int64, error) {
	var inserted int64
	err := r.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin song import: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, sqliteDialect.insertSongSQL())
		if err != nil {
			return fmt.Errorf("prepare song insert: %w", err)
		}
		defer stmt.Close()
		for _, song := range songs {
			res, err := stmt.ExecContext(ctx, songArgs(song)...)
			if err != nil {
				return fmt.Errorf("insert song %d/%s: %w", song.Idx, song.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += n
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *SQLiteRepository) ListSongs(ctx context.Context, query SongQuery) ([]models.Song, error) {
	stmt, args, err := sqliteDialect.listSongsSQL(query)
	if err != nil {
		return nil, err
	}
	var songs []models.Song
	err = r.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("list songs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			song, err := scanSong(rows)
			if err != nil {
				return fmt.Errorf("scan song: %w", err)
			}
			songs = append(songs, song)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return songs, nil
}

func (r *SQLiteRepository) GetSong(ctx context.Context, key models.SongKey) (models.Song, bool, error) {
	var (
		song  models.Song
		found bool
	)
	err := r.withConn(ctx, func(conn *sql.Conn) error {
		s, err := scanSong(conn.QueryRowContext(ctx, sqliteDialect.getSongSQL(), key.Idx, key.ID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("select song: %w", err)
		}
		song, found = s, true
		return nil
	})
	if err != nil || !found {
		return models.Song{}, false, err
	}
	return song, true, nil
}

func (r *SQLiteRepository) SongRatings(ctx context.Context, userID string, keys []models.SongKey) (map[models.SongKey]models.RatingSummary, error) {
	if len(keys) == 0 {
		return map[models.SongKey]models.RatingSummary{}, nil
	}
	stmt, args := sqliteDialect.songRatingsSQL(userID, keys)
	var out map[models.SongKey]models.RatingSummary
	err := r.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("select ratings: %w", err)
		}
		defer rows.Close()
		out, err = collectRatings(keys, rows.Next, func(key *models.SongKey, summary *models.RatingSummary) error {
			return rows.Scan(&key.Idx, &key.ID, &summary.Average, &summary.Mine)
		})
		if err != nil {
			return fmt.Errorf("scan ratings: %w", err)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepository) UpsertRating(ctx context.Context, rating models.Rating) error {
	return r.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, sqliteDialect.upsertRatingSQL(),
			rating.SongIdx, rating.SongID, rating.UserID, rating.Rating)
		if err != nil {
			return fmt.Errorf("upsert rating: %w", err)
		}
		return nil
	})
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/puddle/v2"

	"vivpro-songs/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository on a shared pgx pool. Every
// operation checks out one connection and returns it before leaving.
type PostgresRepository struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewPostgresRepository wraps pool. The caller owns the pool.
func NewPostgresRepository(pool *pgxpool.Pool, acquireTimeout time.Duration) (*PostgresRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres pool required")
	}
	return &PostgresRepository{pool: pool, acquireTimeout: acquireTimeout}, nil
}

func (r *PostgresRepository) withConn(ctx context.Context, fn func(context.Context, *pgxpool.Conn) error) error {
	acquireCtx := ctx
	if r.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, r.acquireTimeout)
		defer cancel()
	}
	conn, err := r.pool.Acquire(acquireCtx)
	if err != nil {
		if errors.Is(err, puddle.ErrClosedPool) {
			return ErrStoreClosed
		}
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return fn(ctx, conn)
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.Ping(ctx)
	})
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user models.User) error {
	return r.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO users (id, username, name, pwd_hash) VALUES ($1, $2, $3, $4)`,
			user.ID, user.Username, user.Name, user.PasswordHash)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return ErrDuplicateUsername
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) FindUserByUsername(ctx context.Context, username string) (models.User, bool, error) {
	var (
		user  models.User
		found bool
	)
	err := r.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `SELECT id, username, name, pwd_hash FROM users WHERE username = $1`, username)
		if err := row.Scan(&user.ID, &user.Username, &user.Name, &user.PasswordHash); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
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

func (r *PostgresRepository) InsertSongs(ctx context.Context, songs []models.Song) (int64, error) {
	var inserted int64
	err := r.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return fmt.Errorf("begin song import: %w", err)
		}
		defer rollbackTx(ctx, tx)

		stmt := postgresDialect.insertSongSQL()
		for _, song := range songs {
			tag, err := tx.Exec(ctx, stmt, songArgs(song)...)
			if err != nil {
				return fmt.Errorf("insert song %d/%s: %w", song.Idx, song.ID, err)
			}
			inserted += tag.RowsAffected()
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *PostgresRepository) ListSongs(ctx context.Context, query SongQuery) ([]models.Song, error) {
	stmt, args, err := postgresDialect.listSongsSQL(query)
	if err != nil {
		return nil, err
	}
	var songs []models.Song
	err = r.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, stmt, args...)
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

func (r *PostgresRepository) GetSong(ctx context.Context, key models.SongKey) (models.Song, bool, error) {
	var (
		song  models.Song
		found bool
	)
	err := r.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		s, err := scanSong(conn.QueryRow(ctx, postgresDialect.getSongSQL(), key.Idx, key.ID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
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

func (r *PostgresRepository) SongRatings(ctx context.Context, userID string, keys []models.SongKey) (map[models.SongKey]models.RatingSummary, error) {
	if len(keys) == 0 {
		return map[models.SongKey]models.RatingSummary{}, nil
	}
	stmt, args := postgresDialect.songRatingsSQL(userID, keys)
	var out map[models.SongKey]models.RatingSummary
	err := r.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, stmt, args...)
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

func (r *PostgresRepository) UpsertRating(ctx context.Context, rating models.Rating) error {
	return r.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, postgresDialect.upsertRatingSQL(),
			rating.SongIdx, rating.SongID, rating.UserID, rating.Rating)
		if err != nil {
			return fmt.Errorf("upsert rating: %w", err)
		}
		return nil
	})
}

package storage

import (
	"context"
	"errors"

	"vivpro-songs/internal/models"
)

var (
	// ErrDuplicateUsername is returned when a username is already registered.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrStoreClosed is returned once the underlying pool has been closed.
	ErrStoreClosed = errors.New("storage closed")
)

// UserRepository persists registered accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) error
	// FindUserByUsername matches the username exactly, case-sensitively.
	FindUserByUsername(ctx context.Context, username string) (models.User, bool, error)
}

// SongRepository persists the catalog and per-user ratings.
type SongRepository interface {
	// InsertSongs adds songs, skipping keys already present, and returns how
	// many rows were inserted.
	InsertSongs(ctx context.Context, songs []models.Song) (int64, error)
	ListSongs(ctx context.Context, query SongQuery) ([]models.Song, error)
	GetSong(ctx context.Context, key models.SongKey) (models.Song, bool, error)
	// SongRatings returns the average rating and userID's own rating for each
	// key that has at least one rating. userID may be empty.
	SongRatings(ctx context.Context, userID string, keys []models.SongKey) (map[models.SongKey]models.RatingSummary, error)
	UpsertRating(ctx context.Context, rating models.Rating) error
}

// Repository is the full datastore used by the services.
type Repository interface {
	UserRepository
	SongRepository
	Ping(ctx context.Context) error
}

// SongQuery selects a page of catalog rows.
type SongQuery struct {
	// TitleContains filters case-insensitively on a title substring when set.
	TitleContains string
	// OrderBy is a catalog field name such as "idx" or "duration_ms".
	OrderBy    string
	Descending bool
	Offset     int
	Limit      int
}

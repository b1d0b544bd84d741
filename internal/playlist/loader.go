package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"vivpro-songs/internal/models"
	"vivpro-songs/internal/storage"
)

const (
	defaultBatchSize   = 200
	defaultConcurrency = 2
)

// Loader imports playlists into the song catalog.
type Loader struct {
	repo        storage.SongRepository
	logger      *slog.Logger
	batchSize   int
	concurrency int
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used for import progress.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithBatchSize sets how many rows are written per repository call.
func WithBatchSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithConcurrency bounds how many batches are written at once.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// NewLoader builds a Loader writing to repo.
func NewLoader(repo storage.SongRepository, opts ...LoaderOption) *Loader {
	l := &Loader{
		repo:        repo,
		logger:      slog.Default(),
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result summarises one import.
type Result struct {
	Rows     int
	Inserted int64
	Duration time.Duration
}

// Load reads, validates and imports the playlist at src. Rows whose key
// already exists are left untouched, so repeated imports are harmless.
func (l *Loader) Load(ctx context.Context, src Source) (Result, error) {
	started := time.Now()
	body, err := src.Open(ctx)
	if err != nil {
		return Result{}, err
	}
	defer body.Close()

	songs, err := Decode(body)
	if err != nil {
		return Result{}, err
	}
	inserted, err := l.Insert(ctx, songs)
	res := Result{Rows: len(songs), Inserted: inserted, Duration: time.Since(started)}
	if err != nil {
		return res, err
	}
	l.logger.Info("playlist imported",
		"source", src.String(),
		"rows", res.Rows,
		"inserted", res.Inserted,
		"duration", res.Duration,
	)
	return res, nil
}

// Insert writes songs in batches and returns how many were new.
func (l *Loader) Insert(ctx context.Context, songs []models.Song) (int64, error) {
	var inserted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for start := 0; start < len(songs); start += l.batchSize {
		end := min(start+l.batchSize, len(songs))
		batch := songs[start:end]
		g.Go(func() error {
			n, err := l.repo.InsertSongs(gctx, batch)
			if err != nil {
				return fmt.Errorf("insert songs %d..%d: %w", batch[0].Idx, batch[len(batch)-1].Idx, err)
			}
			inserted.Add(n)
			return nil
		})
	}
	err := g.Wait()
	return inserted.Load(), err
}

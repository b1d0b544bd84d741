// Command import-playlist loads a playlist JSON document into the configured
// datastore and verifies every row landed.
//
// Usage:
//
//	import-playlist -source playlist.json [-batch-size N] [-- server flags]
//	import-playlist -source s3://bucket/playlist.json -- -s3-endpoint http://minio:9000
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"vivpro-songs/internal/backend"
	"vivpro-songs/internal/config"
	"vivpro-songs/internal/models"
	"vivpro-songs/internal/observability/logging"
	"vivpro-songs/internal/playlist"
	"vivpro-songs/internal/storage"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.LookupEnv, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "import-playlist: %v\n", err)
		os.Exit(1)
	}
}

type importFlags struct {
	source      string
	batchSize   int
	concurrency int
	verify      bool
}

func parseFlags(args []string, stderr io.Writer) (importFlags, []string, error) {
	var f importFlags
	fs := flag.NewFlagSet("import-playlist", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.source, "source", "", "playlist file path or s3://bucket/key")
	fs.IntVar(&f.batchSize, "batch-size", 200, "rows written per insert")
	fs.IntVar(&f.concurrency, "concurrency", 2, "batches written in parallel")
	fs.BoolVar(&f.verify, "verify", true, "check every playlist row exists after the import")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	f.source = strings.TrimSpace(f.source)
	if f.source == "" {
		return f, nil, errors.New("-source is required")
	}
	if f.batchSize <= 0 || f.concurrency <= 0 {
		return f, nil, errors.New("-batch-size and -concurrency must be positive")
	}
	return f, fs.Args(), nil
}

func run(ctx context.Context, args []string, lookup config.LookupEnv, stderr io.Writer) error {
	flags, rest, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load(rest, lookup, stderr)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: stderr})

	src, err := playlist.ParseSource(ctx, flags.source, backend.PlaylistS3Config(cfg.Playlist.S3))
	if err != nil {
		return err
	}
	songs, err := readPlaylist(ctx, src)
	if err != nil {
		return err
	}
	logger.Info("loaded playlist", "source", src.String(), "rows", len(songs))

	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("close datastore", "error", err)
		}
	}()

	started := time.Now()
	loader := playlist.NewLoader(b.Repo,
		playlist.WithLogger(logger),
		playlist.WithBatchSize(flags.batchSize),
		playlist.WithConcurrency(flags.concurrency),
	)
	inserted, err := loader.Insert(ctx, songs)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if flags.verify {
		if err := verifySongs(ctx, b.Repo, songs, logger); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
	}
	logger.Info("import completed",
		"rows", len(songs),
		"inserted", inserted,
		"skipped", int64(len(songs))-inserted,
		"duration", time.Since(started),
	)
	return nil
}

func readPlaylist(ctx context.Context, src playlist.Source) ([]models.Song, error) {
	body, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return playlist.Decode(body)
}

// verifySongs checks each playlist key is present. Rows that already existed
// with different attributes are reported but do not fail the import.
func verifySongs(ctx context.Context, repo storage.SongRepository, songs []models.Song, logger *slog.Logger) error {
	var missing []string
	for _, song := range songs {
		stored, ok, err := repo.GetSong(ctx, song.SongKey())
		if err != nil {
			return fmt.Errorf("read song %d/%s: %w", song.Idx, song.ID, err)
		}
		if !ok {
			missing = append(missing, fmt.Sprintf("%d/%s", song.Idx, song.ID))
			continue
		}
		if stored.Title != song.Title {
			logger.Warn("stored song differs from playlist", "idx", song.Idx, "id", song.ID, "stored_title", stored.Title)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%d rows missing: %s", len(missing), strings.Join(missing, ", "))
	}
	return nil
}

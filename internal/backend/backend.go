// Package backend opens the datastore, session store, deletion queue and
// Redis client selected by the configuration. The server and the command
// line tools share it so they always agree on where data lives.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"vivpro-songs/internal/auth"
	"vivpro-songs/internal/config"
	"vivpro-songs/internal/observability/logging"
	"vivpro-songs/internal/playlist"
	"vivpro-songs/internal/storage"
)

// Backend holds the opened resources. Close releases them in reverse order.
type Backend struct {
	Repo     storage.Repository
	Sessions auth.SessionStore
	Queue    auth.DeletionQueue
	// Redis is nil unless an address was configured.
	Redis redis.UniversalClient

	logger  *slog.Logger
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Open connects to every configured backend and applies pending migrations.
// Resources opened before a failure are released before the error returns.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{logger: logging.WithComponent(logger, "backend")}
	if err := b.open(ctx, cfg); err != nil {
		if closeErr := b.Close(); closeErr != nil {
			b.logger.Warn("release partially opened backend", "error", closeErr)
		}
		return nil, err
	}
	return b, nil
}

func (b *Backend) open(ctx context.Context, cfg config.Config) error {
	if cfg.Redis.Configured() {
		client, err := auth.NewRedisClient(RedisClientConfig(cfg.Redis))
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		b.Redis = client
		b.onClose("redis", client.Close)
	}

	var (
		pool *pgxpool.Pool
		db   *sql.DB
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pg := cfg.Storage.Postgres
		opened, err := storage.OpenPostgresPool(ctx, pg.DSN, PoolSettings(pg))
		if err != nil {
			return err
		}
		pool = opened
		b.onClose("postgres", func() error { pool.Close(); return nil })
		if err := storage.MigratePostgres(ctx, pool); err != nil {
			return err
		}
		repo, err := storage.NewPostgresRepository(pool, pg.AcquireTimeout)
		if err != nil {
			return err
		}
		b.Repo = repo
	case config.DriverSQLite:
		opened, err := storage.OpenSQLite(ctx, storage.SQLiteConfig{
			Path:     cfg.Storage.SQLite.Path,
			MaxConns: cfg.Storage.SQLite.MaxConns,
		})
		if err != nil {
			return err
		}
		db = opened
		b.onClose("sqlite", db.Close)
		if err := storage.MigrateSQLite(ctx, db); err != nil {
			return err
		}
		repo, err := storage.NewSQLiteRepository(db)
		if err != nil {
			return err
		}
		b.Repo = repo
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	b.logger.Info("datastore ready", "driver", cfg.Storage.Driver)

	store, err := b.sessionStore(cfg, pool, db)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	b.Sessions = store

	queue, err := b.deletionQueue(cfg)
	if err != nil {
		return fmt.Errorf("deletion queue: %w", err)
	}
	b.Queue = queue
	b.logger.Info("session backend ready", "store", cfg.Sessions.Store, "deletion_queue", cfg.Sessions.DeletionQueue)
	return nil
}

func (b *Backend) sessionStore(cfg config.Config, pool *pgxpool.Pool, db *sql.DB) (auth.SessionStore, error) {
	switch cfg.Sessions.Store {
	case config.DriverMemory:
		return auth.NewMemorySessionStore(), nil
	case config.DriverPostgres:
		if pool == nil {
			return nil, errors.New("postgres session store requires postgres storage")
		}
		return auth.NewPostgresSessionStore(pool, auth.WithTimeout(cfg.Storage.Postgres.AcquireTimeout))
	case config.DriverSQLite:
		if db == nil {
			return nil, errors.New("sqlite session store requires sqlite storage")
		}
		return auth.NewSQLSessionStore(db)
	case config.DriverRedis:
		return auth.NewRedisSessionStore(b.Redis, cfg.Redis.KeyPrefix)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Sessions.Store)
	}
}

func (b *Backend) deletionQueue(cfg config.Config) (auth.DeletionQueue, error) {
	switch cfg.Sessions.DeletionQueue {
	case config.DriverMemory:
		return auth.NewMemoryDeletionQueue(cfg.Sessions.DeletionQueueSize), nil
	case config.DriverRedis:
		return auth.NewRedisDeletionQueue(b.Redis, cfg.Redis.QueueKey, 0)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Sessions.DeletionQueue)
	}
}

func (b *Backend) onClose(name string, fn func() error) {
	b.closers = append(b.closers, closer{name: name, fn: fn})
}

// Close releases every opened resource. It is safe to call more than once.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		c := b.closers[i]
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// RedisClientConfig maps the file and flag settings onto the client options.
func RedisClientConfig(cfg config.RedisConfig) auth.RedisConfig {
	return auth.RedisConfig{
		Addr:         cfg.Addr,
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		MasterName:   cfg.MasterName,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		TLS: auth.RedisTLSConfig{
			CAFile:             cfg.TLS.CAFile,
			CertFile:           cfg.TLS.CertFile,
			KeyFile:            cfg.TLS.KeyFile,
			ServerName:         cfg.TLS.ServerName,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		},
	}
}

// PlaylistS3Config maps the playlist object storage settings.
func PlaylistS3Config(cfg config.S3Config) playlist.S3Config {
	return playlist.S3Config{
		Endpoint:     cfg.Endpoint,
		Region:       cfg.Region,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		UsePathStyle: cfg.UsePathStyle,
	}
}

// PoolSettings maps the Postgres configuration onto pool settings.
func PoolSettings(pg config.PostgresConfig) storage.PoolSettings {
	return storage.PoolSettings{
		MaxConns:          pg.MaxConns,
		MinConns:          pg.MinConns,
		MaxConnLifetime:   pg.MaxConnLifetime,
		MaxConnIdleTime:   pg.MaxConnIdle,
		HealthCheckPeriod: pg.HealthCheckInterval,
		ConnectTimeout:    pg.ConnectTimeout,
		ApplicationName:   pg.ApplicationName,
	}
}

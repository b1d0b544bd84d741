package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPoolSize is the connection count used when none is configured.
const DefaultPoolSize = 5

// PoolSettings sizes and tunes the Postgres pool. Zero durations keep the
// pgx defaults.
type PoolSettings struct {
	MaxConns int32
	// MinConns connections are opened eagerly and kept warm; equal to
	// MaxConns it gives a fixed-size pool.
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	ApplicationName   string
}

// OpenPostgresPool creates the process-wide connection pool. The caller owns
// the pool and must Close it on shutdown.
func OpenPostgresPool(ctx context.Context, dsn string, settings PoolSettings) (*pgxpool.Pool, error) {
	poolCfg, err := postgresPoolConfig(dsn, settings)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return pool, nil
}

func postgresPoolConfig(dsn string, s PoolSettings) (*pgxpool.Config, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = cmp.Or(max(s.MaxConns, 0), DefaultPoolSize)
	cfg.MinConns = min(max(s.MinConns, 0), cfg.MaxConns)

	override := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	override(&cfg.MaxConnLifetime, s.MaxConnLifetime)
	override(&cfg.MaxConnIdleTime, s.MaxConnIdleTime)
	override(&cfg.HealthCheckPeriod, s.HealthCheckPeriod)
	override(&cfg.ConnConfig.ConnectTimeout, s.ConnectTimeout)

	if name := strings.TrimSpace(s.ApplicationName); name != "" {
		if cfg.ConnConfig.RuntimeParams == nil {
			cfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		cfg.ConnConfig.RuntimeParams["application_name"] = name
	}
	return cfg, nil
}

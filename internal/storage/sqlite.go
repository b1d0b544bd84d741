package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteConfig describes the embedded database used for local development.
type SQLiteConfig struct {
	// Path is a file path, or ":memory:" for a process-local database.
	Path string
	// MemoryName separates in-memory databases that share one process.
	MemoryName string
	MaxConns   int
}

// OpenSQLite opens a database/sql handle with a fixed-size connection pool.
// Callers block in database/sql when every connection is checked out.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*sql.DB, error) {
	dsn := sqliteDSN(cfg)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	size := cfg.MaxConns
	if size <= 0 {
		size = DefaultPoolSize
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func sqliteDSN(cfg SQLiteConfig) string {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	path := strings.TrimSpace(cfg.Path)
	if path == "" || path == ":memory:" {
		name := cfg.MemoryName
		if name == "" {
			name = "vivpro"
		}
		return "file:" + name + "?mode=memory&cache=shared&" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

//go:build postgres

package storage

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresTestDSN names the disposable database the postgres-tagged tests
// migrate and truncate.
const postgresTestDSN = "VIVPRO_TEST_POSTGRES_DSN"

// openPostgresForTest returns a migrated, empty database behind a pool of
// maxConns connections.
func openPostgresForTest(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv(postgresTestDSN))
	if dsn == "" {
		t.Skipf("%s not set", postgresTestDSN)
	}

	ctx := context.Background()
	pool, err := OpenPostgresPool(ctx, dsn, PoolSettings{MaxConns: maxConns, ApplicationName: "vivpro-songs-test"})
	if err != nil {
		t.Fatalf("open postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := MigratePostgres(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE ratings, sessions, songs, users`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return pool
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"vivpro-songs/internal/models"
)

var memoryDBCounter atomic.Int64

func openTestSQLite(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := OpenSQLite(context.Background(), SQLiteConfig{
		MemoryName: fmt.Sprintf("%s_%d", name, memoryDBCounter.Add(1)),
		MaxConns:   DefaultPoolSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, MigrateSQLite(context.Background(), db))
	return db
}

func sampleSongs() []models.Song {
	return []models.Song{
		{Idx: 0, ID: "5vYA1mW9g2Coh1HUFUSmlb", Title: "3AM", Danceability: 0.521, Energy: 0.673, Key: 8, Tempo: 108.0, DurationMs: 225947, TimeSignature: 4, NumBars: 100, NumSections: 8, NumSegments: 830, SongClass: 1},
		{Idx: 1, ID: "2klCjJcucgGQysgH170npL", Title: "4 Walls", Danceability: 0.735, Energy: 0.849, Key: 4, Tempo: 125.0, DurationMs: 197327, TimeSignature: 4, NumBars: 107, NumSections: 11, NumSegments: 763},
		{Idx: 2, ID: "093PI3mdUvOSlvMYDwnV1e", Title: "11:11", Danceability: 0.445, Energy: 0.78, Key: 1, Tempo: 132.6, DurationMs: 207477, TimeSignature: 4, NumBars: 114, NumSections: 9, NumSegments: 788},
		{Idx: 3, ID: "2lWNKbRtDmvDHIZZlmwJRa", Title: "Walls Come Down", Danceability: 0.6, Energy: 0.5, Key: 2, Tempo: 99.0, DurationMs: 180000, TimeSignature: 3, NumBars: 90, NumSections: 7, NumSegments: 600},
	}
}

func seedUser(t *testing.T, repo Repository, id, username string) {
	t.Helper()
	require.NoError(t, repo.CreateUser(context.Background(), models.User{
		ID: id, Username: username, Name: "Test User", PasswordHash: "hash",
	}))
}

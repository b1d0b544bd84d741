package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vivpro-songs/internal/models"
	"vivpro-songs/internal/storage"
)

func newSQLStore(t *testing.T) *SQLSessionStore {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, storage.SQLiteConfig{MemoryName: "auth_" + t.Name()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.MigrateSQLite(ctx, db))

	repo, err := storage.NewSQLiteRepository(db)
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(ctx, models.User{ID: "u1", Username: "alice", Name: "Alice", PasswordHash: "x"}))

	store, err := NewSQLSessionStore(db)
	require.NoError(t, err)
	return store
}

func TestNewSQLSessionStoreRequiresDB(t *testing.T) {
	_, err := NewSQLSessionStore(nil)
	assert.Error(t, err)
}

func TestSQLSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	expires := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)

	require.NoError(t, store.Save(ctx, models.Session{ID: "s1", UserID: "u1", ExpiresAt: expires}))

	got, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Session{ID: "s1", UserID: "u1", ExpiresAt: expires}, got)

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := store.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = store.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSQLSessionStorePurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, models.Session{ID: "old", UserID: "u1", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Save(ctx, models.Session{ID: "live", UserID: "u1", ExpiresAt: now.Add(time.Minute)}))

	removed, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err := store.Get(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, store.Ping(ctx))
}

func TestSQLSessionStoreRejectsUnknownUser(t *testing.T) {
	store := newSQLStore(t)
	err := store.Save(context.Background(), models.Session{ID: "s2", UserID: "ghost", ExpiresAt: time.Now().Add(time.Hour)})
	assert.Error(t, err)
}

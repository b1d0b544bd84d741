package auth

import (
	"context"
	"testing"
	"time"

	"vivpro-songs/internal/models"
	"vivpro-songs/internal/testsupport/redisstub"
)

func newRedisStubClient(t *testing.T) (*redisstub.Server, RedisConfig) {
	t.Helper()
	srv, err := redisstub.Start(redisstub.Options{Password: "secret"})
	if err != nil {
		t.Fatalf("failed to start redis stub: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv, RedisConfig{Addr: srv.Addr(), Password: "secret", DialTimeout: time.Second}
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, cfg := newRedisStubClient(t)
	client, err := NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisSessionStore(client, "test:session:")
	if err != nil {
		t.Fatalf("NewRedisSessionStore: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	session := models.Session{ID: "sess-1", UserID: "user-1", ExpiresAt: expires}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := srv.TTL("test:session:sess-1"); ttl <= time.Hour {
		t.Fatalf("expected key to outlive the session, ttl=%v", ttl)
	}

	got, ok, err := store.Get(ctx, "sess-1")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.UserID != "user-1" || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session %+v", got)
	}

	deleted, err := store.Delete(ctx, "sess-1")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "sess-1")
	if err != nil || deleted {
		t.Fatalf("second Delete = %v, %v", deleted, err)
	}
	if _, ok, err := store.Get(ctx, "sess-1"); err != nil || ok {
		t.Fatalf("Get after delete = %v, %v", ok, err)
	}
}

func TestRedisSessionStoreReportsExpiredBeforeEviction(t *testing.T) {
	ctx := context.Background()
	_, cfg := newRedisStubClient(t)
	client, err := NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisSessionStore(client, "")
	if err != nil {
		t.Fatalf("NewRedisSessionStore: %v", err)
	}

	clock := newFakeClock(time.Now())
	manager := NewSessionManager(time.Minute, WithStore(store), WithClock(clock.Now))
	session, err := manager.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := manager.Validate(ctx, session.ID); err == nil {
		t.Fatal("expected expired session to be rejected")
	}
	if _, ok, _ := store.Get(ctx, session.ID); ok {
		t.Fatal("expected expired session key to be deleted")
	}
}

func TestRedisDeletionQueue(t *testing.T) {
	ctx := context.Background()
	srv, cfg := newRedisStubClient(t)
	client, err := NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	queue, err := NewRedisDeletionQueue(client, "test:deletions", time.Second)
	if err != nil {
		t.Fatalf("NewRedisDeletionQueue: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if err := queue.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	if n := srv.ListLen("test:deletions"); n != 2 {
		t.Fatalf("expected 2 queued ids, got %d", n)
	}
	for _, want := range []string{"a", "b"} {
		got, err := queue.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got != want {
			t.Fatalf("expected FIFO order, got %s want %s", got, want)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := queue.Dequeue(cancelled); err == nil {
		t.Fatal("expected Dequeue to stop on cancelled context")
	}
}

func TestNewRedisClientRequiresAddr(t *testing.T) {
	if _, err := NewRedisClient(RedisConfig{}); err == nil {
		t.Fatal("expected error without addresses")
	}
}

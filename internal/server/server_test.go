package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vivpro-songs/internal/accounts"
	"vivpro-songs/internal/api"
	"vivpro-songs/internal/auth"
	"vivpro-songs/internal/models"
	"vivpro-songs/internal/observability/metrics"
	"vivpro-songs/internal/songs"
	"vivpro-songs/internal/storage"
)

var dbCounter atomic.Int64

func newTestHandler(t *testing.T, recorder *metrics.Recorder) (*api.Handler, *storage.SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, storage.SQLiteConfig{MemoryName: fmt.Sprintf("server_%d", dbCounter.Add(1))})
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.MigrateSQLite(ctx, db); err != nil {
		t.Fatalf("MigrateSQLite error: %v", err)
	}
	repo, err := storage.NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("NewSQLiteRepository error: %v", err)
	}
	if _, err := repo.InsertSongs(ctx, []models.Song{
		{Idx: 0, ID: "5vYA1mW9g2Coh1HUFUSmlb", Title: "3AM"},
		{Idx: 1, ID: "2klCjJcucgGQysgH170npL", Title: "4 Walls"},
	}); err != nil {
		t.Fatalf("InsertSongs error: %v", err)
	}

	sessions := auth.NewSessionManager(time.Hour)
	handler := api.NewHandler(
		accounts.NewService(repo, sessions, auth.NewPasswordHasher(bcrypt.MinCost)),
		songs.NewService(repo),
		auth.NewGate(sessions, auth.CookieTransport{Name: api.DefaultSessionCookieName}),
		api.WithCookiePolicy(api.SessionCookiePolicy{Name: api.DefaultSessionCookieName, SameSite: http.SameSiteStrictMode, Insecure: true}),
		api.WithMetrics(recorder),
		api.WithHealthCheck("storage", repo),
		api.WithHealthCheck("sessions", sessions),
	)
	return handler, repo
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	handler, _ := newTestHandler(t, cfg.Metrics)
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, Config{})
	if err == nil {
		t.Fatalf("expected error when handler is nil, got server: %#v", srv)
	}
}

func TestNewRejectsInvalidCORSOrigin(t *testing.T) {
	handler, _ := newTestHandler(t, metrics.New())
	if _, err := New(handler, Config{CORS: CORSConfig{Origins: []string{"not a url"}}}); err == nil {
		t.Fatal("expected invalid origin to fail construction")
	}
}

func TestCookieSessionFlowEndToEnd(t *testing.T) {
	srv := newTestServer(t, Config{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{Jar: jar}

	do := func(method, path, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	if resp := do(http.MethodPost, "/api/users/", `{"username":"alice","name":"Alice","password":"Secr3t!pass"}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	if resp := do(http.MethodPost, "/api/users/", `{"username":"bob","name":"Bob","password":"Secr3t!pass"}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register bob: expected 201, got %d", resp.StatusCode)
	}
	login := do(http.MethodPost, "/api/sessions", `{"username":"alice","password":"Secr3t!pass"}`)
	if login.StatusCode != http.StatusCreated {
		t.Fatalf("login: expected 201, got %d", login.StatusCode)
	}
	var sessionCookie *http.Cookie
	for _, c := range login.Cookies() {
		if c.Name == api.DefaultSessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatalf("login: expected a %s cookie, got %v", api.DefaultSessionCookieName, login.Cookies())
	}
	if resp := do(http.MethodGet, "/api/users/alice", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("get self: expected 200, got %d", resp.StatusCode)
	}
	if resp := do(http.MethodGet, "/api/users/bob", ""); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("get other user: expected 403, got %d", resp.StatusCode)
	}
	if resp := do(http.MethodPut, "/songs/1/2klCjJcucgGQysgH170npL/rating", `{"rating": 4.5}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("rate: expected 204, got %d", resp.StatusCode)
	}

	resp := do(http.MethodGet, "/songs?order_by=rating&order=desc", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var page []models.Song
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page) != 2 || page[0].Idx != 1 || page[0].UserRating != 4.5 || page[0].Rating != 4.5 {
		t.Fatalf("unexpected page %+v", page)
	}

	if resp := do(http.MethodDelete, "/api/sessions/", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", resp.StatusCode)
	}
	if resp := do(http.MethodGet, "/api/users/alice", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("after logout: expected 401, got %d", resp.StatusCode)
	}

	// Replay the old cookie without the jar, which already dropped it.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/users/alice", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
	stale, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("replay stale cookie: %v", err)
	}
	defer stale.Body.Close()
	if stale.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stale cookie: expected 401, got %d", stale.StatusCode)
	}
	cleared := false
	for _, c := range stale.Cookies() {
		if c.Name == api.DefaultSessionCookieName && c.MaxAge < 0 && c.Value == "" {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("stale cookie: expected the cookie to be cleared, got Set-Cookie %q", stale.Header.Values("Set-Cookie"))
	}
}

func TestUnknownRoutesAndMethodsReturnJSON(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"not_found"`) {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/songs/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestServerAppliesSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health check success, got %d: %s", rec.Code, rec.Body.String())
	}
	for _, kv := range apiHeaders {
		if got := rec.Header().Get(kv[0]); got != kv[1] {
			t.Fatalf("expected %s=%q, got %q", kv[0], kv[1], got)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("expected no HSTS header over plain HTTP")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestServerCORSAllowsConfiguredOrigins(t *testing.T) {
	srv := newTestServer(t, Config{CORS: CORSConfig{Origins: []string{"http://localhost:5173"}}})

	req := httptest.NewRequest(http.MethodGet, "/songs/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin header: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/songs/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed origin, got %d", rec.Code)
	}
}

func TestMetricsUseRouteTemplates(t *testing.T) {
	recorder := metrics.New()
	srv := newTestServer(t, Config{Metrics: recorder})

	for _, path := range []string{"/songs/1/abc/rating", "/songs/2/def/rating"} {
		req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader([]byte(`{"rating":1}`)))
		srv.Handler().ServeHTTP(httptest.NewRecorder(), req)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `path="/songs/{song_idx}/{song_id}/rating"`) {
		t.Fatalf("expected templated path label in metrics output")
	}
	if strings.Contains(body, `path="/songs/1/abc/rating"`) {
		t.Fatalf("raw path leaked into metric labels")
	}
}

func TestRecoverMiddlewareReturnsGenericError(t *testing.T) {
	handler := recoverMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/songs/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("panic value leaked: %q", rec.Body.String())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t, Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(t *testing.T, origins []string, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	policy, err := newCORSPolicy(CORSConfig{Origins: origins})
	if err != nil {
		t.Fatalf("newCORSPolicy: %v", err)
	}
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	corsMiddleware(policy, nil, next).ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsConfiguredOriginWithCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/songs/", nil)
	req.Header.Set("Origin", "http://LOCALHOST:5173")
	req.Host = "api.example.com"

	rec, called := serveCORS(t, []string{"http://localhost:5173"}, req)
	if !called {
		t.Fatal("expected next handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://LOCALHOST:5173" {
		t.Fatalf("unexpected allow origin header: %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != requestIDHeader {
		t.Fatalf("expected request id to be exposed, got %q", got)
	}
}

func TestCORSPreflightAdvertisesFixedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/songs/1/abc/rating", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "X-Anything")

	rec, called := serveCORS(t, []string{"http://localhost:5173"}, req)
	if called {
		t.Fatal("preflight must not reach the router")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != corsAllowHeaders {
		t.Fatalf("unexpected allow headers: %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != corsAllowMethods {
		t.Fatalf("unexpected allow methods: %q", got)
	}
}

func TestCORSBlocksUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/songs/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Host = "api.example.com"

	rec, called := serveCORS(t, nil, req)
	if called {
		t.Fatal("expected request to be blocked before reaching next handler")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed origin, got %d", rec.Code)
	}
}

func TestCORSAllowsSameOriginByDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/songs/", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Host = "example.com"

	if _, called := serveCORS(t, nil, req); !called {
		t.Fatal("expected same-origin request to reach next handler")
	}
}

func TestNewCORSPolicyRejectsBareHosts(t *testing.T) {
	if _, err := newCORSPolicy(CORSConfig{Origins: []string{"localhost:5173"}}); err == nil {
		t.Fatal("expected an origin without scheme to be rejected")
	}
	policy, err := newCORSPolicy(CORSConfig{Origins: []string{" ", "https://App.example.com"}})
	if err != nil {
		t.Fatalf("newCORSPolicy: %v", err)
	}
	if _, ok := policy["https://app.example.com"]; !ok || len(policy) != 1 {
		t.Fatalf("expected one canonical origin, got %v", policy)
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"vivpro-songs/internal/observability/logging"
)

func serveWithRequestID(t *testing.T, incoming string, inner http.HandlerFunc) string {
	t.Helper()
	if inner == nil {
		inner = func(http.ResponseWriter, *http.Request) {}
	}
	req := httptest.NewRequest(http.MethodGet, "/songs/", nil)
	if incoming != "" {
		req.Header.Set(requestIDHeader, incoming)
	}
	rr := httptest.NewRecorder()
	requestIDMiddleware(func() string { return "generated" }, inner).ServeHTTP(rr, req)
	return rr.Header().Get(requestIDHeader)
}

func TestRequestIDMiddlewarePreservesIncomingID(t *testing.T) {
	t.Parallel()

	var seen string
	got := serveWithRequestID(t, "incoming-1", func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	})
	if got != "incoming-1" || seen != "incoming-1" {
		t.Fatalf("expected incoming id on header and context, got %q / %q", got, seen)
	}
}

func TestRequestIDMiddlewareReplacesUnusableIDs(t *testing.T) {
	t.Parallel()

	for name, incoming := range map[string]string{
		"missing":   "",
		"oversized": strings.Repeat("x", maxRequestIDLength+1),
		"spaces":    "two words",
		"control":   "id\x01",
	} {
		if got := serveWithRequestID(t, incoming, nil); got != "generated" {
			t.Fatalf("%s: expected generated id, got %q", name, got)
		}
	}
}

func TestNewRequestIDIsUUIDv7(t *testing.T) {
	t.Parallel()

	id, err := uuid.Parse(newRequestID())
	if err != nil {
		t.Fatalf("parse request id: %v", err)
	}
	if id.Version() != 7 {
		t.Fatalf("expected version 7, got %d", id.Version())
	}
}

func TestAccessLogCarriesRequestID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	chain := requestIDMiddleware(func() string { return "generated-id" },
		logging.AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})))
	chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/sessions/", nil))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if payload["request_id"] != "generated-id" {
		t.Fatalf("expected request_id to be propagated, got %v", payload["request_id"])
	}
	if payload["status"] != float64(http.StatusNoContent) {
		t.Fatalf("expected status 204 in log, got %v", payload["status"])
	}
}

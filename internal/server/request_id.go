package server

import (
	"net/http"
	"strings"

	"vivpro-songs/internal/models"
	"vivpro-songs/internal/observability/logging"
)

const requestIDHeader = "X-Request-Id"

// maxRequestIDLength bounds client supplied ids before they reach the logs.
const maxRequestIDLength = 128

// requestIDMiddleware keeps a well-formed incoming X-Request-Id and otherwise
// mints a UUIDv7, so generated ids sort by arrival. newID overrides the
// generator in tests.
func requestIDMiddleware(newID func() string, next http.Handler) http.Handler {
	if newID == nil {
		newID = newRequestID
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if !validRequestID(requestID) {
			requestID = newID()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

// validRequestID admits printable ASCII without spaces so ids cannot forge
// log fields or response headers.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

func newRequestID() string {
	id, err := models.NewID()
	if err != nil {
		return "unassigned"
	}
	return id
}

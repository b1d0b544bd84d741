package server

import (
	"log/slog"
	"net"
	"net/http"

	"vivpro-songs/internal/observability/logging"
)

// requestLogger returns the request-scoped logger annotated with the path and
// client IP so middleware logs share keys with the access log.
func requestLogger(base *slog.Logger, r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context(), base).With(
		"path", r.URL.Path,
		"remote_ip", clientIP(r.RemoteAddr),
	)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

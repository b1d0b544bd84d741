// Package logging builds the service's slog loggers and threads per-request
// identifiers through the context so every line emitted for a request shares
// the same request_id and user_id.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"vivpro-songs/internal/observability/metrics"
)

// Config selects the level, output and encoding of the process logger.
type Config struct {
	Level  string
	Format string
	Writer io.Writer
}

const (
	FormatJSON = "json"
	FormatText = "text"
)

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// A blank level means info.
func ParseLevel(name string) (slog.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		normalized = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(normalized)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// New creates a logger writing to cfg.Writer, or stdout when unset. Unknown
// levels fall back to info; config validation reports them before this point.
func New(cfg Config) *slog.Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}
	level, _ := ParseLevel(cfg.Level)
	options := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), FormatText) {
		return slog.New(slog.NewTextHandler(writer, options))
	}
	return slog.New(slog.NewJSONHandler(writer, options))
}

// Init is New plus installing the result as the slog default.
func Init(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// WithComponent tags logger with the subsystem emitting the line.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With("component", component)
}

type scopeKey struct{}

// scope is shared by pointer between a request's contexts, so a user id
// recorded by the auth middleware is visible to the access log wrapped
// around it.
type scope struct {
	requestID string
	userID    string
}

func scopeFrom(ctx context.Context) *scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// WithRequestID starts a request scope carrying id. Blank ids are ignored.
func WithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	next := &scope{requestID: id}
	if current := scopeFrom(ctx); current != nil {
		next.userID = current.userID
	}
	return context.WithValue(ctx, scopeKey{}, next)
}

// WithUserID records the authenticated user on the request scope, creating
// one when the context has none.
func WithUserID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	if current := scopeFrom(ctx); current != nil {
		current.userID = id
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, &scope{userID: id})
}

// RequestID returns the request id on ctx, or "".
func RequestID(ctx context.Context) string {
	if s := scopeFrom(ctx); s != nil {
		return s.requestID
	}
	return ""
}

// UserID returns the authenticated user id on ctx, or "".
func UserID(ctx context.Context) string {
	if s := scopeFrom(ctx); s != nil {
		return s.userID
	}
	return ""
}

// FromContext annotates base (or the slog default) with the identifiers held
// on ctx.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	s := scopeFrom(ctx)
	if s == nil {
		return base
	}
	if s.requestID != "" {
		base = base.With("request_id", s.requestID)
	}
	if s.userID != "" {
		base = base.With("user_id", s.userID)
	}
	return base
}

// AccessLog logs one line per request once the handler returns. Requests for
// quietPaths (health checks, metric scrapes) are logged at debug unless they
// fail with a server error.
func AccessLog(logger *slog.Logger, quietPaths ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if scopeFrom(r.Context()) == nil {
				r = r.WithContext(context.WithValue(r.Context(), scopeKey{}, &scope{}))
			}
			recorder := metrics.NewResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			status := recorder.Status()
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case slices.Contains(quietPaths, r.URL.Path):
				level = slog.LevelDebug
			}
			FromContext(r.Context(), logger).Log(r.Context(), level, "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
				"bytes", recorder.BytesWritten(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

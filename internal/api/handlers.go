package api

import (
	"context"
	"log/slog"

	"vivpro-songs/internal/accounts"
	"vivpro-songs/internal/auth"
	"vivpro-songs/internal/observability/metrics"
	"vivpro-songs/internal/songs"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the users, sessions and songs endpoints.
type Handler struct {
	accounts *accounts.Service
	songs    *songs.Service
	gate     *auth.Gate
	cookies  SessionCookiePolicy
	metrics  *metrics.Recorder
	logger   *slog.Logger
	health   []healthCheck
}

type healthCheck struct {
	name   string
	pinger Pinger
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithCookiePolicy sets the attributes of the session cookie.
func WithCookiePolicy(policy SessionCookiePolicy) HandlerOption {
	return func(h *Handler) {
		h.cookies = policy
	}
}

// WithMetrics sets the recorder for login and rating counters.
func WithMetrics(recorder *metrics.Recorder) HandlerOption {
	return func(h *Handler) {
		if recorder != nil {
			h.metrics = recorder
		}
	}
}

// WithLogger sets the logger used for unexpected failures.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHealthCheck adds a named dependency to the health report.
func WithHealthCheck(name string, pinger Pinger) HandlerOption {
	return func(h *Handler) {
		if pinger != nil {
			h.health = append(h.health, healthCheck{name: name, pinger: pinger})
		}
	}
}

// NewHandler wires the services behind gate.
func NewHandler(accountsSvc *accounts.Service, songsSvc *songs.Service, gate *auth.Gate, opts ...HandlerOption) *Handler {
	h := &Handler{
		accounts: accountsSvc,
		songs:    songsSvc,
		gate:     gate,
		cookies:  DefaultSessionCookiePolicy(),
		metrics:  metrics.Default(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// cookieMode reports whether sessions travel in a cookie rather than a bearer
// header.
func (h *Handler) cookieMode() bool {
	_, ok := h.gate.Transport().(auth.CookieTransport)
	return ok
}

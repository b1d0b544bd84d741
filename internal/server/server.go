package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"vivpro-songs/internal/api"
	"vivpro-songs/internal/observability/logging"
	"vivpro-songs/internal/observability/metrics"
	"vivpro-songs/internal/serverutil"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr            string
	TLS             TLSConfig
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORS            CORSConfig
	RateLimit       RateLimitConfig
	Logger          *slog.Logger
	Metrics         *metrics.Recorder
}

type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	metrics         *metrics.Recorder
	tlsCertFile     string
	tlsKeyFile      string
	shutdownTimeout time.Duration
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, errors.New("api handler is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}
	global, logins, err := newLimiters(cfg.RateLimit, time.Now)
	if err != nil {
		return nil, err
	}

	router := newRouter(handler, recorder, limitLogins(logins, logger, http.HandlerFunc(handler.Login)))

	handlerChain := http.Handler(router)
	handlerChain = recoverMiddleware(logger, handlerChain)
	handlerChain = limitRequests(global, handlerChain)
	handlerChain = corsMiddleware(policy, logger, handlerChain)
	handlerChain = securityHeadersMiddleware(handlerChain)
	handlerChain = logging.AccessLog(logger, "/healthz", "/metrics")(handlerChain)
	handlerChain = requestIDMiddleware(nil, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       durationOr(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      durationOr(cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       durationOr(cfg.IdleTimeout, 60*time.Second),
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      logger,
		metrics:     recorder,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),

		shutdownTimeout: cfg.ShutdownTimeout,
	}

	if srv.tlsCertFile != "" && srv.tlsKeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

// newRouter registers every route with and without its trailing slash. login
// is the session-creating handler, already wrapped by the login throttle.
func newRouter(handler *api.Handler, recorder *metrics.Recorder, login http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(metrics.Middleware(recorder))

	handle := func(path string, h http.Handler, methods ...string) {
		router.Handle(path, h).Methods(methods...)
		if trimmed := strings.TrimSuffix(path, "/"); trimmed != path && trimmed != "" {
			router.Handle(trimmed, h).Methods(methods...)
		}
	}
	required := func(fn http.HandlerFunc) http.Handler { return handler.RequireSession(fn) }

	handle("/healthz", http.HandlerFunc(handler.Health), http.MethodGet, http.MethodHead)
	handle("/metrics", recorder.Handler(), http.MethodGet)

	handle("/api/users/", http.HandlerFunc(handler.Register), http.MethodPost)
	handle("/api/users/{username}", required(handler.GetUser), http.MethodGet)
	handle("/api/sessions/", login, http.MethodPost)
	handle("/api/sessions/", required(handler.Logout), http.MethodDelete)
	handle("/songs/", handler.OptionalSession(http.HandlerFunc(handler.ListSongs)), http.MethodGet)
	handle("/songs/{song_idx}/{song_id}/rating", required(handler.RateSong), http.MethodPut)

	router.NotFoundHandler = metrics.HTTPMiddleware(recorder, http.HandlerFunc(api.NotFound))
	router.MethodNotAllowedHandler = metrics.HTTPMiddleware(recorder, http.HandlerFunc(api.MethodNotAllowed))
	return router
}

// Handler returns the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	if s == nil || s.httpServer == nil {
		return nil
	}
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	return serverutil.Run(ctx, serverutil.Config{
		Server:          s.httpServer,
		TLS:             serverutil.TLSConfig{CertFile: s.tlsCertFile, KeyFile: s.tlsKeyFile},
		ShutdownTimeout: s.shutdownTimeout,
		OnListen: func(addr net.Addr) {
			s.logger.Info("http server listening", "addr", addr.String(), "tls", s.tlsCertFile != "")
		},
	})
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func recoverMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			requestLogger(logger, r).Error("panic serving request", "panic", fmt.Sprint(rec))
			writeMiddlewareError(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
		}()
		next.ServeHTTP(w, r)
	})
}

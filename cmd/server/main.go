package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vivpro-songs/internal/accounts"
	"vivpro-songs/internal/api"
	"vivpro-songs/internal/auth"
	"vivpro-songs/internal/backend"
	"vivpro-songs/internal/config"
	"vivpro-songs/internal/observability/logging"
	"vivpro-songs/internal/observability/metrics"
	"vivpro-songs/internal/playlist"
	"vivpro-songs/internal/server"
	"vivpro-songs/internal/songs"
)

const backlogInterval = 15 * time.Second

func main() {
	if err := run(context.Background(), os.Args[1:], os.LookupEnv, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup config.LookupEnv, stderr io.Writer) error {
	cfg, err := config.Load(args, lookup, stderr)
	if err != nil {
		return err
	}
	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: stderr})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, metrics.Default())
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		return err
	}
	defer a.close()

	logger.Info("vivpro songs api starting", newStartupSummary(cfg).LogArgs()...)
	if err := a.run(ctx); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Recorder
	backend  *backend.Backend
	sessions *auth.SessionManager
	server   *server.Server
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder) (*app, error) {
	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, metrics: recorder, backend: b}

	a.sessions = auth.NewSessionManager(auth.DefaultSessionTTL,
		auth.WithStore(b.Sessions),
		auth.WithDeletionQueue(b.Queue),
		auth.WithLogger(logging.WithComponent(logger, "sessions")),
	)
	accountsSvc := accounts.NewService(b.Repo, a.sessions, auth.NewPasswordHasher(cfg.Security.BcryptCost),
		accounts.WithLogger(logging.WithComponent(logger, "accounts")),
	)
	songsSvc := songs.NewService(b.Repo)

	if cfg.Playlist.Source != "" {
		a.preloadPlaylist(ctx)
	}

	transport, cookies, err := sessionTransport(cfg.Sessions)
	if err != nil {
		a.close()
		return nil, err
	}
	handler := api.NewHandler(accountsSvc, songsSvc, auth.NewGate(a.sessions, transport),
		api.WithCookiePolicy(cookies),
		api.WithLogger(logging.WithComponent(logger, "api")),
		api.WithMetrics(recorder),
		api.WithHealthCheck("storage", b.Repo),
		api.WithHealthCheck("sessions", a.sessions),
	)

	srv, err := server.New(handler, server.Config{
		Addr:            cfg.Addr,
		TLS:             server.TLSConfig{CertFile: cfg.HTTP.TLSCert, KeyFile: cfg.HTTP.TLSKey},
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		CORS:            server.CORSConfig{Origins: cfg.HTTP.CORSOrigins},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:   cfg.Security.GlobalRPS,
			GlobalBurst: cfg.Security.GlobalBurst,
			LoginLimit:  cfg.Security.LoginLimit,
			LoginWindow: cfg.Security.LoginWindow,
			Redis:       b.Redis,
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.server = srv
	return a, nil
}

// preloadPlaylist imports the configured catalog. A failure leaves the
// server running on whatever the database already holds.
func (a *app) preloadPlaylist(ctx context.Context) {
	logger := logging.WithComponent(a.logger, "playlist")
	src, err := playlist.ParseSource(ctx, a.cfg.Playlist.Source, backend.PlaylistS3Config(a.cfg.Playlist.S3))
	if err != nil {
		logger.Error("playlist source rejected", "source", a.cfg.Playlist.Source, "error", err)
		return
	}
	result, err := playlist.NewLoader(a.backend.Repo, playlist.WithLogger(logger)).Load(ctx, src)
	if err != nil {
		logger.Error("playlist import failed", "source", src.String(), "error", err)
		return
	}
	a.metrics.PlaylistImported(result.Rows, result.Inserted)
}

func sessionTransport(cfg config.SessionConfig) (auth.TokenTransport, api.SessionCookiePolicy, error) {
	policy := api.SessionCookiePolicy{Name: cfg.CookieName, Insecure: cfg.CookieInsecure}
	sameSite, err := api.ParseSameSite(cfg.CookieSameSite)
	if err != nil {
		return nil, policy, err
	}
	policy.SameSite = sameSite
	if cfg.Transport == config.TransportBearer {
		return auth.BearerTransport{}, policy, nil
	}
	return auth.CookieTransport{Name: policy.Name}, policy, nil
}

// run serves HTTP alongside the session workers until ctx is cancelled or
// any of them fails.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(ctx)
	})

	if interval := a.cfg.Sessions.PurgeInterval; interval > 0 {
		logger := logging.WithComponent(a.logger, "session-purger")
		g.Go(func() error {
			every(ctx, interval, func(ctx context.Context) {
				purgeExpired(ctx, a.sessions, logger, a.metrics)
			})
			return nil
		})
	}

	g.Go(func() error {
		err := a.sessions.DrainDeletions(ctx, a.backend.Queue, a.cfg.Sessions.DeletionRetryBackoff)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if counter, ok := a.backend.Queue.(backlogCounter); ok {
		g.Go(func() error {
			ticker := time.NewTicker(backlogInterval)
			defer ticker.Stop()
			reportBacklog(ctx, counter, a.metrics, ticker.C)
			return nil
		})
	}

	return g.Wait()
}

func (a *app) close() {
	if a.backend == nil {
		return
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("failed to close backend", "error", err)
	}
	a.backend = nil
}

type startupSummary struct {
	cfg config.Config
}

func newStartupSummary(cfg config.Config) startupSummary {
	return startupSummary{cfg: cfg}
}

// LogArgs renders the summary as slog key/value pairs with credentials
// redacted.
func (s startupSummary) LogArgs() []any {
	cfg := s.cfg
	datastore := map[string]any{"driver": cfg.Storage.Driver}
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		datastore["dsn"] = redactDSN(cfg.Storage.Postgres.DSN)
		datastore["max_conns"] = cfg.Storage.Postgres.MaxConns
	case config.DriverSQLite:
		datastore["path"] = cfg.Storage.SQLite.Path
		datastore["max_conns"] = cfg.Storage.SQLite.MaxConns
	}

	sessions := map[string]any{
		"store":          cfg.Sessions.Store,
		"transport":      cfg.Sessions.Transport,
		"ttl":            auth.DefaultSessionTTL.String(),
		"deletion_queue": cfg.Sessions.DeletionQueue,
	}

	login := map[string]any{"driver": config.DriverMemory, "limit": cfg.Security.LoginLimit}
	if cfg.Redis.Configured() {
		login["driver"] = config.DriverRedis
	}

	args := []any{
		"addr", cfg.Addr,
		"mode", cfg.Mode,
		"tls", cfg.HTTP.TLSCert != "",
		"datastore", datastore,
		"sessions", sessions,
		"login_throttle", login,
	}
	if cfg.Redis.Configured() {
		redisSummary := map[string]any{"addr": cfg.Redis.Addr, "tls": cfg.Redis.TLS.CAFile != "" || cfg.Redis.TLS.CertFile != ""}
		if len(cfg.Redis.Addrs) > 0 {
			redisSummary["addrs"] = cfg.Redis.Addrs
		}
		if cfg.Redis.MasterName != "" {
			redisSummary["master_name"] = cfg.Redis.MasterName
		}
		args = append(args, "redis", redisSummary)
	}
	if cfg.Playlist.Source != "" {
		args = append(args, "playlist", cfg.Playlist.Source)
	}
	return args
}

// redactDSN masks the password of a URL DSN. Keyword/value DSNs are masked
// entirely.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "*****"
	}
	if u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "*****")
	}
	return u.String()
}

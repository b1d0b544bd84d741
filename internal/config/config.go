// Package config resolves server settings from built-in defaults, an optional
// TOML file, VIVPRO_SONGS_* environment variables and command-line flags, in
// that order of precedence (later wins).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vivpro-songs/internal/observability/logging"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "VIVPRO_SONGS_"

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverRedis    = "redis"

	TransportCookie = "cookie"
	TransportBearer = "bearer"
)

// DefaultDevOrigin is the front-end origin allowed by CORS in development
// when no origins are configured.
const DefaultDevOrigin = "http://localhost:5173"

type Config struct {
	Addr     string         `toml:"addr"`
	Mode     string         `toml:"mode"`
	Log      LogConfig      `toml:"log"`
	HTTP     HTTPConfig     `toml:"http"`
	Storage  StorageConfig  `toml:"storage"`
	Sessions SessionConfig  `toml:"sessions"`
	Redis    RedisConfig    `toml:"redis"`
	Playlist PlaylistConfig `toml:"playlist"`
	Security SecurityConfig `toml:"security"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	IdleTimeout     time.Duration `toml:"idle_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	CORSOrigins     []string      `toml:"cors_origins"`
	TLSCert         string        `toml:"tls_cert"`
	TLSKey          string        `toml:"tls_key"`
}

type StorageConfig struct {
	Driver   string         `toml:"driver"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
}

type PostgresConfig struct {
	DSN                 string        `toml:"dsn"`
	MaxConns            int32         `toml:"max_conns"`
	MinConns            int32         `toml:"min_conns"`
	MaxConnLifetime     time.Duration `toml:"max_conn_lifetime"`
	MaxConnIdle         time.Duration `toml:"max_conn_idle"`
	HealthCheckInterval time.Duration `toml:"health_check_interval"`
	// ConnectTimeout bounds dialing a new server connection.
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	// AcquireTimeout bounds waiting for a free pooled connection. Zero waits
	// until one is released or the request is cancelled.
	AcquireTimeout  time.Duration `toml:"acquire_timeout"`
	ApplicationName string        `toml:"application_name"`
}

type SQLiteConfig struct {
	Path     string `toml:"path"`
	MaxConns int    `toml:"max_conns"`
}

type SessionConfig struct {
	// Store defaults to the storage driver when empty.
	Store          string `toml:"store"`
	Transport      string `toml:"transport"`
	CookieName     string `toml:"cookie_name"`
	CookieSameSite string `toml:"cookie_same_site"`
	// CookieInsecure drops the Secure cookie attribute for plain-HTTP setups.
	CookieInsecure       bool          `toml:"cookie_insecure"`
	PurgeInterval        time.Duration `toml:"purge_interval"`
	DeletionQueue        string        `toml:"deletion_queue"`
	DeletionQueueSize    int           `toml:"deletion_queue_size"`
	DeletionRetryBackoff time.Duration `toml:"deletion_retry_backoff"`
}

type RedisConfig struct {
	Addr         string         `toml:"addr"`
	Addrs        []string       `toml:"addrs"`
	Username     string         `toml:"username"`
	Password     string         `toml:"password"`
	MasterName   string         `toml:"master_name"`
	PoolSize     int            `toml:"pool_size"`
	DialTimeout  time.Duration  `toml:"dial_timeout"`
	ReadTimeout  time.Duration  `toml:"read_timeout"`
	WriteTimeout time.Duration  `toml:"write_timeout"`
	KeyPrefix    string         `toml:"key_prefix"`
	QueueKey     string         `toml:"queue_key"`
	TLS          RedisTLSConfig `toml:"tls"`
}

type RedisTLSConfig struct {
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// Configured reports whether any Redis address was supplied.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.Addr) != "" || len(r.Addrs) > 0
}

type PlaylistConfig struct {
	// Source is a file path or an s3://bucket/key location loaded at startup.
	Source string   `toml:"source"`
	S3     S3Config `toml:"s3"`
}

type S3Config struct {
	Endpoint     string `toml:"endpoint"`
	Region       string `toml:"region"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UsePathStyle bool   `toml:"use_path_style"`
}

type SecurityConfig struct {
	// BcryptCost of zero selects the library default.
	BcryptCost int `toml:"bcrypt_cost"`
	// GlobalRPS of zero disables the global request limit.
	GlobalRPS   float64 `toml:"global_rps"`
	GlobalBurst int     `toml:"global_burst"`
	// LoginLimit is the number of login attempts allowed per client IP in
	// each LoginWindow. Zero disables the limit.
	LoginLimit  int           `toml:"login_limit"`
	LoginWindow time.Duration `toml:"login_window"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Addr: ":8000",
		Mode: ModeDevelopment,
		Log:  LogConfig{Level: "info", Format: "json"},
		HTTP: HTTPConfig{
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Postgres: PostgresConfig{
				MaxConns:        5,
				ConnectTimeout:  5 * time.Second,
				ApplicationName: "vivpro-songs",
			},
			SQLite: SQLiteConfig{Path: "vivpro-songs.db", MaxConns: 5},
		},
		Sessions: SessionConfig{
			Transport:            TransportCookie,
			CookieName:           "session_id",
			CookieSameSite:       "strict",
			PurgeInterval:        time.Hour,
			DeletionQueue:        DriverMemory,
			DeletionQueueSize:    1024,
			DeletionRetryBackoff: 5 * time.Second,
		},
		Redis: RedisConfig{
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Security: SecurityConfig{
			LoginLimit:  10,
			LoginWindow: time.Minute,
		},
	}
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// Load resolves the configuration for args (without the program name). The
// file named by -config, or by VIVPRO_SONGS_CONFIG, is read when present.
// flag.ErrHelp is returned unchanged when -h is requested.
func Load(args []string, lookup LookupEnv, output io.Writer) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	fs := flag.NewFlagSet("vivpro-songs", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	configPath := fs.String("config", "", "path to a TOML configuration file")
	for _, s := range settings {
		fs.String(s.name, "", s.usage)
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		if v, ok := lookup(EnvPrefix + "CONFIG"); ok {
			path = strings.TrimSpace(v)
		}
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	for _, s := range settings {
		if v, ok := lookup(envName(s.name)); ok && strings.TrimSpace(v) != "" {
			if err := s.apply(&cfg, strings.TrimSpace(v)); err != nil {
				return Config{}, fmt.Errorf("%s: %w", envName(s.name), err)
			}
		}
	}
	if cfg.Storage.Postgres.DSN == "" {
		if v, ok := lookup("DATABASE_URL"); ok {
			cfg.Storage.Postgres.DSN = strings.TrimSpace(v)
		}
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		if flagErr != nil || f.Name == "config" {
			return
		}
		s, ok := settingsByName[f.Name]
		if !ok {
			return
		}
		if err := s.apply(&cfg, strings.TrimSpace(f.Value.String())); err != nil {
			flagErr = fmt.Errorf("-%s: %w", f.Name, err)
		}
	})
	if flagErr != nil {
		return Config{}, flagErr
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("read config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func envName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func (c *Config) normalize() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Sessions.Store = strings.ToLower(strings.TrimSpace(c.Sessions.Store))
	if c.Sessions.Store == "" {
		c.Sessions.Store = c.Storage.Driver
	}
	c.Sessions.Transport = strings.ToLower(strings.TrimSpace(c.Sessions.Transport))
	c.Sessions.CookieSameSite = strings.ToLower(strings.TrimSpace(c.Sessions.CookieSameSite))
	c.Sessions.DeletionQueue = strings.ToLower(strings.TrimSpace(c.Sessions.DeletionQueue))
	if len(c.HTTP.CORSOrigins) == 0 && c.Mode == ModeDevelopment {
		c.HTTP.CORSOrigins = []string{DefaultDevOrigin}
	}
}

// Validate rejects settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeDevelopment, ModeProduction, c.Mode))
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatText:
	default:
		errs = append(errs, fmt.Errorf("log format must be json or text, got %q", c.Log.Format))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			errs = append(errs, errors.New("postgres storage requires a DSN"))
		}
		if c.Storage.Postgres.MaxConns <= 0 {
			errs = append(errs, errors.New("postgres max connections must be positive"))
		}
		if c.Storage.Postgres.MinConns < 0 || c.Storage.Postgres.MinConns > c.Storage.Postgres.MaxConns {
			errs = append(errs, errors.New("postgres min connections must be between 0 and max connections"))
		}
		if c.Storage.Postgres.ConnectTimeout < 0 || c.Storage.Postgres.AcquireTimeout < 0 {
			errs = append(errs, errors.New("postgres timeouts must not be negative"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.SQLite.Path) == "" {
			errs = append(errs, errors.New("sqlite storage requires a path"))
		}
		if c.Storage.SQLite.MaxConns <= 0 {
			errs = append(errs, errors.New("sqlite max connections must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Storage.Driver))
	}
	if c.Mode == ModeProduction && c.Storage.Driver != DriverPostgres {
		errs = append(errs, errors.New("production mode requires the postgres storage driver"))
	}

	switch c.Sessions.Store {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Sessions.Store != c.Storage.Driver {
			errs = append(errs, fmt.Errorf("session store %q requires the %q storage driver", c.Sessions.Store, c.Sessions.Store))
		}
	case DriverRedis:
		if !c.Redis.Configured() {
			errs = append(errs, errors.New("redis session store requires a redis address"))
		}
	default:
		errs = append(errs, fmt.Errorf("session store must be memory, postgres, sqlite or redis, got %q", c.Sessions.Store))
	}
	if c.Mode == ModeProduction && c.Sessions.Store == DriverMemory {
		errs = append(errs, errors.New("production mode requires a persistent session store"))
	}
	switch c.Sessions.Transport {
	case TransportCookie:
		if strings.TrimSpace(c.Sessions.CookieName) == "" {
			errs = append(errs, errors.New("cookie transport requires a cookie name"))
		}
	case TransportBearer:
	default:
		errs = append(errs, fmt.Errorf("session transport must be %q or %q, got %q", TransportCookie, TransportBearer, c.Sessions.Transport))
	}
	switch c.Sessions.CookieSameSite {
	case "strict", "lax", "none":
	default:
		errs = append(errs, fmt.Errorf("cookie same-site must be strict, lax or none, got %q", c.Sessions.CookieSameSite))
	}
	switch c.Sessions.DeletionQueue {
	case DriverMemory:
		if c.Sessions.DeletionQueueSize <= 0 {
			errs = append(errs, errors.New("deletion queue size must be positive"))
		}
	case DriverRedis:
		if !c.Redis.Configured() {
			errs = append(errs, errors.New("redis deletion queue requires a redis address"))
		}
	default:
		errs = append(errs, fmt.Errorf("deletion queue must be memory or redis, got %q", c.Sessions.DeletionQueue))
	}

	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		errs = append(errs, errors.New("tls cert and key must be provided together"))
	}
	if cost := c.Security.BcryptCost; cost != 0 && (cost < 4 || cost > 31) {
		errs = append(errs, fmt.Errorf("bcrypt cost must be between 4 and 31, got %d", cost))
	}
	if c.Security.GlobalRPS < 0 || c.Security.GlobalBurst < 0 {
		errs = append(errs, errors.New("global rate limit must not be negative"))
	}
	if c.Security.LoginLimit < 0 {
		errs = append(errs, errors.New("login limit must not be negative"))
	}
	if c.Security.LoginLimit > 0 && c.Security.LoginWindow <= 0 {
		errs = append(errs, errors.New("login window must be positive when a login limit is set"))
	}
	if c.Mode == ModeProduction && c.Sessions.CookieInsecure {
		errs = append(errs, errors.New("production mode requires secure session cookies"))
	}
	return errors.Join(errs...)
}

type setting struct {
	name  string
	usage string
	apply func(cfg *Config, value string) error
}

var settingsByName = map[string]setting{}

func init() {
	for _, s := range settings {
		settingsByName[s.name] = s
	}
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func list(dst func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = splitAndTrim(v)
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*dst(cfg) = n
		return nil
	}
}

func int32Value(dst func(*Config) *int32) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*dst(cfg) = int32(n)
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q", v)
		}
		*dst(cfg) = d
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", v)
		}
		*dst(cfg) = f
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		*dst(cfg) = b
		return nil
	}
}

var settings = []setting{
	{"addr", "HTTP listen address", str(func(c *Config) *string { return &c.Addr })},
	{"mode", "runtime mode (development or production)", str(func(c *Config) *string { return &c.Mode })},
	{"log-level", "log level (debug, info, warn, error)", str(func(c *Config) *string { return &c.Log.Level })},
	{"log-format", "log encoding (json or text)", str(func(c *Config) *string { return &c.Log.Format })},

	{"http-read-timeout", "HTTP read timeout", duration(func(c *Config) *time.Duration { return &c.HTTP.ReadTimeout })},
	{"http-write-timeout", "HTTP write timeout", duration(func(c *Config) *time.Duration { return &c.HTTP.WriteTimeout })},
	{"http-idle-timeout", "HTTP idle timeout", duration(func(c *Config) *time.Duration { return &c.HTTP.IdleTimeout })},
	{"shutdown-timeout", "graceful shutdown timeout", duration(func(c *Config) *time.Duration { return &c.HTTP.ShutdownTimeout })},
	{"cors-origins", "comma separated origins allowed by CORS", list(func(c *Config) *[]string { return &c.HTTP.CORSOrigins })},
	{"tls-cert", "path to TLS certificate file", str(func(c *Config) *string { return &c.HTTP.TLSCert })},
	{"tls-key", "path to TLS private key file", str(func(c *Config) *string { return &c.HTTP.TLSKey })},

	{"storage-driver", "datastore driver (postgres or sqlite)", str(func(c *Config) *string { return &c.Storage.Driver })},
	{"postgres-dsn", "Postgres connection string", str(func(c *Config) *string { return &c.Storage.Postgres.DSN })},
	{"postgres-max-conns", "maximum connections in the Postgres pool", int32Value(func(c *Config) *int32 { return &c.Storage.Postgres.MaxConns })},
	{"postgres-min-conns", "minimum idle connections kept by the Postgres pool", int32Value(func(c *Config) *int32 { return &c.Storage.Postgres.MinConns })},
	{"postgres-max-conn-lifetime", "maximum lifetime of a pooled Postgres connection", duration(func(c *Config) *time.Duration { return &c.Storage.Postgres.MaxConnLifetime })},
	{"postgres-max-conn-idle", "maximum idle time of a pooled Postgres connection", duration(func(c *Config) *time.Duration { return &c.Storage.Postgres.MaxConnIdle })},
	{"postgres-health-interval", "interval between Postgres pool health checks", duration(func(c *Config) *time.Duration { return &c.Storage.Postgres.HealthCheckInterval })},
	{"postgres-connect-timeout", "timeout when dialing a new Postgres connection", duration(func(c *Config) *time.Duration { return &c.Storage.Postgres.ConnectTimeout })},
	{"postgres-acquire-timeout", "give up waiting for a free Postgres connection after this long (0 waits for the request)", duration(func(c *Config) *time.Duration { return &c.Storage.Postgres.AcquireTimeout })},
	{"postgres-app-name", "application_name reported to Postgres", str(func(c *Config) *string { return &c.Storage.Postgres.ApplicationName })},
	{"sqlite-path", "SQLite database file", str(func(c *Config) *string { return &c.Storage.SQLite.Path })},
	{"sqlite-max-conns", "connections in the SQLite pool", integer(func(c *Config) *int { return &c.Storage.SQLite.MaxConns })},

	{"session-store", "session store driver (memory, postgres, sqlite or redis)", str(func(c *Config) *string { return &c.Sessions.Store })},
	{"session-transport", "session token transport (cookie or bearer)", str(func(c *Config) *string { return &c.Sessions.Transport })},
	{"session-cookie-name", "session cookie name", str(func(c *Config) *string { return &c.Sessions.CookieName })},
	{"session-cookie-samesite", "session cookie SameSite (strict, lax or none)", str(func(c *Config) *string { return &c.Sessions.CookieSameSite })},
	{"session-cookie-insecure", "omit the Secure attribute on the session cookie", boolean(func(c *Config) *bool { return &c.Sessions.CookieInsecure })},
	{"session-purge-interval", "interval between expired session purges (0 disables)", duration(func(c *Config) *time.Duration { return &c.Sessions.PurgeInterval })},
	{"deletion-queue", "session deletion retry queue (memory or redis)", str(func(c *Config) *string { return &c.Sessions.DeletionQueue })},
	{"deletion-queue-size", "capacity of the in-memory deletion queue", integer(func(c *Config) *int { return &c.Sessions.DeletionQueueSize })},
	{"deletion-retry-backoff", "pause before retrying a failed session deletion", duration(func(c *Config) *time.Duration { return &c.Sessions.DeletionRetryBackoff })},

	{"redis-addr", "Redis address", str(func(c *Config) *string { return &c.Redis.Addr })},
	{"redis-addrs", "comma separated Redis addresses", list(func(c *Config) *[]string { return &c.Redis.Addrs })},
	{"redis-username", "Redis username", str(func(c *Config) *string { return &c.Redis.Username })},
	{"redis-password", "Redis password", str(func(c *Config) *string { return &c.Redis.Password })},
	{"redis-master-name", "Redis sentinel master name", str(func(c *Config) *string { return &c.Redis.MasterName })},
	{"redis-pool-size", "maximum Redis connections", integer(func(c *Config) *int { return &c.Redis.PoolSize })},
	{"redis-key-prefix", "prefix for Redis session keys", str(func(c *Config) *string { return &c.Redis.KeyPrefix })},
	{"redis-queue-key", "Redis list holding pending session deletions", str(func(c *Config) *string { return &c.Redis.QueueKey })},
	{"redis-tls-ca", "path to Redis TLS CA certificate", str(func(c *Config) *string { return &c.Redis.TLS.CAFile })},
	{"redis-tls-cert", "path to Redis TLS client certificate", str(func(c *Config) *string { return &c.Redis.TLS.CertFile })},
	{"redis-tls-key", "path to Redis TLS client key", str(func(c *Config) *string { return &c.Redis.TLS.KeyFile })},
	{"redis-tls-server-name", "override Redis TLS server name", str(func(c *Config) *string { return &c.Redis.TLS.ServerName })},
	{"redis-tls-skip-verify", "skip Redis TLS verification", boolean(func(c *Config) *bool { return &c.Redis.TLS.InsecureSkipVerify })},

	{"playlist", "playlist to import at startup (file path or s3://bucket/key)", str(func(c *Config) *string { return &c.Playlist.Source })},
	{"s3-endpoint", "S3 compatible endpoint for playlist sources", str(func(c *Config) *string { return &c.Playlist.S3.Endpoint })},
	{"s3-region", "S3 region", str(func(c *Config) *string { return &c.Playlist.S3.Region })},
	{"s3-access-key", "S3 access key", str(func(c *Config) *string { return &c.Playlist.S3.AccessKey })},
	{"s3-secret-key", "S3 secret key", str(func(c *Config) *string { return &c.Playlist.S3.SecretKey })},
	{"s3-path-style", "use path-style S3 addressing", boolean(func(c *Config) *bool { return &c.Playlist.S3.UsePathStyle })},

	{"bcrypt-cost", "bcrypt cost for new password hashes (0 selects the default)", integer(func(c *Config) *int { return &c.Security.BcryptCost })},
	{"global-rps", "requests per second allowed across all clients (0 disables)", float(func(c *Config) *float64 { return &c.Security.GlobalRPS })},
	{"global-burst", "burst size for the global request limit", integer(func(c *Config) *int { return &c.Security.GlobalBurst })},
	{"login-limit", "login attempts allowed per client IP and window (0 disables)", integer(func(c *Config) *int { return &c.Security.LoginLimit })},
	{"login-window", "window for the per-IP login limit", duration(func(c *Config) *time.Duration { return &c.Security.LoginWindow })},
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Package config defines the service configuration and its defaults.
//
// Values are layered by Load: defaults from New, then an optional YAML file,
// then EASGIT_ environment variables.
package config

import (
	"fmt"
	"log/slog"
	"time"
)

// Environments selecting the log format.
const (
	EnvLocal = "local"
	EnvProd  = "prod"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	App         AppConfig         `koanf:"app"`
	HTTP        HTTPConfig        `koanf:"http"`
	Log         LogConfig         `koanf:"log"`
	Database    DatabaseConfig    `koanf:"database"`
	Auth        AuthConfig        `koanf:"auth"`
	GitHub      GitHubConfig      `koanf:"github"`
	Cache       CacheConfig       `koanf:"cache"`
	Leaderboard LeaderboardConfig `koanf:"leaderboard"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
}

type AppConfig struct {
	// Env is "local" (text logs) or "prod" (JSON logs).
	Env string `koanf:"env"`
}

type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	// Level controls verbosity: debug, info, warn, error.
	Level string `koanf:"level"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	// Path is the SQLite file, DSN the Postgres connection string.
	Path string `koanf:"path"`
	DSN  string `koanf:"dsn"`
}

type AuthConfig struct {
	// JWTSecret signs session tokens and derives the key that seals stored
	// GitHub tokens. Rotating it logs everyone out and voids stored tokens.
	JWTSecret string `koanf:"jwt_secret"`
	// AdminKeyHash is a bcrypt hash of the admin key. Empty disables the
	// admin endpoints.
	AdminKeyHash string        `koanf:"admin_key_hash"`
	SessionTTL   time.Duration `koanf:"session_ttl"`
}

type GitHubConfig struct {
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	CallbackURL  string        `koanf:"callback_url"`
	GraphQLURL   string        `koanf:"graphql_url"`
	APIURL       string        `koanf:"api_url"`
	Timeout      time.Duration `koanf:"timeout"`
}

type CacheConfig struct {
	// TTL of cached statistics snapshots; 0 disables the cache.
	TTL time.Duration `koanf:"ttl"`
}

type LeaderboardConfig struct {
	DefaultLimit int           `koanf:"default_limit"`
	MaxLimit     int           `koanf:"max_limit"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
}

type SchedulerConfig struct {
	// Interval between batch refreshes; 0 disables the scheduler.
	Interval time.Duration `koanf:"interval"`
	// RatePerSecond throttles GitHub calls during a batch; 0 is unlimited.
	RatePerSecond float64 `koanf:"rate_per_second"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		App: AppConfig{Env: EnvLocal},
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log:      LogConfig{Level: "info"},
		Database: DatabaseConfig{Driver: DriverSQLite, Path: "data/easgit.db"},
		Auth:     AuthConfig{SessionTTL: 24 * time.Hour},
		GitHub: GitHubConfig{
			CallbackURL: "http://localhost:8080/auth/github/callback",
			GraphQLURL:  "https://api.github.com/graphql",
			APIURL:      "https://api.github.com/",
			Timeout:     30 * time.Second,
		},
		Cache: CacheConfig{TTL: 5 * time.Minute},
		Leaderboard: LeaderboardConfig{
			DefaultLimit: 50,
			MaxLimit:     100,
			FetchTimeout: 20 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Interval:      6 * time.Hour,
			RatePerSecond: 1,
		},
	}
}

// Validate reports the first invalid value, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch c.App.Env {
	case EnvLocal, EnvProd:
	default:
		return invalid("app.env must be %q or %q, got %q", EnvLocal, EnvProd, c.App.Env)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return invalid("http.port out of range: %d", c.HTTP.Port)
	}
	if _, err := c.SlogLevel(); err != nil {
		return invalid("log.level: %v", err)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return invalid("database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return invalid("database.dsn is required for postgres")
		}
	default:
		return invalid("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return invalid("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.SessionTTL <= 0 {
		return invalid("auth.session_ttl must be positive")
	}
	if (c.GitHub.ClientID == "") != (c.GitHub.ClientSecret == "") {
		return invalid("github.client_id and github.client_secret must be set together")
	}
	if c.GitHub.GraphQLURL == "" {
		return invalid("github.graphql_url must not be empty")
	}
	if c.GitHub.Timeout <= 0 {
		return invalid("github.timeout must be positive")
	}
	if c.Cache.TTL < 0 {
		return invalid("cache.ttl must not be negative")
	}
	if c.Leaderboard.MaxLimit <= 0 {
		return invalid("leaderboard.max_limit must be positive")
	}
	if c.Leaderboard.DefaultLimit <= 0 || c.Leaderboard.DefaultLimit > c.Leaderboard.MaxLimit {
		return invalid("leaderboard.default_limit must be in 1..%d", c.Leaderboard.MaxLimit)
	}
	if c.Scheduler.Interval < 0 {
		return invalid("scheduler.interval must not be negative")
	}
	if c.Scheduler.RatePerSecond < 0 {
		return invalid("scheduler.rate_per_second must not be negative")
	}
	return nil
}

// OAuthEnabled reports whether the GitHub login routes can be served.
func (c *Config) OAuthEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

// SlogLevel parses Log.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(c.Log.Level))
	return lvl, err
}

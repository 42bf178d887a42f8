package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/evikzub/CVTransformer/pkg/config"
	"github.com/evikzub/CVTransformer/pkg/database"
)

const (
	defaultJWTSecret = "change-this-to-a-secure-secret"

	// StoreDriverPostgres persists users in PostgreSQL.
	StoreDriverPostgres = "postgres"
	// StoreDriverMemory keeps users in process memory; for local runs only.
	StoreDriverMemory = "memory"
)

// Config holds all configuration for the service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort            int           `env:"HTTP_PORT" envDefault:"8080"`
	HTTPReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// User store
	StoreDriver  string `env:"STORE_DRIVER" envDefault:"postgres"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"cvtransformer"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"cvtransformer"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"cvtransformer"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Queries slower than this are logged at warn. Zero disables it.
	SlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis identity cache. An empty host disables the cache.
	RedisHost        string        `env:"REDIS_HOST"`
	RedisPort        int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	IdentityCacheTTL time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"1h"`

	// Kafka. No brokers disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTValidity      time.Duration `env:"JWT_VALIDITY" envDefault:"12h"`
	JWTRefreshWindow time.Duration `env:"JWT_REFRESH_WINDOW" envDefault:"1h"`

	// Remote tracker
	RedmineURL          string        `env:"REDMINE_URL"`
	RedmineAPIKey       string        `env:"REDMINE_API_KEY"`
	RedmineProjectID    string        `env:"REDMINE_PROJECT_ID" envDefault:"1"`
	RedmineTrackerIDs   []int64       `env:"REDMINE_TRACKER_IDS" envSeparator:","`
	RedminePreferAPIKey bool          `env:"REDMINE_PREFER_API_KEY" envDefault:"false"`
	RedmineAuthTimeout  time.Duration `env:"REDMINE_AUTH_TIMEOUT" envDefault:"10s"`
	RedmineQueryTimeout time.Duration `env:"REDMINE_QUERY_TIMEOUT" envDefault:"15s"`
	TicketsPerPage      int           `env:"TICKETS_PER_PAGE" envDefault:"15"`

	// Sessions
	SessionIdleTTL         time.Duration `env:"SESSION_IDLE_TTL" envDefault:"12h"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"`
	SessionCookieSecure    bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	LoginRatePerMinute     int           `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	LoginBurst             int           `env:"LOGIN_BURST" envDefault:"5"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Tracing
	TracingEnabled    bool    `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"OTEL_TRACES_SAMPLE_RATE" envDefault:"1.0"`

	// Debug
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field rules. It runs as part of Load.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	if c.StoreDriver == StoreDriverMemory && c.IsProduction() {
		return errors.New("STORE_DRIVER=memory is not allowed in production")
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}
	if c.JWTValidity <= 0 {
		return fmt.Errorf("JWT_VALIDITY must be positive, got %s", c.JWTValidity)
	}
	if c.JWTRefreshWindow <= 0 || c.JWTRefreshWindow >= c.JWTValidity {
		return fmt.Errorf("JWT_REFRESH_WINDOW must be positive and shorter than JWT_VALIDITY, got %s", c.JWTRefreshWindow)
	}

	if c.RedmineURL == "" {
		return errors.New("REDMINE_URL is required")
	}
	u, err := url.Parse(c.RedmineURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("REDMINE_URL must be an absolute http(s) URL, got %q", c.RedmineURL)
	}
	if c.RedminePreferAPIKey && c.RedmineAPIKey == "" {
		return errors.New("REDMINE_PREFER_API_KEY requires REDMINE_API_KEY")
	}
	if c.RedmineAuthTimeout <= 0 || c.RedmineQueryTimeout <= 0 {
		return errors.New("REDMINE_AUTH_TIMEOUT and REDMINE_QUERY_TIMEOUT must be positive")
	}

	if c.TicketsPerPage < 1 || c.TicketsPerPage > 100 {
		return fmt.Errorf("TICKETS_PER_PAGE must be between 1 and 100, got %d", c.TicketsPerPage)
	}
	if c.SessionIdleTTL <= 0 || c.SessionCleanupInterval <= 0 {
		return errors.New("SESSION_IDLE_TTL and SESSION_CLEANUP_INTERVAL must be positive")
	}
	if c.LoginRatePerMinute < 0 || c.LoginBurst < 0 {
		return errors.New("LOGIN_RATE_PER_MINUTE and LOGIN_BURST must not be negative")
	}
	if c.LoginRatePerMinute > 0 && c.LoginBurst == 0 {
		return errors.New("LOGIN_BURST must be positive when login rate limiting is enabled")
	}

	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Postgres returns the pool settings for the user store.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	return pg
}

// Redis returns the identity cache connection settings.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// IdentityCacheEnabled reports whether a Redis host is configured.
func (c *Config) IdentityCacheEnabled() bool {
	return c.RedisHost != ""
}

// EventsEnabled reports whether Kafka brokers are configured.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

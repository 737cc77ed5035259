// Package config loads service settings from environment variables.
//
// Every field carries an env tag, an optional default and an optional
// envAlt fallback name. Load applies defaults and then Validate, which
// reports every problem at once.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Transform TransformConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	History   HistoryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so long batch status polls and downloads are not cut off.
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig selects where templates and batch history live.
type StoreConfig struct {
	// Driver is memory, postgres or sqlite.
	Driver string `env:"STORE_DRIVER" default:"memory"`

	// URL is the Postgres connection string or the SQLite file path.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// TransformConfig bounds upload size and batch concurrency.
type TransformConfig struct {
	// MaxFileSize caps the whole multipart request body in bytes (default 100MB).
	MaxFileSize int64 `env:"TRANSFORM_MAX_FILE_SIZE" default:"104857600"`

	// Workers is the number of files transformed in parallel within a batch.
	Workers int `env:"TRANSFORM_WORKERS" default:"4"`

	// MaxConcurrent is the number of batches allowed to run at once.
	MaxConcurrent int           `env:"TRANSFORM_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"TRANSFORM_MAX_WAIT_TIME" default:"30s"`

	// ResultTTL is how long finished batches stay downloadable.
	ResultTTL time.Duration `env:"TRANSFORM_RESULT_TTL" default:"30m"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// TransformLimit applies to the endpoints that accept uploads.
	TransformLimit int `env:"RATE_LIMIT_TRANSFORM" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// HistoryConfig controls retention of batch summaries.
type HistoryConfig struct {
	// RetentionDays of 0 keeps history forever.
	RetentionDays   int           `env:"HISTORY_RETENTION_DAYS" default:"90"`
	CleanupInterval time.Duration `env:"HISTORY_CLEANUP_INTERVAL" default:"24h"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

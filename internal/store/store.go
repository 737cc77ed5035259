// Package store persists mapping templates and batch history.
//
// Three backends implement core.Store and are selected by driver name:
//
//	memory    process-local maps, lost on restart
//	postgres  pgx connection pool, JSONB columns
//	sqlite    modernc.org/sqlite through database/sql, JSON as TEXT
//
// The SQL backends create their tables on open.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/remap/internal/core"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and tunes a backend.
type Config struct {
	Driver string
	URL    string // Postgres URL or SQLite path/DSN

	// Postgres pool settings; zero values keep pgxpool defaults.
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverPostgres:
		return OpenPostgres(ctx, cfg)
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

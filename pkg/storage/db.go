package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Dialect identifies the SQL flavour a schema is rendered for
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Config holds database connection configuration
type Config struct {
	Driver      string
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultConfig returns connection defaults for PostgreSQL
func DefaultConfig() Config {
	return Config{
		Driver:      string(DialectPostgres),
		URL:         "postgres://localhost/performance_management?sslmode=disable",
		MaxConns:    20,
		MinConns:    2,
		Timeout:     5 * time.Second,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}
}

// Dialect returns the dialect implied by the configured driver
func (c Config) Dialect() Dialect {
	if c.Driver == string(DialectSQLite) {
		return DialectSQLite
	}
	return DialectPostgres
}

// Connect opens a connection pool without contacting the server. The pool
// dials on first use, so an unreachable database surfaces as query errors.
func Connect(cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = string(DialectPostgres)
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	return db, nil
}

// Ping verifies db answers within cfg.Timeout
func Ping(ctx context.Context, db *sql.DB, cfg Config) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Open opens a connection pool and verifies it with a ping
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := Ping(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"platewatch/internal/platform/secrets"
	dErrors "platewatch/pkg/domain-errors"
)

// Config holds database connection pool configuration.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AcquireTimeout bounds how long a query may wait for a pooled
	// connection. Exhaustion fails fast with a descriptive error instead
	// of blocking the caller indefinitely.
	AcquireTimeout time.Duration
}

// DefaultConfig returns sensible defaults for database configuration.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AcquireTimeout:  5 * time.Second,
	}
}

// Pool wraps a *sql.DB with an explicit connect/close lifecycle. It is
// constructor-injected into the store clients, never an ambient singleton.
type Pool struct {
	db  *sql.DB
	cfg Config
}

// Connect resolves credentials from the provider, opens the pool, and
// verifies connectivity before handing it out.
func Connect(ctx context.Context, provider secrets.Provider, cfg Config) (*Pool, error) {
	creds, err := provider.DatabaseCredentials(ctx)
	if err != nil {
		return nil, err
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(creds.Username, creds.Password),
		Host:   net.JoinHostPort(creds.Host, fmt.Sprintf("%d", creds.Port)),
		Path:   creds.DBName,
	}
	db, err := sql.Open("pgx", dsn.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "ping database")
	}

	return &Pool{db: db, cfg: cfg}, nil
}

// DB returns the underlying *sql.DB for query operations.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health checks if the database is reachable.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return dErrors.New(dErrors.CodeStoreUnavailable, "database not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	return p.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Stats returns database connection pool statistics.
func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}

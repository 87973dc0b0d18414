// Package db provides database utilities and connection handling for
// Urbanscape. The application requires PostgreSQL with PostGIS: all polygon
// set operations (intersection, union, buffering, containment) run in the
// database.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// VersionQuery is the SQL query used to verify PostGIS is available.
const VersionQuery = "SELECT PostGIS_Version()"

// Querier is the subset of *sql.DB and *sql.Tx used by repositories, so the
// same query code runs standalone or inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to PostgreSQL, verifies connectivity and the PostGIS
// extension, and returns the pool.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	var version string
	if err := pool.QueryRowContext(pingCtx, VersionQuery).Scan(&version); err != nil {
		pool.Close()
		return nil, fmt.Errorf("verifying PostGIS extension: %w", err)
	}

	return pool, nil
}

// WithTx runs fn inside a ReadCommitted transaction. The transaction is
// committed only when fn returns nil; any error aborts the whole operation
// with nothing partially committed.
func WithTx(ctx context.Context, pool *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	// No-op after a successful commit.
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

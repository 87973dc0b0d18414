package health

import (
	"context"
	"database/sql"
	"fmt"
)

// DBChecker implements health checking for the PostGIS database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{
		db: db,
	}
}

// HealthCheck pings the database and verifies the PostGIS extension still
// answers; a pool that pings but cannot run spatial functions is not ready.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return err
	}
	var version string
	if err := d.db.QueryRowContext(ctx, "SELECT PostGIS_Version()").Scan(&version); err != nil {
		return fmt.Errorf("postgis check: %w", err)
	}
	return nil
}

package health

import (
	"context"
	"database/sql"
)

// DBChecker reports whether the items and matches store is reachable. The
// readiness endpoint runs it under its own deadline.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker wraps an open connection pool.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

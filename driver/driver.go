// Package driver provides database driver abstractions for contextpg.
//
// This package defines the interfaces that database drivers must implement
// to back a storage.SQLStore. It enables support for multiple PostgreSQL
// client libraries (pgx/v5, database/sql with lib/pq) behind one store.
package driver

import (
	"context"
	"errors"
)

// ErrNoRows is returned by Row.Scan when a query matched no rows.
// Drivers translate their native sentinel (pgx.ErrNoRows, sql.ErrNoRows)
// into this value so stores can use errors.Is without importing a driver.
var ErrNoRows = errors.New("driver: no rows in result set")

// Driver provides database operations for contextpg.
//
// Implementations should be created using the driver-specific New() functions:
//   - github.com/youssefsiam38/contextpg/driver/pgxv5.New(pool)
//   - github.com/youssefsiam38/contextpg/driver/databasesql.New(db, connStr)
type Driver interface {
	// GetExecutor returns an executor for non-transactional operations.
	// The returned Executor uses the underlying connection pool.
	GetExecutor() Executor

	// Begin starts a new transaction and returns an ExecutorTx.
	Begin(ctx context.Context) (ExecutorTx, error)

	// GetListener returns a Listener for receiving PostgreSQL notifications.
	// The returned Listener must be closed when no longer needed.
	GetListener(ctx context.Context) (Listener, error)
}

// Beginner is an interface for types that can begin transactions.
type Beginner interface {
	Begin(ctx context.Context) (ExecutorTx, error)
}

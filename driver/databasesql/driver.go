// Package databasesql provides a database/sql driver implementation for contextpg.
//
// It is intended for applications that already hold a *sql.DB opened with
// lib/pq. Batches are executed sequentially and notifications are received
// through pq.Listener, which owns its own connection.
package databasesql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/youssefsiam38/contextpg/driver"
	"github.com/youssefsiam38/contextpg/storage"
)

// Driver implements driver.Driver using database/sql.
type Driver struct {
	db      *sql.DB
	connStr string
}

// New creates a new database/sql driver using the provided connection.
// The connStr is required for creating listener connections.
func New(db *sql.DB, connStr string) *Driver {
	return &Driver{db: db, connStr: connStr}
}

// Open opens a lib/pq backed *sql.DB and wraps it in a Driver.
func Open(connStr string) (*Driver, error) {
	connector, err := pq.NewConnector(connStr)
	if err != nil {
		return nil, err
	}
	return New(sql.OpenDB(connector), connStr), nil
}

// GetExecutor returns an executor for non-transactional operations.
func (d *Driver) GetExecutor() driver.Executor {
	return &Executor{q: d.db}
}

// Begin starts a new transaction and returns an ExecutorTx.
func (d *Driver) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &ExecutorTx{Executor: Executor{q: tx}, tx: tx}, nil
}

// GetStore returns a SQL-backed Store using this driver.
func (d *Driver) GetStore(opts ...storage.SQLStoreOption) *storage.SQLStore {
	return storage.NewSQLStore(d, opts...)
}

// DB returns the underlying database connection.
func (d *Driver) DB() *sql.DB {
	return d.db
}

// Close closes the underlying *sql.DB.
func (d *Driver) Close() error {
	return d.db.Close()
}

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor wraps *sql.DB or *sql.Tx.
type Executor struct {
	q querier
}

// Exec executes a query that doesn't return rows.
func (e *Executor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := e.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Query executes a query that returns rows.
func (e *Executor) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &rowsWrapper{rows}, nil
}

// QueryRow executes a query that returns at most one row.
func (e *Executor) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return rowWrapper{e.q.QueryRowContext(ctx, query, args...)}
}

// ExecutorTx wraps *sql.Tx for transactional operations.
type ExecutorTx struct {
	Executor
	tx *sql.Tx
}

// Commit commits the transaction.
func (e *ExecutorTx) Commit(context.Context) error {
	return e.tx.Commit()
}

// Rollback rolls back the transaction.
func (e *ExecutorTx) Rollback(context.Context) error {
	err := e.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// rowWrapper translates sql.ErrNoRows into driver.ErrNoRows.
type rowWrapper struct {
	row *sql.Row
}

func (r rowWrapper) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return driver.ErrNoRows
	}
	return err
}

// rowsWrapper adapts *sql.Rows to driver.Rows.
type rowsWrapper struct {
	rows *sql.Rows
}

func (r *rowsWrapper) Close()                 { _ = r.rows.Close() }
func (r *rowsWrapper) Err() error             { return r.rows.Err() }
func (r *rowsWrapper) Next() bool             { return r.rows.Next() }
func (r *rowsWrapper) Scan(dest ...any) error { return r.rows.Scan(dest...) }

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Compile-time checks
var (
	_ driver.Driver     = (*Driver)(nil)
	_ driver.ExecutorTx = (*ExecutorTx)(nil)
)

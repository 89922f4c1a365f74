// Package pgxv5 provides a pgx/v5 driver implementation for contextpg.
//
// This is the primary/recommended driver, offering native batch operations
// for the compaction commit and dedicated LISTEN connections.
//
// Usage:
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	drv := pgxv5.New(pool)
//	store := drv.GetStore()
package pgxv5

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/youssefsiam38/contextpg/driver"
	"github.com/youssefsiam38/contextpg/storage"
)

// Driver implements driver.Driver for pgx/v5.
type Driver struct {
	pool *pgxpool.Pool
}

// New creates a new pgx/v5 driver with the given connection pool.
func New(pool *pgxpool.Pool) *Driver {
	return &Driver{pool: pool}
}

// GetExecutor returns an executor for non-transactional operations.
func (d *Driver) GetExecutor() driver.Executor {
	return &Executor{pool: d.pool}
}

// Begin starts a new transaction and returns an ExecutorTx.
func (d *Driver) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &ExecutorTx{tx: tx}, nil
}

// GetStore returns a SQL-backed Store using this driver.
func (d *Driver) GetStore(opts ...storage.SQLStoreOption) *storage.SQLStore {
	return storage.NewSQLStore(d, opts...)
}

// Pool returns the underlying pgxpool.Pool for advanced usage.
func (d *Driver) Pool() *pgxpool.Pool {
	return d.pool
}

// GetListener creates a new Listener for receiving PostgreSQL notifications.
// The listener uses a dedicated connection from the pool.
func (d *Driver) GetListener(ctx context.Context) (driver.Listener, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Listener{conn: conn}, nil
}

// Executor wraps pgxpool.Pool for non-transactional operations.
type Executor struct {
	pool *pgxpool.Pool
}

// Exec executes a query that doesn't return rows.
func (e *Executor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	result, err := e.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Query executes a query that returns rows.
func (e *Executor) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &rowsWrapper{rows}, nil
}

// QueryRow executes a query that returns at most one row.
func (e *Executor) QueryRow(ctx context.Context, sql string, args ...any) driver.Row {
	return rowWrapper{e.pool.QueryRow(ctx, sql, args...)}
}

// SendBatch sends multiple queries as a batch in a single round trip.
func (e *Executor) SendBatch(ctx context.Context, items []driver.BatchItem) ([]int64, error) {
	return sendBatch(ctx, e.pool, items)
}

// ExecutorTx wraps pgx.Tx for transactional operations.
type ExecutorTx struct {
	tx pgx.Tx
}

// Exec executes a query that doesn't return rows within the transaction.
func (e *ExecutorTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	result, err := e.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Query executes a query that returns rows within the transaction.
func (e *ExecutorTx) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	rows, err := e.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &rowsWrapper{rows}, nil
}

// QueryRow executes a query that returns at most one row within the transaction.
func (e *ExecutorTx) QueryRow(ctx context.Context, sql string, args ...any) driver.Row {
	return rowWrapper{e.tx.QueryRow(ctx, sql, args...)}
}

// Commit commits the transaction.
func (e *ExecutorTx) Commit(ctx context.Context) error {
	return e.tx.Commit(ctx)
}

// Rollback rolls back the transaction.
func (e *ExecutorTx) Rollback(ctx context.Context) error {
	err := e.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// SendBatch sends multiple queries as a batch within the transaction.
func (e *ExecutorTx) SendBatch(ctx context.Context, items []driver.BatchItem) ([]int64, error) {
	return sendBatch(ctx, e.tx, items)
}

// Tx returns the underlying pgx.Tx for advanced usage.
func (e *ExecutorTx) Tx() pgx.Tx {
	return e.tx
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func sendBatch(ctx context.Context, s batchSender, items []driver.BatchItem) (affected []int64, err error) {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(item.Query, item.Args...)
	}

	results := s.SendBatch(ctx, batch)
	defer func() {
		if closeErr := results.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	affected = make([]int64, len(items))
	for i := range items {
		tag, execErr := results.Exec()
		if execErr != nil {
			return nil, execErr
		}
		affected[i] = tag.RowsAffected()
	}
	return affected, nil
}

// rowWrapper translates pgx.ErrNoRows into driver.ErrNoRows.
type rowWrapper struct {
	row pgx.Row
}

func (r rowWrapper) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return driver.ErrNoRows
	}
	return err
}

// rowsWrapper adapts pgx.Rows to driver.Rows.
type rowsWrapper struct {
	pgx.Rows
}

// Close closes the Rows.
func (r *rowsWrapper) Close() {
	r.Rows.Close()
}

// Compile-time checks
var (
	_ driver.Driver        = (*Driver)(nil)
	_ driver.BatchExecutor = (*Executor)(nil)
	_ driver.BatchExecutor = (*ExecutorTx)(nil)
	_ driver.ExecutorTx    = (*ExecutorTx)(nil)
)

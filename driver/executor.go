package driver

import "context"

// Row represents a single database row.
type Row interface {
	// Scan copies the columns from the matched row into the values pointed at by dest.
	// Returns ErrNoRows when the query matched nothing.
	Scan(dest ...any) error
}

// Rows represents a result set from a query.
type Rows interface {
	// Close closes the Rows, preventing further enumeration.
	Close()

	// Err returns the error, if any, that was encountered during iteration.
	Err() error

	// Next prepares the next result row for reading with the Scan method.
	Next() bool

	// Scan copies the columns in the current row into the values pointed at by dest.
	Scan(dest ...any) error
}

// Executor provides database operations.
// It can represent either a connection pool or a transaction.
type Executor interface {
	// Exec executes a query that doesn't return rows.
	// Returns the number of rows affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a query that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// ExecutorTx is an Executor that supports commit/rollback.
// It represents an active database transaction.
type ExecutorTx interface {
	Executor

	// Commit commits the transaction.
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction. Calling Rollback after a
	// successful Commit is a no-op.
	Rollback(ctx context.Context) error
}

// BatchItem represents a single operation in a batch.
type BatchItem struct {
	// Query is the SQL query to execute
	Query string

	// Args are the query arguments
	Args []any
}

// BatchExecutor is an optional interface for drivers that support batch operations.
// pgx/v5 supports native batching; database/sql does not implement it and
// callers fall back to ExecBatch's sequential path.
type BatchExecutor interface {
	Executor

	// SendBatch sends multiple queries as a batch.
	// Returns the number of rows affected per operation.
	SendBatch(ctx context.Context, items []BatchItem) ([]int64, error)
}

// ExecBatch runs items through SendBatch when exec supports it and
// sequentially otherwise. The affected counts line up with items.
func ExecBatch(ctx context.Context, exec Executor, items []BatchItem) ([]int64, error) {
	if be, ok := exec.(BatchExecutor); ok {
		return be.SendBatch(ctx, items)
	}

	affected := make([]int64, len(items))
	for i, item := range items {
		n, err := exec.Exec(ctx, item.Query, item.Args...)
		if err != nil {
			return nil, err
		}
		affected[i] = n
	}
	return affected, nil
}

package driver

import "context"

// executorTxContextKey is the context key for storing ExecutorTx.
type executorTxContextKey struct{}

// WithExecutor returns a new context with the given executor transaction.
// This allows store operations to participate in an existing transaction.
//
// Example:
//
//	tx, _ := drv.Begin(ctx)
//	txCtx := driver.WithExecutor(ctx, tx)
//	// All store operations using txCtx will use the transaction
func WithExecutor(ctx context.Context, exec ExecutorTx) context.Context {
	return context.WithValue(ctx, executorTxContextKey{}, exec)
}

// ExecutorFromContext retrieves the executor from context, or nil if not present.
// Store implementations use this to determine if they should use a transaction.
func ExecutorFromContext(ctx context.Context) ExecutorTx {
	if exec, ok := ctx.Value(executorTxContextKey{}).(ExecutorTx); ok {
		return exec
	}
	return nil
}

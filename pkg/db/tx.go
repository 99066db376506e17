package db

import (
	"context"
	"database/sql"
	"fmt"
)

// TxRunner manages database transactions for repositories.
// Service layer uses this to keep transaction boundaries while
// repositories work against the *sql.Tx they are handed.
type TxRunner struct {
	database *sql.DB
}

// NewTxRunner creates a new TxRunner instance.
func NewTxRunner(database *sql.DB) *TxRunner {
	return &TxRunner{database: database}
}

// WithTx executes the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
//
// Usage example:
//
//	err := txRunner.WithTx(ctx, func(tx *sql.Tx) error {
//	    // 1. Lock session row
//	    row := tx.QueryRowContext(ctx, "SELECT ... FOR UPDATE", id)
//	    // 2. Mark it revoked
//	    _, err := tx.ExecContext(ctx, "UPDATE ...", id)
//	    return err
//	})
func (r *TxRunner) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	_, err := WithTxResult(ctx, r, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, fn(tx)
	})
	return err
}

// WithTxResult executes the given function within a database transaction
// and returns a result value. Useful when the transaction needs to return data.
func WithTxResult[T any](ctx context.Context, r *TxRunner, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var result T

	tx, err := r.database.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}

	result, err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return result, fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit transaction: %w", err)
	}

	return result, nil
}

// DB returns the underlying database connection for non-transactional reads.
func (r *TxRunner) DB() *sql.DB {
	return r.database
}

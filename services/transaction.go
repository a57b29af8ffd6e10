package services

import (
	"context"
	"fmt"

	"github.com/nrbnayon/silver-gym/repositories"
)

// WithTransaction runs fn inside a transaction from txMgr and returns its
// result. The transaction commits when fn succeeds and rolls back when fn
// fails or panics. Errors returned by fn pass through unchanged so callers
// can still match domain sentinels.
func WithTransaction[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (result T, err error) {
	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return result, Wrap(ErrDatabaseError, fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	result, err = fn(tx.Context(), tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return result, fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return result, Wrap(ErrDatabaseError, fmt.Errorf("commit transaction: %w", err))
	}
	return result, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/nrbnayon/silver-gym/repositories"
	"go.uber.org/zap"
)

// AttemptRepository implements repositories.AttemptRepository on the
// rate_limit_events table
type AttemptRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAttemptRepository creates a new attempt repository
func NewAttemptRepository(db *DB, logger *zap.Logger) repositories.AttemptRepository {
	return &AttemptRepository{
		db:     db,
		logger: logger,
	}
}

// Record records one event for scopeKey
func (r *AttemptRepository) Record(ctx context.Context, scopeKey string, at time.Time) error {
	query := `
		INSERT INTO rate_limit_events (scope_key, timestamp)
		VALUES ($1, $2)
	`

	if _, err := GetExecutor(ctx, r.db, nil).ExecContext(ctx, query, scopeKey, at); err != nil {
		return fmt.Errorf("failed to insert rate limit event: %w", err)
	}
	return nil
}

// Count returns the events for scopeKey in the window starting at since
func (r *AttemptRepository) Count(ctx context.Context, scopeKey string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM rate_limit_events
		WHERE scope_key = $1
		  AND timestamp >= $2
	`

	var count int
	if err := GetExecutor(ctx, r.db, nil).QueryRowContext(ctx, query, scopeKey, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to query rate limit: %w", err)
	}
	return count, nil
}

// Clear drops every event for scopeKey
func (r *AttemptRepository) Clear(ctx context.Context, scopeKey string) error {
	query := `DELETE FROM rate_limit_events WHERE scope_key = $1`

	if _, err := GetExecutor(ctx, r.db, nil).ExecContext(ctx, query, scopeKey); err != nil {
		return fmt.Errorf("failed to clear rate limit events: %w", err)
	}
	return nil
}

// DeleteBefore removes old events to keep the table size manageable
func (r *AttemptRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM rate_limit_events
		WHERE timestamp < $1
	`

	result, err := GetExecutor(ctx, r.db, nil).ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

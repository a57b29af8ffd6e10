package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nrbnayon/silver-gym/repositories"
	"go.uber.org/zap"
)

// RevocationRepository implements repositories.RevocationRepository on the
// revoked_tokens table
type RevocationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRevocationRepository creates a new revocation repository
func NewRevocationRepository(db *DB, logger *zap.Logger) repositories.RevocationRepository {
	return &RevocationRepository{
		db:     db,
		logger: logger,
	}
}

// Revoke stores tokenID; revoking twice keeps the first row
func (r *RevocationRepository) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_tokens (token_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_id) DO NOTHING
	`

	if _, err := GetExecutor(ctx, r.db, nil).ExecContext(ctx, query, tokenID, expiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID is revoked and still unexpired
func (r *RevocationRepository) IsRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	query := `SELECT 1 FROM revoked_tokens WHERE token_id = $1 AND expires_at > $2`

	var one int
	err := GetExecutor(ctx, r.db, nil).QueryRowContext(ctx, query, tokenID, now.UTC()).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return true, nil
}

// DeleteExpired removes revocations nobody can present any more
func (r *RevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := GetExecutor(ctx, r.db, nil).ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

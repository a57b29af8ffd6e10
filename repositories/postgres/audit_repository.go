package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, actor_id, action, resource_type, resource_id, details, ip_address, user_agent, request_id, timestamp`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	executor := GetExecutor(ctx, r.db, nil)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.ActorID,
		log.Action,
		log.ResourceType,
		nullString(log.ResourceID),
		details,
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// ListRecent returns the newest entries first
func (r *AuditRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs ORDER BY timestamp DESC LIMIT $1 OFFSET $2`
	return r.query(ctx, query, limit, offset)
}

// GetByActor retrieves audit logs written on behalf of a user
func (r *AuditRepository) GetByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE actor_id = $1 ORDER BY timestamp DESC LIMIT $2 OFFSET $3`
	return r.query(ctx, query, actorID, limit, offset)
}

func (r *AuditRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	executor := GetExecutor(ctx, r.db, nil)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var (
			log        models.AuditLog
			actorID    uuid.NullUUID
			resourceID sql.NullString
			details    []byte
			ip, ua     sql.NullString
			requestID  sql.NullString
		)
		err := rows.Scan(
			&log.ID,
			&actorID,
			&log.Action,
			&log.ResourceType,
			&resourceID,
			&details,
			&ip,
			&ua,
			&requestID,
			&log.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if actorID.Valid {
			id := actorID.UUID
			log.ActorID = &id
		}
		log.ResourceID = resourceID.String
		log.Details = details
		log.IPAddress = ip.String
		log.UserAgent = ua.String
		log.RequestID = requestID.String
		logs = append(logs, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return logs, nil
}

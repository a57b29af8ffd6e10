package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/repositories"
	"go.uber.org/zap"
)

// SignupProgressRepository implements repositories.SignupProgressRepository.
// Step payloads are stored as JSONB; verification fields get their own
// columns so the code hash never round-trips through JSON.
type SignupProgressRepository struct {
	db     *DB
	tx     *Transaction
	logger *zap.Logger
}

// NewSignupProgressRepository creates a new sign-up progress repository
func NewSignupProgressRepository(db *DB, logger *zap.Logger) repositories.SignupProgressRepository {
	return &SignupProgressRepository{db: db, logger: logger}
}

// WithTx returns a new repository instance bound to the transaction
func (r *SignupProgressRepository) WithTx(tx repositories.Transaction) repositories.SignupProgressRepository {
	return &SignupProgressRepository{db: r.db, tx: asTransaction(tx), logger: r.logger}
}

// Get retrieves a wizard record by flow ID
func (r *SignupProgressRepository) Get(ctx context.Context, flowID uuid.UUID) (*models.SignupProgress, error) {
	query := `
		SELECT flow_id, current_step, signup_data, business_info, contact_info,
		       verification_complete, verification_state, code_hash, code_attempts, code_sent_at,
		       created_at, updated_at
		FROM signup_progress
		WHERE flow_id = $1
	`

	var (
		p                         models.SignupProgress
		signup, business, contact []byte
		verifyState, codeHash     sql.NullString
		codeSentAt                sql.NullTime
	)

	executor := GetExecutor(ctx, r.db, r.tx)
	err := executor.QueryRowContext(ctx, query, flowID).Scan(
		&p.FlowID,
		&p.CurrentStep,
		&signup,
		&business,
		&contact,
		&p.Verification.Complete,
		&verifyState,
		&codeHash,
		&p.Verification.Attempts,
		&codeSentAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if translated := translateError(err); translated == repositories.ErrNotFound {
			return nil, translated
		}
		return nil, fmt.Errorf("failed to get sign-up progress: %w", err)
	}

	if err := unmarshalOptional(signup, &p.Signup); err != nil {
		return nil, fmt.Errorf("failed to decode signup data: %w", err)
	}
	if err := unmarshalOptional(business, &p.Business); err != nil {
		return nil, fmt.Errorf("failed to decode business info: %w", err)
	}
	if err := unmarshalOptional(contact, &p.Contact); err != nil {
		return nil, fmt.Errorf("failed to decode contact info: %w", err)
	}
	p.Verification.State = verifyState.String
	p.Verification.CodeHash = codeHash.String
	if codeSentAt.Valid {
		p.Verification.SentAt = codeSentAt.Time
	}

	return &p, nil
}

// Save inserts or replaces the record for progress.FlowID
func (r *SignupProgressRepository) Save(ctx context.Context, progress *models.SignupProgress) error {
	signup, err := marshalOptional(progress.Signup)
	if err != nil {
		return fmt.Errorf("failed to encode signup data: %w", err)
	}
	business, err := marshalOptional(progress.Business)
	if err != nil {
		return fmt.Errorf("failed to encode business info: %w", err)
	}
	contact, err := marshalOptional(progress.Contact)
	if err != nil {
		return fmt.Errorf("failed to encode contact info: %w", err)
	}

	var sentAt sql.NullTime
	if !progress.Verification.SentAt.IsZero() {
		sentAt = sql.NullTime{Time: progress.Verification.SentAt, Valid: true}
	}

	query := `
		INSERT INTO signup_progress (
			flow_id, current_step, signup_data, business_info, contact_info,
			verification_complete, verification_state, code_hash, code_attempts, code_sent_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (flow_id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			signup_data = EXCLUDED.signup_data,
			business_info = EXCLUDED.business_info,
			contact_info = EXCLUDED.contact_info,
			verification_complete = EXCLUDED.verification_complete,
			verification_state = EXCLUDED.verification_state,
			code_hash = EXCLUDED.code_hash,
			code_attempts = EXCLUDED.code_attempts,
			code_sent_at = EXCLUDED.code_sent_at,
			updated_at = EXCLUDED.updated_at
	`

	executor := GetExecutor(ctx, r.db, r.tx)
	_, err = executor.ExecContext(ctx, query,
		progress.FlowID,
		progress.CurrentStep,
		signup,
		business,
		contact,
		progress.Verification.Complete,
		nullString(progress.Verification.State),
		nullString(progress.Verification.CodeHash),
		progress.Verification.Attempts,
		sentAt,
		progress.CreatedAt,
		progress.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sign-up progress: %w", err)
	}

	r.logger.Debug("sign-up progress saved",
		zap.String("flow_id", progress.FlowID.String()),
		zap.String("step", string(progress.CurrentStep)))
	return nil
}

// Delete removes a wizard record. Deleting a missing record is not an error.
func (r *SignupProgressRepository) Delete(ctx context.Context, flowID uuid.UUID) error {
	executor := GetExecutor(ctx, r.db, r.tx)
	if _, err := executor.ExecContext(ctx, `DELETE FROM signup_progress WHERE flow_id = $1`, flowID); err != nil {
		return fmt.Errorf("failed to delete sign-up progress: %w", err)
	}
	return nil
}

// DeleteStale removes records not updated since before
func (r *SignupProgressRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	executor := GetExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, `DELETE FROM signup_progress WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sign-up progress: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// marshalOptional returns nil for a nil pointer so the column stays NULL.
func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalOptional[T any](data []byte, dst **T) error {
	if len(data) == 0 {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	*dst = v
	return nil
}

package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/models"
)

// Storage-level sentinels. Services translate these into domain errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// UserRepository handles staff account data operations
type UserRepository interface {
	// Create creates a new user. Returns ErrDuplicate when the e-mail or phone is taken.
	Create(ctx context.Context, user *models.User) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail looks up a user by normalized e-mail address
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	GetByPhone(ctx context.Context, phone string) (*models.User, error)

	// List returns users ordered by creation time
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// UpdateRole changes the role assigned to a user
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error

	// CountByRole reports how many users hold role
	CountByRole(ctx context.Context, role string) (int, error)

	// LockRoleHolders counts the holders of role and, inside a transaction,
	// locks their rows until it ends so the count cannot go stale.
	LockRoleHolders(ctx context.Context, role string) (int, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// SignupProgressRepository persists sign-up wizard records
type SignupProgressRepository interface {
	Get(ctx context.Context, flowID uuid.UUID) (*models.SignupProgress, error)

	// Save inserts or replaces the record for progress.FlowID
	Save(ctx context.Context, progress *models.SignupProgress) error

	Delete(ctx context.Context, flowID uuid.UUID) error

	// DeleteStale removes records not updated since before and returns how many went
	DeleteStale(ctx context.Context, before time.Time) (int64, error)

	WithTx(tx Transaction) SignupProgressRepository
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListRecent returns the newest entries first
	ListRecent(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)

	GetByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// AttemptRepository stores timestamped events per scope key for
// sliding-window limits such as failed sign-ins.
type AttemptRepository interface {
	Record(ctx context.Context, scopeKey string, at time.Time) error

	// Count returns the events for scopeKey at or after since
	Count(ctx context.Context, scopeKey string, since time.Time) (int, error)

	// Clear drops every event for scopeKey
	Clear(ctx context.Context, scopeKey string) error

	// DeleteBefore removes events older than before and returns how many went
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// RevocationRepository remembers signed-out session token IDs until the
// tokens would have expired anyway.
type RevocationRepository interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error

	// IsRevoked reports whether tokenID was revoked and has not yet expired
	IsRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error)

	// DeleteExpired drops revocations of tokens expired before now
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Repositories groups every repository the application uses
type Repositories struct {
	Users          UserRepository
	SignupProgress SignupProgressRepository
	AuditLogs      AuditRepository
	LoginAttempts  AttemptRepository
	RevokedTokens  RevocationRepository
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return WrapDB(sqlDB, zap.NewNop()), mock
}

var userRowColumns = []string{"id", "name", "email", "phone", "password_hash", "role", "avatar_url", "created_at", "updated_at"}

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	user := models.NewUser("Ana Lopez", "Ana@Gym.com", "", "hash", "manager")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(user.ID, "Ana Lopez", "ana@gym.com", nil, "hash", "manager", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), user))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "users_email_key"})

	err := repo.Create(context.Background(), models.NewUser("Ana", "ana@gym.com", "", "hash", "admin"))
	require.Error(t, err)
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
	assert.Contains(t, err.Error(), "users_email_key")
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	id := uuid.New()
	now := time.Now().UTC()

	t.Run("found with nullable columns", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WithArgs("owner@gym.com").
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(id.String(), "Owner", "owner@gym.com", nil, "hash", "admin", nil, now, now))

		user, err := repo.GetByEmail(context.Background(), "  OWNER@gym.com ")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "admin", user.Role)
		assert.Empty(t, user.Phone)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WithArgs("ghost@gym.com").
			WillReturnError(sql.ErrNoRows)

		user, err := repo.GetByEmail(context.Background(), "ghost@gym.com")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role")).
		WithArgs("member", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role")).
		WithArgs("member", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.UpdateRole(context.Background(), id, "member"))
	assert.ErrorIs(t, repo.UpdateRole(context.Background(), id, "member"), repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CountByRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1")).
		WithArgs("coach").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountByRole(context.Background(), "coach")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUserRepository_LockRoleHolders(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE role = $1 FOR UPDATE")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()).AddRow(uuid.New().String()))

	n, err := repo.LockRoleHolders(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevocationRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRevocationRepository(db, zap.NewNop())
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO revoked_tokens")).
		WithArgs("jti-1", now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Revoke(ctx, "jti-1", now.Add(time.Hour)))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM revoked_tokens")).
		WithArgs("jti-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	revoked, err := repo.IsRevoked(ctx, "jti-1", now)
	require.NoError(t, err)
	assert.True(t, revoked)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM revoked_tokens")).
		WithArgs("jti-2", now).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	revoked, err = repo.IsRevoked(ctx, "jti-2", now)
	require.NoError(t, err)
	assert.False(t, revoked)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM revoked_tokens")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))
	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupProgressRepository_SaveAndGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignupProgressRepository(db, zap.NewNop())

	progress := models.NewSignupProgress()
	progress.CurrentStep = models.StepBusiness
	progress.Signup = &models.SignupData{Name: "Ana", Email: "ana@gym.com", PasswordHash: "hash"}
	progress.Verification = models.VerificationState{Complete: true, State: "verified", CodeHash: "code-hash", Attempts: 2}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO signup_progress")).
		WithArgs(progress.FlowID, "business", sqlmock.AnyArg(), nil, nil, true, "verified", "code-hash", 2, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), progress))

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM signup_progress")).
		WithArgs(progress.FlowID).
		WillReturnRows(sqlmock.NewRows([]string{
			"flow_id", "current_step", "signup_data", "business_info", "contact_info",
			"verification_complete", "verification_state", "code_hash", "code_attempts", "code_sent_at",
			"created_at", "updated_at",
		}).AddRow(
			progress.FlowID.String(), "business", []byte(`{"name":"Ana","email":"ana@gym.com","password_hash":"hash"}`), nil, nil,
			true, "verified", "code-hash", 2, nil, now, now,
		))

	got, err := repo.Get(context.Background(), progress.FlowID)
	require.NoError(t, err)
	assert.Equal(t, models.StepBusiness, got.CurrentStep)
	require.NotNil(t, got.Signup)
	assert.Equal(t, "ana@gym.com", got.Signup.Email)
	assert.Nil(t, got.Business)
	assert.Nil(t, got.Contact)
	assert.True(t, got.Verification.Complete)
	assert.Equal(t, "code-hash", got.Verification.CodeHash)
	assert.True(t, got.Verification.SentAt.IsZero())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupProgressRepository_GetMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignupProgressRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM signup_progress")).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSignupProgressRepository_DeleteStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignupProgressRepository(db, zap.NewNop())
	cutoff := time.Now().Add(-7 * 24 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM signup_progress WHERE updated_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestAttemptRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptRepository(db, zap.NewNop())
	ctx := context.Background()
	now := time.Now()
	since := now.Add(-15 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rate_limit_events (scope_key, timestamp)")).
		WithArgs("login:10.0.0.1:ana@gym.com", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("login:10.0.0.1:ana@gym.com", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rate_limit_events WHERE scope_key = $1")).
		WithArgs("login:10.0.0.1:ana@gym.com").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rate_limit_events")).
		WithArgs(since).
		WillReturnResult(sqlmock.NewResult(0, 7))

	require.NoError(t, repo.Record(ctx, "login:10.0.0.1:ana@gym.com", now))

	n, err := repo.Count(ctx, "login:10.0.0.1:ana@gym.com", since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, repo.Clear(ctx, "login:10.0.0.1:ana@gym.com"))

	removed, err := repo.DeleteBefore(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepository_CountError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Count(context.Background(), "login:x", time.Now())
	assert.ErrorContains(t, err, "failed to query rate limit")
}

func TestAuditRepository_InsertAndList(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())
	actor := uuid.New()

	entry := models.NewAuditLog(models.AuditActionRoleAssigned, "user").
		WithActor(actor).
		WithResource("u-42").
		WithDetails(map[string]string{"role": "manager"})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(entry.ID, sqlmock.AnyArg(), "role_assigned", "user", "u-42", sqlmock.AnyArg(), "", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Insert(context.Background(), entry))

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE actor_id = $1")).
		WithArgs(actor, 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "actor_id", "action", "resource_type", "resource_id", "details",
			"ip_address", "user_agent", "request_id", "timestamp",
		}).AddRow(entry.ID.String(), actor.String(), "role_assigned", "user", "u-42", []byte(`{"role":"manager"}`),
			"10.0.0.1", "curl", "req-1", entry.Timestamp))

	logs, err := repo.GetByActor(context.Background(), actor, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].ActorID)
	assert.Equal(t, actor, *logs[0].ActorID)
	assert.JSONEq(t, `{"role":"manager"}`, string(logs[0].Details))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_InTransaction(t *testing.T) {
	t.Run("commits on success and routes queries through the tx", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())
		users := NewUserRepository(db, zap.NewNop())
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			return users.WithTx(tx).UpdateRole(ctx, id, "admin")
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unbound repositories join the tx through ctx", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())
		attempts := NewAttemptRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rate_limit_events")).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			return attempts.Clear(ctx, "login:10.0.0.1:ana@gym.com")
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback after commit is a no-op", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectCommit()

		tx, err := tm.Begin(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDB_HealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := WrapDB(sqlDB, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

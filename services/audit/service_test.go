package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/internal/observability"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/repositories/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// blockingRepo holds every Insert until release is closed.
type blockingRepo struct {
	mock.Mock
	release chan struct{}
}

func (r *blockingRepo) Insert(ctx context.Context, log *models.AuditLog) error {
	<-r.release
	return r.Called(log.Action).Error(0)
}

func (r *blockingRepo) ListRecent(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	return nil, nil
}

func (r *blockingRepo) GetByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	return nil, nil
}

func newService(t *testing.T, cfg Config) (*AuditService, *memory.AuditRepository) {
	t.Helper()
	repo := memory.NewAuditRepository()
	svc := NewAuditService(repo, nil, zap.NewNop(), cfg)
	require.NoError(t, svc.Start())
	return svc, repo
}

func TestAuditService_StartStop(t *testing.T) {
	svc := NewAuditService(memory.NewAuditRepository(), nil, zap.NewNop(), Config{})

	assert.ErrorIs(t, svc.Log(models.NewAuditLog(models.AuditActionLogout, "session")), ErrNotStarted)
	assert.ErrorIs(t, svc.Stop(time.Second), ErrNotStarted)

	require.NoError(t, svc.Start())
	assert.ErrorIs(t, svc.Start(), ErrAlreadyStarted)
	assert.True(t, svc.GetStats().Started)

	require.NoError(t, svc.Stop(time.Second))
	assert.False(t, svc.GetStats().Started)
	assert.ErrorIs(t, svc.Log(models.NewAuditLog(models.AuditActionLogout, "session")), ErrStopped, "logging after stop must not panic")
	assert.ErrorIs(t, svc.Stop(time.Second), ErrNotStarted)
}

func TestDefaultConfig(t *testing.T) {
	svc := NewAuditService(memory.NewAuditRepository(), nil, zap.NewNop(), Config{})
	stats := svc.GetStats()
	assert.Equal(t, DefaultConfig().BufferSize, stats.BufferSize)
	assert.Equal(t, DefaultConfig().WorkerCount, stats.WorkerCount)
}

func TestAuditService_ConvenienceEvents(t *testing.T) {
	svc, repo := newService(t, Config{WorkerCount: 1, BufferSize: 16})
	meta := RequestMeta{RequestID: "req-1", IPAddress: "10.0.0.8", UserAgent: "test"}
	admin := uuid.New()
	member := uuid.New()
	owner := models.NewUser("Owner", "owner@gym.app", "", "hash", "admin")

	svc.LogLogin(meta, nil, "ghost@gym.app", false)
	svc.LogLogin(meta, &admin, "admin@gym.app", true)
	svc.LogRoleCreated(meta, admin, "front-desk", []string{"member:view"})
	svc.LogRoleAssigned(meta, admin, member, "member", "front-desk")
	svc.LogRoleDeleted(meta, admin, "front-desk")
	svc.LogSignupCompleted(meta, owner)
	svc.LogLogout(meta, admin)

	require.NoError(t, svc.Stop(time.Second))

	logs, err := repo.ListRecent(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 7)

	byAction := map[models.AuditAction]*models.AuditLog{}
	for _, l := range logs {
		byAction[l.Action] = l
		assert.Equal(t, "req-1", l.RequestID)
	}

	assert.Nil(t, byAction[models.AuditActionLoginFailed].ActorID)
	assert.Equal(t, admin, *byAction[models.AuditActionLoginSucceeded].ActorID)

	assigned := byAction[models.AuditActionRoleAssigned]
	assert.Equal(t, member.String(), assigned.ResourceID)
	var details map[string]string
	require.NoError(t, json.Unmarshal(assigned.Details, &details))
	assert.Equal(t, map[string]string{"from": "member", "to": "front-desk"}, details)

	assert.Equal(t, owner.ID, *byAction[models.AuditActionSignupComplete].ActorID)
}

func TestAuditService_BufferFull(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	repo.On("Insert", mock.Anything).Return(nil)

	metrics := observability.NewMetrics()
	svc := NewAuditService(repo, metrics, zap.NewNop(), Config{WorkerCount: 1, BufferSize: 1})
	require.NoError(t, svc.Start())

	// One entry is held by the worker, one fills the buffer; keep going
	// until the queue refuses.
	var lastErr error
	for i := 0; i < 5 && lastErr == nil; i++ {
		lastErr = svc.Log(models.NewAuditLog(models.AuditActionLogout, "session"))
	}
	assert.ErrorIs(t, lastErr, ErrBufferFull)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.AuditDropped), 1.0)

	close(repo.release)
	require.NoError(t, svc.Stop(time.Second))
}

func TestAuditService_StopTimeout(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	repo.On("Insert", mock.Anything).Return(nil)

	svc := NewAuditService(repo, nil, zap.NewNop(), Config{WorkerCount: 1, BufferSize: 4})
	require.NoError(t, svc.Start())
	require.NoError(t, svc.Log(models.NewAuditLog(models.AuditActionLogout, "session")))

	assert.Error(t, svc.Stop(20*time.Millisecond))
	close(repo.release)
}

func TestAuditService_InsertErrorsDoNotStopWorkers(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	close(repo.release)
	repo.On("Insert", models.AuditActionLoginFailed).Return(errors.New("disk full"))
	repo.On("Insert", models.AuditActionLogout).Return(nil)

	svc := NewAuditService(repo, nil, zap.NewNop(), Config{WorkerCount: 1, BufferSize: 4})
	require.NoError(t, svc.Start())
	require.NoError(t, svc.Log(models.NewAuditLog(models.AuditActionLoginFailed, "session")))
	require.NoError(t, svc.Log(models.NewAuditLog(models.AuditActionLogout, "session")))
	require.NoError(t, svc.Stop(time.Second))

	repo.AssertNumberOfCalls(t, "Insert", 2)
}

func TestAuditService_ConcurrentLogging(t *testing.T) {
	svc, repo := newService(t, Config{WorkerCount: 4, BufferSize: 500})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				svc.LogLogout(RequestMeta{}, uuid.New())
			}
		}()
	}
	wg.Wait()
	require.NoError(t, svc.Stop(time.Second))

	logs, err := repo.ListRecent(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 200)
}

// Package audit records security-relevant events (sign-ins, role changes,
// completed sign-ups) without putting the database write on the request path.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/internal/observability"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/repositories"
	"go.uber.org/zap"
)

var (
	ErrNotStarted     = errors.New("audit service not started")
	ErrAlreadyStarted = errors.New("audit service already started")
	ErrBufferFull     = errors.New("audit event buffer full")
	ErrStopped        = errors.New("audit service stopped")
)

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int
	WorkerCount  int
	WriteTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// RequestMeta identifies the HTTP request behind an event.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// AuditService writes audit entries from a buffered queue on background
// workers. When the queue is full new entries are dropped and counted.
type AuditService struct {
	repo    repositories.AuditRepository
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     Config

	events chan *models.AuditLog
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.AuditRepository, metrics *observability.Metrics, logger *zap.Logger, cfg Config) *AuditService {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &AuditService{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		events:  make(chan *models.AuditLog, cfg.BufferSize),
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.started = true

	s.logger.Info("started audit service",
		zap.Int("worker_count", s.cfg.WorkerCount),
		zap.Int("buffer_size", s.cfg.BufferSize))
	return nil
}

// Stop closes the queue and waits up to timeout for pending entries.
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	pending := len(s.events)
	close(s.events)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return errors.New("audit service stop timed out")
	}
}

// Log queues entry without blocking.
func (s *AuditService) Log(entry *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}
	if s.stopped {
		return ErrStopped
	}

	select {
	case s.events <- entry:
		return nil
	default:
		s.metrics.RecordAuditDropped()
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(entry.Action)),
			zap.String("resource_type", entry.ResourceType))
		return ErrBufferFull
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.cfg.BufferSize,
		PendingEvents: len(s.events),
		WorkerCount:   s.cfg.WorkerCount,
		Started:       s.started && !s.stopped,
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	for entry := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		err := s.repo.Insert(ctx, entry)
		cancel()
		if err != nil {
			s.logger.Error("failed to write audit log",
				zap.Int("worker_id", id),
				zap.String("action", string(entry.Action)),
				zap.Error(err))
		}
	}
}

// Convenience methods for the events the dashboard records. Each one
// reports queueing failures to the log only; auditing never fails a request.

// LogLogin records a sign-in attempt. actorID is nil for unknown accounts.
func (s *AuditService) LogLogin(meta RequestMeta, actorID *uuid.UUID, identifier string, success bool) {
	action := models.AuditActionLoginSucceeded
	if !success {
		action = models.AuditActionLoginFailed
	}
	entry := models.NewAuditLog(action, "session").
		WithDetails(map[string]interface{}{"identifier": identifier}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	if actorID != nil {
		entry.WithActor(*actorID)
	}
	s.submit(entry)
}

func (s *AuditService) LogLogout(meta RequestMeta, actorID uuid.UUID) {
	s.submit(models.NewAuditLog(models.AuditActionLogout, "session").
		WithActor(actorID).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

func (s *AuditService) LogRoleCreated(meta RequestMeta, actorID uuid.UUID, role string, permissions []string) {
	s.submit(models.NewAuditLog(models.AuditActionRoleCreated, "role").
		WithActor(actorID).
		WithResource(role).
		WithDetails(map[string]interface{}{"permissions": permissions}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

func (s *AuditService) LogRoleDeleted(meta RequestMeta, actorID uuid.UUID, role string) {
	s.submit(models.NewAuditLog(models.AuditActionRoleDeleted, "role").
		WithActor(actorID).
		WithResource(role).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

// LogRoleAssigned records a user's role changing from previous to role.
func (s *AuditService) LogRoleAssigned(meta RequestMeta, actorID, userID uuid.UUID, previous, role string) {
	s.submit(models.NewAuditLog(models.AuditActionRoleAssigned, "user").
		WithActor(actorID).
		WithResource(userID.String()).
		WithDetails(map[string]interface{}{"from": previous, "to": role}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

// LogSignupCompleted records a new gym owner account.
func (s *AuditService) LogSignupCompleted(meta RequestMeta, user *models.User) {
	s.submit(models.NewAuditLog(models.AuditActionSignupComplete, "user").
		WithActor(user.ID).
		WithResource(user.ID.String()).
		WithDetails(map[string]interface{}{"email": user.Email, "role": user.Role}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent))
}

func (s *AuditService) submit(entry *models.AuditLog) {
	if err := s.Log(entry); err != nil && !errors.Is(err, ErrBufferFull) {
		s.logger.Warn("audit event not queued",
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

// Package ratelimit throttles repeated failures, such as wrong passwords,
// with a sliding window over recorded events.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nrbnayon/silver-gym/repositories"
	"github.com/nrbnayon/silver-gym/services"
	"go.uber.org/zap"
)

// Config holds the limit for one kind of event
type Config struct {
	// MaxAttempts is how many events a key may record per Window.
	// Zero or less disables the limit.
	MaxAttempts int
	Window      time.Duration
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Service counts events per scope key
type Service struct {
	store  repositories.AttemptRepository
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new Service instance
func NewService(store repositories.AttemptRepository, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// LoginKey scopes failed sign-ins to a client address and identifier, so
// one caller guessing passwords cannot lock the account for everyone.
func LoginKey(ip, identifier string) string {
	return fmt.Sprintf("login:%s:%s", ip, strings.ToLower(strings.TrimSpace(identifier)))
}

// Enabled reports whether the service limits anything.
func (s *Service) Enabled() bool {
	return s != nil && s.cfg.MaxAttempts > 0 && s.cfg.Window > 0
}

// Check reports whether key is still under its limit
func (s *Service) Check(ctx context.Context, key string) (*Result, error) {
	if !s.Enabled() {
		return &Result{Allowed: true}, nil
	}

	count, err := s.store.Count(ctx, key, s.windowStart())
	if err != nil {
		return nil, fmt.Errorf("failed to check window: %w", err)
	}
	if count >= s.cfg.MaxAttempts {
		return &Result{Allowed: false, RetryAfter: s.cfg.Window}, nil
	}
	return &Result{Allowed: true, Remaining: s.cfg.MaxAttempts - count}, nil
}

// Allow is Check expressed as a domain error: nil when key may proceed,
// ErrTooManyLogins with a retry_after detail (seconds) when it may not.
func (s *Service) Allow(ctx context.Context, key string) error {
	res, err := s.Check(ctx, key)
	if err != nil {
		return services.WrapInternal("failed to check rate limit", err)
	}
	if res.Allowed {
		return nil
	}
	s.logger.Warn("rate limit exceeded", zap.String("scope_key", key))
	return services.ErrTooManyLogins.WithDetail("retry_after", int(math.Ceil(res.RetryAfter.Seconds())))
}

// Record records one event for key
func (s *Service) Record(ctx context.Context, key string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.store.Record(ctx, key, s.now()); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Reset forgets every event for key, e.g. after a successful sign-in
func (s *Service) Reset(ctx context.Context, key string) error {
	if !s.Enabled() {
		return nil
	}
	return s.store.Clear(ctx, key)
}

// CleanupOld removes events that can no longer count against any key
func (s *Service) CleanupOld(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	cutoff := s.windowStart()
	n, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old events: %w", err)
	}
	if n > 0 {
		s.logger.Info("cleaned up old rate limit events",
			zap.Int64("rows_deleted", n),
			zap.Time("cutoff_time", cutoff))
	}
	return n, nil
}

// StartCleanupWorker periodically runs CleanupOld until ctx is done
func (s *Service) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	if !s.Enabled() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started rate limit cleanup worker", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOld(ctx); err != nil {
				s.logger.Error("failed to cleanup old events", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}

func (s *Service) windowStart() time.Time {
	return s.now().Add(-s.cfg.Window)
}

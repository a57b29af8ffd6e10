package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nrbnayon/silver-gym/auth"
	"github.com/nrbnayon/silver-gym/config"
	"github.com/nrbnayon/silver-gym/handlers"
	"github.com/nrbnayon/silver-gym/internal/observability"
	"github.com/nrbnayon/silver-gym/middleware"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/repositories"
	"github.com/nrbnayon/silver-gym/repositories/memory"
	"github.com/nrbnayon/silver-gym/repositories/postgres"
	"github.com/nrbnayon/silver-gym/services/audit"
	"github.com/nrbnayon/silver-gym/services/ratelimit"
	"github.com/nrbnayon/silver-gym/services/roles"
	"github.com/nrbnayon/silver-gym/wizard"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long Close waits for queued audit entries.
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB // nil with the memory driver
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users          repositories.UserRepository
	SignupProgress repositories.SignupProgressRepository
	AuditLogs      repositories.AuditRepository
	LoginAttempts  repositories.AttemptRepository
	RevokedTokens  repositories.RevocationRepository
	TxManager      repositories.TransactionManager

	// Authorization
	Registry *rbac.Registry
	Tokens   *auth.TokenManager
	Auth     *auth.Service
	Cookies  *auth.Cookies

	// Services
	Audit   *audit.AuditService
	Roles   *roles.Service
	Wizard  *wizard.Controller
	Flows   *wizard.FlowCookie
	Limiter *ratelimit.Service

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware
	AccessGuard    *middleware.AccessGuard

	// Handlers
	HealthHandler *handlers.HealthHandler
	AuthHandler   *handlers.AuthHandler
	AccessHandler *handlers.AccessHandler
	SignupHandler *handlers.SignupHandler
	PageHandler   *handlers.PageHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		_ = deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initHandlers(cfg)

	if cfg.Storage.SeedUsers && !cfg.IsProduction() {
		if err := deps.seedUsers(ctx, cfg.Storage.SeedPassword); err != nil {
			_ = deps.Close(ctx)
			return nil, fmt.Errorf("failed to seed users: %w", err)
		}
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("environment", cfg.Environment))
	return deps, nil
}

// initStorage opens the configured backend and builds the repositories
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Driver != config.StoragePostgres {
		d.useRepositories(memory.NewRepositories(), memory.TransactionManager{})
		d.Logger.Warn("using in-memory storage, data is lost on restart")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.useRepositories(factory.NewRepositories(), factory.GetTransactionManager())
	d.Logger.Info("repositories initialized")
	return nil
}

func (d *Dependencies) useRepositories(repos *repositories.Repositories, txMgr repositories.TransactionManager) {
	d.Users = repos.Users
	d.SignupProgress = repos.SignupProgress
	d.AuditLogs = repos.AuditLogs
	d.LoginAttempts = repos.LoginAttempts
	d.RevokedTokens = repos.RevokedTokens
	d.TxManager = txMgr
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	registry, err := rbac.NewRegistry()
	if err != nil {
		return err
	}
	d.Registry = registry
	d.Tokens = auth.NewTokenManager(cfg.Session, d.RevokedTokens)
	d.Auth = auth.NewService(d.Users, registry, d.Tokens, d.Logger)
	d.Cookies = auth.NewCookies(cfg.Session)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Auth, d.Cookies, cfg.Session.CheckTimeout, d.Metrics, d.Logger)
	d.AccessGuard = middleware.NewAccessGuard(d.Metrics, d.Logger)
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	auditCfg := audit.DefaultConfig()
	if cfg.Observability.AuditWorkers > 0 {
		auditCfg.WorkerCount = cfg.Observability.AuditWorkers
	}
	if cfg.Observability.AuditBuffer > 0 {
		auditCfg.BufferSize = cfg.Observability.AuditBuffer
	}
	d.Audit = audit.NewAuditService(d.AuditLogs, d.Metrics, d.Logger, auditCfg)
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Roles = roles.NewService(d.Registry, d.Users, d.TxManager, d.Logger)
	d.Limiter = ratelimit.NewService(d.LoginAttempts, ratelimit.Config{
		MaxAttempts: cfg.RateLimit.LoginMaxAttempts,
		Window:      cfg.RateLimit.LoginWindow,
	}, d.Logger)

	sender := wizard.NewCodeSender(cfg.Mail, d.Logger)
	d.Wizard = wizard.NewController(d.SignupProgress, d.Users, d.TxManager, sender, cfg.Wizard, d.Metrics, d.Logger)
	d.Flows = wizard.NewFlowCookie(cfg.Wizard.CookieName, cfg.Session.CookieSecure, cfg.Wizard.ProgressTTL)
	return nil
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	var db *sql.DB
	if d.DB != nil {
		db = d.DB.DB
	}
	d.HealthHandler = handlers.NewHealthHandler(db, cfg.Storage.Driver, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.Tokens, d.Cookies, d.Limiter, d.Audit, d.Metrics, d.Logger)
	d.AccessHandler = handlers.NewAccessHandler(d.Roles, d.Users, d.Audit, d.Logger)
	d.SignupHandler = handlers.NewSignupHandler(d.Wizard, d.Flows, d.Tokens, d.Cookies, d.Audit, d.Logger)
	d.PageHandler = handlers.NewPageHandler(d.Logger)
}

// demoUser is an account seeded outside production so every role can be
// tried without going through the sign-up wizard.
type demoUser struct {
	name  string
	email string
	phone string
	role  string
}

var demoUsers = []demoUser{
	{name: "Demo Admin", email: "admin@silvergym.app", phone: "01700000001", role: rbac.RoleAdmin},
	{name: "Demo Manager", email: "manager@silvergym.app", phone: "01700000002", role: rbac.RoleManager},
	{name: "Demo Member", email: "member@silvergym.app", phone: "01700000003", role: rbac.RoleMember},
}

// seedUsers creates the demo accounts that do not exist yet.
func (d *Dependencies) seedUsers(ctx context.Context, password string) error {
	if password == "" {
		return fmt.Errorf("seed password is empty")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	created := 0
	for _, u := range demoUsers {
		_, err := d.Users.GetByEmail(ctx, u.email)
		if err == nil {
			continue
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("failed to look up %s: %w", u.email, err)
		}
		if err := d.Users.Create(ctx, models.NewUser(u.name, u.email, u.phone, hash, u.role)); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				continue
			}
			return fmt.Errorf("failed to create %s: %w", u.email, err)
		}
		created++
	}

	if created > 0 {
		d.Logger.Info("seeded demo users", zap.Int("count", created))
	}
	return nil
}

// StartBackgroundJobs runs the periodic cleanups until ctx is done or the
// returned stop func is called. stop blocks until every job has returned, so
// callers must call it before Close.
func (d *Dependencies) StartBackgroundJobs(ctx context.Context, interval time.Duration) (stop func()) {
	jobsCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, job := range []func(context.Context, time.Duration){
		d.PurgeStaleSignups,
		d.PurgeRevokedTokens,
		d.Limiter.StartCleanupWorker,
	} {
		wg.Add(1)
		go func(job func(context.Context, time.Duration)) {
			defer wg.Done()
			job(jobsCtx, interval)
		}(job)
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

// PurgeStaleSignups drops abandoned wizard flows until ctx is done. The
// wizard logs what it removed.
func (d *Dependencies) PurgeStaleSignups(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Wizard.PurgeStale(ctx); err != nil {
				d.Logger.Error("failed to purge stale sign-ups", zap.Error(err))
			}
		}
	}
}

// PurgeRevokedTokens deletes revocations whose tokens have expired anyway.
func (d *Dependencies) PurgeRevokedTokens(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.Tokens.PurgeRevoked(ctx)
			if err != nil {
				d.Logger.Error("failed to purge expired revocations", zap.Error(err))
				continue
			}
			if n > 0 {
				d.Logger.Info("purged expired revocations", zap.Int64("count", n))
			}
		}
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Audit != nil {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil && !errors.Is(err, audit.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if err := d.closeStorage(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func (d *Dependencies) closeStorage() error {
	if d.RepoFactory == nil {
		return nil
	}
	if err := d.RepoFactory.Close(); err != nil {
		return err
	}
	d.RepoFactory = nil
	d.Logger.Info("database connection closed")
	return nil
}

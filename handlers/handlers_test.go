package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nrbnayon/silver-gym/auth"
	"github.com/nrbnayon/silver-gym/config"
	"github.com/nrbnayon/silver-gym/internal/observability"
	"github.com/nrbnayon/silver-gym/middleware"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/repositories/memory"
	"github.com/nrbnayon/silver-gym/services/audit"
	"github.com/nrbnayon/silver-gym/services/ratelimit"
	"github.com/nrbnayon/silver-gym/services/roles"
	"github.com/nrbnayon/silver-gym/wizard"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword     = "correct horse"
	maxLoginAttempts = 3
)

// codeRecorder captures verification codes instead of mailing them.
type codeRecorder struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeRecorder) SendCode(_ context.Context, to, _ string, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = make(map[string]string)
	}
	c.codes[to] = code
	return nil
}

func (c *codeRecorder) last(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[to]
}

type testEnv struct {
	router    *chi.Mux
	users     *memory.UserRepository
	auditRepo *memory.AuditRepository
	auditSvc  *audit.AuditService
	metrics   *observability.Metrics
	codes     *codeRecorder

	owner *models.User
	staff *models.User
}

// newTestEnv wires the handlers over in-memory storage the way the server
// does, minus CORS and request logging.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	sessionCfg := config.SessionConfig{
		Secret:       "handler-test-secret-that-is-long-enough",
		Issuer:       "silver-gym-test",
		TTL:          time.Hour,
		RememberTTL:  24 * time.Hour,
		CookieName:   "gym_session",
		CheckTimeout: time.Second,
		RevokedCap:   64,
	}
	wizardCfg := config.WizardConfig{
		CookieName:      "gym_signup",
		ProgressTTL:     time.Hour,
		CodeTTL:         15 * time.Minute,
		MaxCodeAttempts: 5,
		OwnerRole:       rbac.RoleAdmin,
	}

	env := &testEnv{
		users:     memory.NewUserRepository(),
		auditRepo: memory.NewAuditRepository(),
		metrics:   observability.NewMetrics(),
		codes:     &codeRecorder{},
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	env.owner = models.NewUser("Omar Owner", "owner@silvergym.app", "01700000001", string(hash), rbac.RoleAdmin)
	env.staff = models.NewUser("Sara Staff", "staff@silvergym.app", "01700000002", string(hash), rbac.RoleMember)
	require.NoError(t, env.users.Create(context.Background(), env.owner))
	require.NoError(t, env.users.Create(context.Background(), env.staff))

	env.auditSvc = audit.NewAuditService(env.auditRepo, env.metrics, logger, audit.DefaultConfig())
	require.NoError(t, env.auditSvc.Start())
	t.Cleanup(func() { _ = env.auditSvc.Stop(time.Second) })

	registry := rbac.MustNewRegistry()
	tokens := auth.NewTokenManager(sessionCfg, memory.NewRevocationRepository())
	authSvc := auth.NewService(env.users, registry, tokens, logger)
	cookies := auth.NewCookies(sessionCfg)
	authMW := middleware.NewAuthMiddleware(authSvc, cookies, sessionCfg.CheckTimeout, env.metrics, logger)
	guard := middleware.NewAccessGuard(env.metrics, logger)

	controller := wizard.NewController(memory.NewSignupProgressRepository(), env.users, memory.TransactionManager{},
		env.codes, wizardCfg, env.metrics, logger)
	flows := wizard.NewFlowCookie(wizardCfg.CookieName, false, wizardCfg.ProgressTTL)

	limiter := ratelimit.NewService(memory.NewAttemptRepository(),
		ratelimit.Config{MaxAttempts: maxLoginAttempts, Window: time.Minute}, logger)
	authHandler := NewAuthHandler(tokens, cookies, limiter, env.auditSvc, env.metrics, logger)
	accessHandler := NewAccessHandler(roles.NewService(registry, env.users, memory.TransactionManager{}, logger),
		env.users, env.auditSvc, logger)
	signupHandler := NewSignupHandler(controller, flows, tokens, cookies, env.auditSvc, logger)
	pageHandler := NewPageHandler(logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(authMW.LoadSession)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)
		r.Get("/auth/session", authHandler.HandleSession)
		r.Get("/navigation/check", pageHandler.HandleNavigationCheck)

		r.Route("/signup", func(r chi.Router) {
			r.Post("/", signupHandler.HandleSignup)
			r.Delete("/", signupHandler.HandleCancel)
			r.Get("/status", signupHandler.HandleStatus)
			r.Post("/verification", signupHandler.HandleVerify)
			r.Post("/verification/resend", signupHandler.HandleResendCode)
			r.Post("/business", signupHandler.HandleBusiness)
			r.Post("/contact", signupHandler.HandleContact)
			r.Post("/complete", signupHandler.HandleComplete)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)
			r.Get("/users/me", authHandler.HandleMe)
			r.With(guard.RequirePermission(rbac.RequireAny(rbac.RoleView, rbac.RoleCreate))).
				Get("/permissions", accessHandler.HandleListPermissions)
			r.With(guard.RequirePermission(rbac.Require(rbac.RoleView))).Get("/roles", accessHandler.HandleListRoles)
			r.With(guard.RequirePermission(rbac.Require(rbac.RoleView))).Get("/roles/{name}", accessHandler.HandleGetRole)
			r.With(guard.RequirePermission(rbac.Require(rbac.RoleCreate))).Post("/roles", accessHandler.HandleCreateRole)
			r.With(guard.RequirePermission(rbac.Require(rbac.RoleDelete))).Delete("/roles/{name}", accessHandler.HandleDeleteRole)
			r.With(guard.RequirePermission(rbac.RequireAny(rbac.RoleView, rbac.RoleAssign))).Get("/users", accessHandler.HandleListUsers)
			r.With(guard.RequirePermission(rbac.Require(rbac.RoleAssign))).Put("/users/{id}/role", accessHandler.HandleAssignRole)
		})
	})

	r.Get("/sign-in", pageHandler.Render(PublicPages[1]))
	for _, item := range rbac.Navigation() {
		r.With(guard.ProtectedRoute(item.Requirement, middleware.RouteOptions{RedirectTo: "/dashboard"})).
			Get(item.Path, pageHandler.RenderDashboard(item))
	}

	env.router = r
	return env
}

// do sends a request through the router. body is JSON-encoded unless nil.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// login signs in and returns the session cookie.
func (e *testEnv) login(t *testing.T, identifier string) *http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]interface{}{
		"identifier": identifier,
		"password":   testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := findCookie(rec, "gym_session")
	require.NotNil(t, c)
	return c
}

// auditActions stops the audit workers and returns the recorded actions.
func (e *testEnv) auditActions(t *testing.T) []models.AuditAction {
	t.Helper()
	require.NoError(t, e.auditSvc.Stop(time.Second))
	logs, err := e.auditRepo.ListRecent(context.Background(), 0, 0)
	require.NoError(t, err)
	actions := make([]models.AuditAction, len(logs))
	for i, l := range logs {
		actions[i] = l.Action
	}
	return actions
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// envelope decodes a {"data": ...} body into dst.
func envelope(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	body := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NoError(t, json.Unmarshal(body.Data, dst))
}

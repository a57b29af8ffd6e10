package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nrbnayon/silver-gym/app"
	"github.com/nrbnayon/silver-gym/handlers"
	"github.com/nrbnayon/silver-gym/middleware"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/navigation"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/utils"
)

// wizardGates lists the steps each wizard page needs before it may render.
var wizardGates = map[string][]models.SignupStep{
	"/sign-up/verification":  {models.StepSignup},
	"/sign-up/business-info": {models.StepSignup, models.StepVerification},
	"/sign-up/contact-info":  {models.StepSignup, models.StepVerification, models.StepBusiness},
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Observability.MetricsEnabled {
		r.Use(deps.Metrics.Middleware)
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// Everything below sees the caller's session
	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMiddleware.LoadSession)

		r.Route("/api/v1", func(r chi.Router) {
			setupAPIRoutes(r, deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RouteProtection(deps.Metrics, deps.Logger))
			setupPageRoutes(r, deps)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

func setupAPIRoutes(r chi.Router, deps *app.Dependencies) {
	guard := deps.AccessGuard

	// Session endpoints (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", deps.AuthHandler.HandleLogin)
		r.Post("/logout", deps.AuthHandler.HandleLogout)
		r.Get("/session", deps.AuthHandler.HandleSession)
	})
	r.Get("/navigation/check", deps.PageHandler.HandleNavigationCheck)

	// Sign-up wizard; step order is enforced by the controller
	r.Route("/signup", func(r chi.Router) {
		r.Post("/", deps.SignupHandler.HandleSignup)
		r.Delete("/", deps.SignupHandler.HandleCancel)
		r.Get("/status", deps.SignupHandler.HandleStatus)
		r.Post("/verification", deps.SignupHandler.HandleVerify)
		r.Post("/verification/resend", deps.SignupHandler.HandleResendCode)
		r.Post("/business", deps.SignupHandler.HandleBusiness)
		r.Post("/contact", deps.SignupHandler.HandleContact)
		r.Post("/complete", deps.SignupHandler.HandleComplete)
	})

	// Access management (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)

		r.Get("/users/me", deps.AuthHandler.HandleMe)

		r.With(guard.RequirePermission(rbac.RequireAny(rbac.RoleView, rbac.RoleCreate))).
			Get("/permissions", deps.AccessHandler.HandleListPermissions)

		r.Route("/roles", func(r chi.Router) {
			r.With(guard.RequirePermission(rbac.Require(rbac.RoleView))).Get("/", deps.AccessHandler.HandleListRoles)
			r.With(guard.RequirePermission(rbac.Require(rbac.RoleCreate))).Post("/", deps.AccessHandler.HandleCreateRole)
			r.With(guard.RequirePermission(rbac.Require(rbac.RoleView))).Get("/{name}", deps.AccessHandler.HandleGetRole)
			r.With(guard.RequirePermission(rbac.Require(rbac.RoleDelete))).Delete("/{name}", deps.AccessHandler.HandleDeleteRole)
		})

		r.With(guard.RequirePermission(rbac.RequireAny(rbac.RoleView, rbac.RoleAssign))).
			Get("/users", deps.AccessHandler.HandleListUsers)
		r.With(guard.RequirePermission(rbac.Require(rbac.RoleAssign))).
			Put("/users/{id}/role", deps.AccessHandler.HandleAssignRole)
	})
}

func setupPageRoutes(r chi.Router, deps *app.Dependencies) {
	pages := deps.PageHandler

	for _, page := range handlers.PublicPages {
		r.Get(page.Path, pages.Render(page))
	}

	for _, page := range handlers.WizardPages {
		required, gated := wizardGates[page.Path]
		if !gated {
			r.Get(page.Path, pages.Render(page))
			continue
		}
		r.With(middleware.SignupGate(deps.Wizard, deps.Flows, deps.Logger, required...)).
			Get(page.Path, pages.Render(page))
	}

	for _, item := range rbac.Navigation() {
		r.With(deps.AccessGuard.ProtectedRoute(item.Requirement, middleware.RouteOptions{RedirectTo: navigation.DashboardPath})).
			Get(item.Path, pages.RenderDashboard(item))
	}
}

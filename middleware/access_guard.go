package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nrbnayon/silver-gym/internal/observability"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
)

// AccessDeniedMessage is the body of the built-in denial page.
const AccessDeniedMessage = "Access Denied"

// RouteOptions configures what a ProtectedRoute does on denial.
type RouteOptions struct {
	// RedirectTo sends the caller elsewhere with a single 302. Ignored when
	// it equals the requested path.
	RedirectTo string
	// Fallback renders in place of the route. Defaults to a 403 page.
	Fallback http.Handler
}

// AccessGuard gates handlers on the permissions of the request's session.
// Denials are silent: a redirect, a fallback or an empty body, never an
// error message about the missing permission.
type AccessGuard struct {
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAccessGuard creates a new AccessGuard
func NewAccessGuard(metrics *observability.Metrics, logger *zap.Logger) *AccessGuard {
	return &AccessGuard{
		metrics: metrics,
		logger:  logger,
	}
}

// Allowed reports whether the request's session satisfies req.
func Allowed(r *http.Request, req rbac.Requirement) bool {
	return req.Allows(GetStateFromContext(r.Context()).Evaluator())
}

// Guard is the inline guard: next renders when req is met, otherwise
// fallback does. A nil fallback renders nothing (204 No Content).
func (g *AccessGuard) Guard(req rbac.Requirement, fallback http.Handler) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			utils.WriteNoContent(w)
		})
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Allowed(r, req) {
				next.ServeHTTP(w, r)
				return
			}
			g.denied(r, req)
			fallback.ServeHTTP(w, r)
		})
	}
}

// ProtectedRoute guards a whole page. The redirect decision is taken after
// the permission check and never points at the current path, so a denied
// caller is redirected at most once.
func (g *AccessGuard) ProtectedRoute(req rbac.Requirement, opts RouteOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Allowed(r, req) {
				next.ServeHTTP(w, r)
				return
			}
			g.denied(r, req)

			if opts.RedirectTo != "" && opts.RedirectTo != r.URL.Path {
				g.metrics.RecordRedirect(opts.RedirectTo)
				http.Redirect(w, r, opts.RedirectTo, http.StatusFound)
				return
			}
			if opts.Fallback != nil {
				opts.Fallback.ServeHTTP(w, r)
				return
			}
			_ = utils.WriteForbidden(w, AccessDeniedMessage)
		})
	}
}

// RequirePermission guards API routes: 403 JSON on denial.
func (g *AccessGuard) RequirePermission(req rbac.Requirement) func(http.Handler) http.Handler {
	return g.ProtectedRoute(req, RouteOptions{})
}

func (g *AccessGuard) denied(r *http.Request, req rbac.Requirement) {
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		route = rctx.RoutePattern()
	}
	g.metrics.RecordAccessDenied(route)
	g.logger.Debug("access denied",
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("route", route),
		zap.Strings("required", rbac.Strings(req.Permissions)),
		zap.String("mode", string(req.Mode)))
}

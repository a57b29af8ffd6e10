package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/auth"
	"github.com/nrbnayon/silver-gym/internal/observability"
	"github.com/nrbnayon/silver-gym/middleware"
	"github.com/nrbnayon/silver-gym/navigation"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/services"
	"github.com/nrbnayon/silver-gym/services/audit"
	"github.com/nrbnayon/silver-gym/services/ratelimit"
	"github.com/nrbnayon/silver-gym/session"
	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
)

// SessionResponse is the session as the dashboard shell sees it.
type SessionResponse struct {
	Session    session.State  `json:"session"`
	Sidebar    []rbac.NavItem `json:"sidebar"`
	RedirectTo string         `json:"redirect_to,omitempty"`
}

// AuthHandler handles sign-in, sign-out and session lookups
type AuthHandler struct {
	tokens  *auth.TokenManager
	cookies *auth.Cookies
	limiter *ratelimit.Service
	audit   *audit.AuditService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	tokens *auth.TokenManager,
	cookies *auth.Cookies,
	limiter *ratelimit.Service,
	auditSvc *audit.AuditService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		tokens:  tokens,
		cookies: cookies,
		limiter: limiter,
		audit:   auditSvc,
		metrics: metrics,
		logger:  logger,
	}
}

func newSessionResponse(state session.State) SessionResponse {
	return SessionResponse{
		Session: visibleState(state),
		Sidebar: rbac.Sidebar(state.Evaluator()),
	}
}

// HandleLogin handles POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	store := middleware.GetSessionFromContext(ctx)
	if store == nil {
		h.logger.Error("login without a loaded session", zap.String("request_id", requestID))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	var in session.LoginInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.logger.Warn("failed to parse login body",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	meta := requestMeta(r)
	attemptKey := ratelimit.LoginKey(meta.IPAddress, in.Identifier)
	if err := h.limiter.Allow(ctx, attemptKey); err != nil {
		if services.IsRateLimitedError(err) {
			h.metrics.RecordLogin("throttled")
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	identity, err := store.LoginUser(ctx, in)
	if err != nil {
		switch {
		case services.IsUnauthorizedError(err):
			h.metrics.RecordLogin("invalid")
			h.audit.LogLogin(meta, nil, in.Identifier, false)
			if err := h.limiter.Record(ctx, attemptKey); err != nil {
				h.logger.Warn("failed to record sign-in attempt",
					zap.String("request_id", requestID),
					zap.Error(err))
			}
		case services.IsInternalError(err):
			h.metrics.RecordLogin("error")
		}
		h.logger.Info("login failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	claims, err := h.tokens.Validate(ctx, identity.Token)
	if err != nil || claims.ExpiresAt == nil {
		h.logger.Error("freshly issued token did not validate",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	h.cookies.Set(w, identity.Token, claims.ExpiresAt.Time, in.RememberMe)
	h.metrics.RecordLogin("success")
	if err := h.limiter.Reset(ctx, attemptKey); err != nil {
		h.logger.Warn("failed to reset sign-in attempts",
			zap.String("request_id", requestID),
			zap.Error(err))
	}

	if id, err := uuid.Parse(identity.User.ID); err == nil {
		h.audit.LogLogin(meta, &id, in.Identifier, true)
	}
	h.logger.Info("user signed in",
		zap.String("request_id", requestID),
		zap.String("user_id", identity.User.ID),
		zap.String("role", identity.Role))

	resp := newSessionResponse(store.State())
	resp.RedirectTo = navigation.DashboardPath
	_ = utils.WriteOK(w, resp)
}

// HandleLogout handles POST /api/v1/auth/logout. It always succeeds and
// always leaves the caller signed out.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	h.cookies.Clear(w)

	store := middleware.GetSessionFromContext(ctx)
	if store == nil {
		_ = utils.WriteOK(w, newSessionResponse(session.Anonymous()))
		return
	}

	actor := actorID(store.State())
	if err := store.LogoutUser(ctx); err != nil {
		h.logger.Warn("logout did not reach the credential store",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
	if actor != uuid.Nil {
		h.audit.LogLogout(requestMeta(r), actor)
	}

	resp := newSessionResponse(store.State())
	resp.RedirectTo = navigation.SignInPath
	_ = utils.WriteOK(w, resp)
}

// HandleSession handles GET /api/v1/auth/session. Anonymous callers get
// the anonymous state, not an error.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, newSessionResponse(middleware.GetStateFromContext(r.Context())))
}

// MeResponse is the signed-in user's profile and grants.
type MeResponse struct {
	User        *session.User     `json:"user"`
	Role        string            `json:"role"`
	Permissions []rbac.Permission `json:"permissions"`
}

// HandleMe handles GET /api/v1/users/me
// This should be called after RequireAuth
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	state := middleware.GetStateFromContext(r.Context())
	_ = utils.WriteOK(w, MeResponse{
		User:        state.User,
		Role:        state.Role,
		Permissions: state.Permissions,
	})
}

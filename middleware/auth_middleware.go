package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/nrbnayon/silver-gym/auth"
	"github.com/nrbnayon/silver-gym/internal/observability"
	"github.com/nrbnayon/silver-gym/session"
	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
)

// ProviderFactory binds a credential provider to the token a request carries.
type ProviderFactory interface {
	ForToken(token string) session.CredentialProvider
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	providers    ProviderFactory
	cookies      *auth.Cookies
	checkTimeout time.Duration
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(
	providers ProviderFactory,
	cookies *auth.Cookies,
	checkTimeout time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuthMiddleware {
	return &AuthMiddleware{
		providers:    providers,
		cookies:      cookies,
		checkTimeout: checkTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// LoadSession builds a session store for the request, runs the session
// check and puts the store in the request context. It never rejects a
// request; guards further down decide what anonymous callers may see.
func (m *AuthMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := m.cookies.TokenFromRequest(r)
		store := session.NewStore(m.providers.ForToken(token), m.logger)
		defer store.Close()

		checkCtx := ctx
		if m.checkTimeout > 0 {
			var cancel context.CancelFunc
			checkCtx, cancel = context.WithTimeout(ctx, m.checkTimeout)
			defer cancel()
		}
		state := store.CheckAuthStatus(checkCtx)
		m.metrics.RecordSessionCheck(string(state.Status))

		// The cookie is left in place: a failed check may be a slow
		// database rather than a bad token.
		if token != "" && !state.IsAuthenticated {
			m.logger.Debug("presented session token not accepted",
				zap.String("request_id", requestID))
		}

		next.ServeHTTP(w, r.WithContext(WithSession(ctx, store)))
	})
}

// RequireAuth rejects anonymous API callers with 401.
// This should be called after LoadSession
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := GetStateFromContext(r.Context())
		if !state.IsAuthenticated {
			m.logger.Debug("unauthenticated request",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nrbnayon/silver-gym/session"
)

// Context key type to avoid collisions
type contextKey string

const (
	// SessionKey is the context key for the per-request session store
	SessionKey contextKey = "session"
)

// GetRequestIDFromContext returns the ID chi's RequestID middleware assigned.
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithSession adds a session store to the context
func WithSession(ctx context.Context, store *session.Store) context.Context {
	return context.WithValue(ctx, SessionKey, store)
}

// GetSessionFromContext retrieves the session store, or nil when
// SessionLoader did not run.
func GetSessionFromContext(ctx context.Context) *session.Store {
	if val := ctx.Value(SessionKey); val != nil {
		if store, ok := val.(*session.Store); ok {
			return store
		}
	}
	return nil
}

// GetStateFromContext returns the request's session state; anonymous when
// no session was loaded.
func GetStateFromContext(ctx context.Context) session.State {
	if store := GetSessionFromContext(ctx); store != nil {
		return store.State()
	}
	return session.Anonymous()
}

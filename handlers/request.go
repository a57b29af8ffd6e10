package handlers

import (
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/middleware"
	"github.com/nrbnayon/silver-gym/services/audit"
	"github.com/nrbnayon/silver-gym/session"
)

// requestMeta collects what the audit trail records about a request.
func requestMeta(r *http.Request) audit.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return audit.RequestMeta{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}

// actorID returns the signed-in user's ID, or uuid.Nil when anonymous.
func actorID(state session.State) uuid.UUID {
	if state.User == nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(state.User.ID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// visibleState strips the routine "not signed in" error before a state is
// shown to a client.
func visibleState(state session.State) session.State {
	if session.IsSilentError(state.Error) {
		state.Error = ""
	}
	return state
}

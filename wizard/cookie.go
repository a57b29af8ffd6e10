package wizard

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// FlowCookie carries the flow ID between wizard pages.
type FlowCookie struct {
	name   string
	secure bool
	ttl    time.Duration
}

func NewFlowCookie(name string, secure bool, ttl time.Duration) *FlowCookie {
	return &FlowCookie{name: name, secure: secure, ttl: ttl}
}

// FlowID returns the flow the request belongs to. ok is false when the
// cookie is missing or malformed.
func (c *FlowCookie) FlowID(r *http.Request) (uuid.UUID, bool) {
	cookie, err := r.Cookie(c.name)
	if err != nil || cookie.Value == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *FlowCookie) Set(w http.ResponseWriter, flowID uuid.UUID) {
	cookie := &http.Cookie{
		Name:     c.name,
		Value:    flowID.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.ttl > 0 {
		cookie.MaxAge = int(c.ttl.Seconds())
	}
	http.SetCookie(w, cookie)
}

func (c *FlowCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/nrbnayon/silver-gym/config"
)

// Cookies reads and writes the session cookie.
type Cookies struct {
	name   string
	secure bool
}

// NewCookies creates a cookie helper from session config
func NewCookies(cfg config.SessionConfig) *Cookies {
	return &Cookies{name: cfg.CookieName, secure: cfg.CookieSecure}
}

// Name returns the session cookie name.
func (c *Cookies) Name() string {
	return c.name
}

// TokenFromRequest returns the session token from the cookie, falling back
// to an Authorization: Bearer header.
func (c *Cookies) TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(c.name); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Set writes the session cookie. Without rememberMe it is a browser-session
// cookie; the token inside still expires at expiresAt.
func (c *Cookies) Set(w http.ResponseWriter, token string, expiresAt time.Time, rememberMe bool) {
	cookie := &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if rememberMe {
		cookie.Expires = expiresAt
		cookie.MaxAge = int(time.Until(expiresAt).Seconds())
	}
	http.SetCookie(w, cookie)
}

// Clear expires the session cookie.
func (c *Cookies) Clear(w http.ResponseWriter) {
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

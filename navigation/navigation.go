// Package navigation decides where a page request may go based only on the
// path and whether the caller is signed in. Permission checks happen later,
// in the per-page guards.
package navigation

import "strings"

const (
	HomePath      = "/"
	SignInPath    = "/sign-in"
	DashboardPath = "/dashboard"
)

// authPaths are the public pages meant for signed-out visitors only.
var authPaths = []string{
	"/sign-in",
	"/sign-up",
	"/forgot-password",
	"/reset-password",
}

// Action is the outcome of Decide.
type Action string

const (
	Allow    Action = "allow"
	Redirect Action = "redirect"
)

// Decision is where a navigation ends up.
type Decision struct {
	Action     Action `json:"action"`
	RedirectTo string `json:"redirect_to,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// PublicPaths lists every page reachable without signing in.
func PublicPaths() []string {
	return append([]string{HomePath}, authPaths...)
}

// IsPublic reports whether path is reachable without signing in. The home
// page matches exactly; the others also cover their sub-pages.
func IsPublic(path string) bool {
	return path == HomePath || IsAuthPage(path)
}

// IsAuthPage reports whether path is a sign-in, sign-up or password page.
func IsAuthPage(path string) bool {
	for _, p := range authPaths {
		if matchSegment(path, p) {
			return true
		}
	}
	return false
}

// Decide applies the route protection rules:
// signed-out visitors on private pages go to the sign-in page, signed-in
// users on auth pages go to the dashboard, everything else is allowed.
func Decide(path string, authenticated bool) Decision {
	path = clean(path)
	switch {
	case !authenticated && !IsPublic(path):
		return Decision{Action: Redirect, RedirectTo: SignInPath, Reason: "authentication required"}
	case authenticated && IsAuthPage(path):
		return Decision{Action: Redirect, RedirectTo: DashboardPath, Reason: "already signed in"}
	default:
		return Decision{Action: Allow}
	}
}

func matchSegment(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// clean drops a query string and a trailing slash so "/sign-in/" and
// "/sign-in?next=x" match "/sign-in".
func clean(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return HomePath
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return HomePath
		}
	}
	return path
}

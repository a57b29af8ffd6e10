// Package session holds the client-side view of who is signed in and what
// they may do.
package session

import (
	"errors"
	"fmt"

	"github.com/nrbnayon/silver-gym/rbac"
)

// Status is the lifecycle position of a session.
type Status string

const (
	StatusAnonymous     Status = "anonymous"
	StatusChecking      Status = "checking"
	StatusAuthenticated Status = "authenticated"
)

// NoAuthMessage is the error recorded when a session check finds nothing.
// It is expected on every cold start, so UIs hide it (see IsSilentError).
const NoAuthMessage = "No valid authentication found"

// ErrNoCredentials is returned by a CredentialProvider that has nothing to check.
var ErrNoCredentials = errors.New("no credentials presented")

// User is the display profile of the signed-in account.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	RoleLabel string `json:"role_label"`
}

// Identity is what a CredentialProvider resolves a credential to.
type Identity struct {
	User        User
	Role        string
	Permissions []rbac.Permission
	// Token is set by Login when the provider minted a new credential.
	Token string
}

// State is a snapshot of the session.
type State struct {
	Status          Status            `json:"status"`
	User            *User             `json:"user"`
	Role            string            `json:"role,omitempty"`
	Permissions     []rbac.Permission `json:"permissions"`
	IsAuthenticated bool              `json:"is_authenticated"`
	IsLoading       bool              `json:"is_loading"`
	Error           string            `json:"error,omitempty"`
}

// Anonymous returns the initial state.
func Anonymous() State {
	return State{Status: StatusAnonymous, Permissions: []rbac.Permission{}}
}

// Validate checks the invariants every published state must hold.
func (s State) Validate() error {
	if s.IsAuthenticated != (s.Status == StatusAuthenticated) {
		return fmt.Errorf("status %q disagrees with is_authenticated=%t", s.Status, s.IsAuthenticated)
	}
	if !s.IsAuthenticated && len(s.Permissions) > 0 {
		return fmt.Errorf("unauthenticated state carries %d permissions", len(s.Permissions))
	}
	if !s.IsAuthenticated && s.User != nil {
		return errors.New("unauthenticated state carries a user")
	}
	return nil
}

// normalize forces the invariants; anything not authenticated loses its grants.
func (s State) normalize() State {
	s.IsAuthenticated = s.Status == StatusAuthenticated
	if !s.IsAuthenticated {
		s.User = nil
		s.Role = ""
		s.Permissions = []rbac.Permission{}
	}
	if s.Permissions == nil {
		s.Permissions = []rbac.Permission{}
	}
	return s
}

func (s State) clone() State {
	s.Permissions = append([]rbac.Permission{}, s.Permissions...)
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Evaluator answers permission questions for this snapshot.
func (s State) Evaluator() rbac.Evaluator {
	if !s.IsAuthenticated {
		return rbac.Evaluator{}
	}
	return rbac.NewEvaluator(s.Permissions)
}

// IsSilentError reports whether msg is the routine "nobody is signed in"
// error that callers should not display.
func IsSilentError(msg string) bool {
	return msg == NoAuthMessage
}

func authenticatedState(id *Identity) State {
	user := id.User
	return State{
		Status:      StatusAuthenticated,
		User:        &user,
		Role:        id.Role,
		Permissions: append([]rbac.Permission{}, id.Permissions...),
	}
}

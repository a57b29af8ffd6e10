package rbac

// Evaluator answers permission queries over a fixed permission list.
// The zero value grants nothing.
type Evaluator struct {
	granted map[Permission]struct{}
}

// NewEvaluator builds an Evaluator over perms.
func NewEvaluator(perms []Permission) Evaluator {
	granted := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		granted[p] = struct{}{}
	}
	return Evaluator{granted: granted}
}

// HasPermission reports whether key was granted.
func (e Evaluator) HasPermission(key Permission) bool {
	_, ok := e.granted[key]
	return ok
}

// HasAnyPermission reports whether at least one key was granted.
// An empty list yields false.
func (e Evaluator) HasAnyPermission(keys []Permission) bool {
	for _, k := range keys {
		if e.HasPermission(k) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every key was granted.
// An empty list yields true.
func (e Evaluator) HasAllPermissions(keys []Permission) bool {
	for _, k := range keys {
		if !e.HasPermission(k) {
			return false
		}
	}
	return true
}

// Can checks resource:action.
func (e Evaluator) Can(resource, action string) bool {
	return e.HasPermission(Permission(resource + ":" + action))
}

// MatchMode selects how a multi-key Requirement is evaluated.
type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

// Requirement is a capability check: a single key, or a list matched in
// MatchAny (default) or MatchAll mode.
type Requirement struct {
	Permissions []Permission
	Mode        MatchMode
}

// Require builds a single-key requirement.
func Require(p Permission) Requirement {
	return Requirement{Permissions: []Permission{p}}
}

// RequireAny builds a requirement satisfied by any of perms.
func RequireAny(perms ...Permission) Requirement {
	return Requirement{Permissions: perms, Mode: MatchAny}
}

// RequireAll builds a requirement satisfied only by all of perms.
func RequireAll(perms ...Permission) Requirement {
	return Requirement{Permissions: perms, Mode: MatchAll}
}

// Allows evaluates the requirement against e.
func (r Requirement) Allows(e Evaluator) bool {
	if len(r.Permissions) == 1 {
		return e.HasPermission(r.Permissions[0])
	}
	if r.Mode == MatchAll {
		return e.HasAllPermissions(r.Permissions)
	}
	return e.HasAnyPermission(r.Permissions)
}

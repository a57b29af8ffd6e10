package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Built-in role names.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

var (
	ErrRoleNotFound    = errors.New("role not found")
	ErrRoleExists      = errors.New("role already exists")
	ErrBuiltInRole     = errors.New("built-in roles cannot be modified")
	ErrInvalidRoleName = errors.New("invalid role name")
)

// RoleTemplate is a named bundle of permissions.
type RoleTemplate struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	BuiltIn     bool         `json:"built_in"`
}

func (t RoleTemplate) clone() RoleTemplate {
	t.Permissions = append([]Permission(nil), t.Permissions...)
	return t
}

func builtInTemplates() []RoleTemplate {
	return []RoleTemplate{
		{
			Name:        RoleAdmin,
			Description: "Full access to every area of the gym",
			Permissions: AllPermissions(),
			BuiltIn:     true,
		},
		{
			Name:        RoleManager,
			Description: "Runs day-to-day operations: members, income and expenses",
			Permissions: []Permission{
				DashboardView,
				MemberView, MemberCreate, MemberEdit, MemberDelete,
				IncomeView, IncomeCreate, IncomeEdit,
				ExpenseView, ExpenseCreate,
				AccountView,
				AnalyticsView,
			},
			BuiltIn: true,
		},
		{
			Name:        RoleMember,
			Description: "Read-only access to the dashboard and member list",
			Permissions: []Permission{DashboardView, MemberView},
			BuiltIn:     true,
		},
	}
}

// Registry maps role names to templates. Built-ins are fixed at construction;
// custom roles live in memory only.
type Registry struct {
	mu     sync.RWMutex
	roles  map[string]RoleTemplate
	order  []string
	custom map[string]bool
}

// NewRegistry builds the registry and validates every built-in template
// against the catalog.
func NewRegistry() (*Registry, error) {
	return newRegistry(builtInTemplates())
}

func newRegistry(templates []RoleTemplate) (*Registry, error) {
	r := &Registry{
		roles:  make(map[string]RoleTemplate, len(templates)),
		custom: make(map[string]bool),
	}
	for _, t := range templates {
		for _, p := range t.Permissions {
			if !IsValid(p) {
				return nil, fmt.Errorf("role %q: %w: %s", t.Name, ErrUnknownPermission, p)
			}
		}
		if _, dup := r.roles[t.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrRoleExists, t.Name)
		}
		r.roles[t.Name] = t.clone()
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// MustNewRegistry panics if the built-in templates are invalid.
func MustNewRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns a copy of the named role.
func (r *Registry) Get(name string) (RoleTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.roles[name]
	if !ok {
		return RoleTemplate{}, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	return t.clone(), nil
}

// Exists reports whether name is a known role.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[name]
	return ok
}

// PermissionsFor resolves a role to its permission list.
func (r *Registry) PermissionsFor(name string) ([]Permission, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return t.Permissions, nil
}

// List returns built-ins first, then custom roles sorted by name.
func (r *Registry) List() []RoleTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var builtIn, custom []RoleTemplate
	for _, name := range r.order {
		builtIn = append(builtIn, r.roles[name].clone())
	}
	for name := range r.custom {
		custom = append(custom, r.roles[name].clone())
	}
	sort.Slice(custom, func(i, j int) bool { return custom[i].Name < custom[j].Name })
	return append(builtIn, custom...)
}

// CreateCustomRole registers a runtime role. Permissions are validated against
// the catalog and de-duplicated.
func (r *Registry) CreateCustomRole(name, description string, perms []string) (RoleTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoleTemplate{}, fmt.Errorf("%w: name is required", ErrInvalidRoleName)
	}
	parsed, err := ParsePermissions(perms)
	if err != nil {
		return RoleTemplate{}, err
	}

	t := RoleTemplate{
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: parsed,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.roles[name]; exists {
		return RoleTemplate{}, fmt.Errorf("%w: %s", ErrRoleExists, name)
	}
	r.roles[name] = t
	r.custom[name] = true
	return t.clone(), nil
}

// DeleteCustomRole removes a runtime role.
func (r *Registry) DeleteCustomRole(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.roles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	if t.BuiltIn {
		return fmt.Errorf("%w: %s", ErrBuiltInRole, name)
	}
	delete(r.roles, name)
	delete(r.custom, name)
	return nil
}

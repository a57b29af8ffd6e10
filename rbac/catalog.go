package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// Permission is a grantable capability in "<resource>:<action>" form.
type Permission string

// Resource returns the part before the colon.
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

// Action returns the part after the colon.
func (p Permission) Action() string {
	_, action, _ := strings.Cut(string(p), ":")
	return action
}

func (p Permission) String() string {
	return string(p)
}

const (
	DashboardView Permission = "dashboard:view"

	MemberView   Permission = "member:view"
	MemberCreate Permission = "member:create"
	MemberEdit   Permission = "member:edit"
	MemberDelete Permission = "member:delete"

	IncomeView   Permission = "income:view"
	IncomeCreate Permission = "income:create"
	IncomeEdit   Permission = "income:edit"
	IncomeDelete Permission = "income:delete"

	ExpenseView   Permission = "expense:view"
	ExpenseCreate Permission = "expense:create"
	ExpenseEdit   Permission = "expense:edit"
	ExpenseDelete Permission = "expense:delete"

	AccountView   Permission = "account:view"
	AccountCreate Permission = "account:create"
	AccountEdit   Permission = "account:edit"
	AccountDelete Permission = "account:delete"

	AnalyticsView   Permission = "analytics:view"
	AnalyticsExport Permission = "analytics:export"

	RoleView   Permission = "role:view"
	RoleCreate Permission = "role:create"
	RoleEdit   Permission = "role:edit"
	RoleDelete Permission = "role:delete"
	RoleAssign Permission = "role:assign"

	SettingsView Permission = "settings:view"
	SettingsEdit Permission = "settings:edit"
)

var (
	// ErrUnknownPermission is returned for keys outside the catalog.
	ErrUnknownPermission = errors.New("unknown permission")

	// ErrMalformedPermission is returned for keys not in resource:action form.
	ErrMalformedPermission = errors.New("malformed permission")
)

// PermissionInfo describes a permission for the role editor.
type PermissionInfo struct {
	Key      Permission `json:"key"`
	Label    string     `json:"label"`
	Category string     `json:"category"`
}

// CategoryGroup is one section of the role editor.
type CategoryGroup struct {
	Name        string           `json:"name"`
	Permissions []PermissionInfo `json:"permissions"`
}

// catalog is ordered; admin inherits this order.
var catalog = []PermissionInfo{
	{DashboardView, "View Dashboard", "Dashboard"},

	{MemberView, "View Members", "Members"},
	{MemberCreate, "Add Members", "Members"},
	{MemberEdit, "Edit Members", "Members"},
	{MemberDelete, "Delete Members", "Members"},

	{IncomeView, "View Income", "Income"},
	{IncomeCreate, "Record Income", "Income"},
	{IncomeEdit, "Edit Income", "Income"},
	{IncomeDelete, "Delete Income", "Income"},

	{ExpenseView, "View Expenses", "Expenses"},
	{ExpenseCreate, "Record Expenses", "Expenses"},
	{ExpenseEdit, "Edit Expenses", "Expenses"},
	{ExpenseDelete, "Delete Expenses", "Expenses"},

	{AccountView, "View Accounts", "Accounts"},
	{AccountCreate, "Create Accounts", "Accounts"},
	{AccountEdit, "Edit Accounts", "Accounts"},
	{AccountDelete, "Delete Accounts", "Accounts"},

	{AnalyticsView, "View Analytics", "Analytics"},
	{AnalyticsExport, "Export Reports", "Analytics"},

	{RoleView, "View Roles", "User Access"},
	{RoleCreate, "Create Roles", "User Access"},
	{RoleEdit, "Edit Roles", "User Access"},
	{RoleDelete, "Delete Roles", "User Access"},
	{RoleAssign, "Assign Roles", "User Access"},

	{SettingsView, "View Settings", "Settings"},
	{SettingsEdit, "Edit Settings", "Settings"},
}

var catalogIndex = func() map[Permission]PermissionInfo {
	idx := make(map[Permission]PermissionInfo, len(catalog))
	for _, info := range catalog {
		idx[info.Key] = info
	}
	return idx
}()

// AllPermissions returns every valid key in catalog order.
func AllPermissions() []Permission {
	keys := make([]Permission, len(catalog))
	for i, info := range catalog {
		keys[i] = info.Key
	}
	return keys
}

// Catalog returns the key -> {label, category} mapping.
func Catalog() map[Permission]PermissionInfo {
	out := make(map[Permission]PermissionInfo, len(catalogIndex))
	for k, v := range catalogIndex {
		out[k] = v
	}
	return out
}

// CatalogByCategory groups the catalog by category, keeping first-seen order.
func CatalogByCategory() []CategoryGroup {
	var groups []CategoryGroup
	position := make(map[string]int)
	for _, info := range catalog {
		i, ok := position[info.Category]
		if !ok {
			i = len(groups)
			position[info.Category] = i
			groups = append(groups, CategoryGroup{Name: info.Category})
		}
		groups[i].Permissions = append(groups[i].Permissions, info)
	}
	return groups
}

// Lookup returns catalog info for a key.
func Lookup(p Permission) (PermissionInfo, bool) {
	info, ok := catalogIndex[p]
	return info, ok
}

// IsValid reports whether p is in the catalog.
func IsValid(p Permission) bool {
	_, ok := catalogIndex[p]
	return ok
}

// ParsePermission validates a raw key against the catalog.
func ParsePermission(raw string) (Permission, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || resource == "" || action == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedPermission, raw)
	}
	p := Permission(resource + ":" + action)
	if !IsValid(p) {
		return "", fmt.Errorf("%w: %s", ErrUnknownPermission, p)
	}
	return p, nil
}

// ParsePermissions validates a list, dropping duplicates while keeping order.
func ParsePermissions(raw []string) ([]Permission, error) {
	out := make([]Permission, 0, len(raw))
	seen := make(map[Permission]bool, len(raw))
	for _, r := range raw {
		p, err := ParsePermission(r)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Strings converts permissions to plain strings.
func Strings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

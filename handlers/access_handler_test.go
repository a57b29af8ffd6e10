package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessHandler_PermissionsAndRoles(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "owner@silvergym.app")

	t.Run("catalog grouped by category", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/permissions", nil, admin)
		require.Equal(t, http.StatusOK, rec.Code)

		var groups []rbac.CategoryGroup
		envelope(t, rec, &groups)
		require.NotEmpty(t, groups)
		assert.Equal(t, "Dashboard", groups[0].Name)
		assert.Equal(t, rbac.DashboardView, groups[0].Permissions[0].Key)
	})

	t.Run("built-in roles listed", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/roles", nil, admin)
		require.Equal(t, http.StatusOK, rec.Code)

		var roles []RoleResponse
		envelope(t, rec, &roles)
		require.Len(t, roles, 3)
		assert.Equal(t, rbac.RoleAdmin, roles[0].Name)
		assert.True(t, roles[0].BuiltIn)
	})

	t.Run("unknown role", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/roles/ghost", nil, admin)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAccessHandler_RoleLifecycle(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "owner@silvergym.app")

	rec := env.do(t, http.MethodPost, "/api/v1/roles", map[string]interface{}{
		"name":        "front-desk",
		"description": "Reception staff",
		"permissions": []string{"dashboard:view", "member:view", "member:create"},
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created RoleResponse
	envelope(t, rec, &created)
	assert.Equal(t, "Front Desk", created.Label)
	assert.False(t, created.BuiltIn)
	assert.Len(t, created.Details, 3)

	rec = env.do(t, http.MethodPut, "/api/v1/users/"+env.staff.ID.String()+"/role",
		map[string]string{"role": "front-desk"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var assigned RoleAssignmentResponse
	envelope(t, rec, &assigned)
	assert.Equal(t, rbac.RoleMember, assigned.Previous)
	assert.Equal(t, "front-desk", assigned.User.Role)

	// The staff member's next request carries the new grants.
	staff := env.login(t, "staff@silvergym.app")
	rec = env.do(t, http.MethodGet, "/api/v1/users/me", nil, staff)
	var me MeResponse
	envelope(t, rec, &me)
	assert.Contains(t, me.Permissions, rbac.MemberCreate)

	rec = env.do(t, http.MethodDelete, "/api/v1/roles/front-desk", nil, admin)
	assert.Equal(t, http.StatusConflict, rec.Code, "role still held by staff")

	rec = env.do(t, http.MethodPut, "/api/v1/users/"+env.staff.ID.String()+"/role",
		map[string]string{"role": rbac.RoleMember}, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/roles/front-desk", nil, admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.ElementsMatch(t, []models.AuditAction{
		models.AuditActionLoginSucceeded,
		models.AuditActionRoleCreated,
		models.AuditActionRoleAssigned,
		models.AuditActionLoginSucceeded,
		models.AuditActionRoleAssigned,
		models.AuditActionRoleDeleted,
	}, env.auditActions(t))
}

func TestAccessHandler_Rejections(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "owner@silvergym.app")
	member := env.login(t, "staff@silvergym.app")

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		cookie   *http.Cookie
		expected int
	}{
		{"anonymous", http.MethodGet, "/api/v1/roles", nil, nil, http.StatusUnauthorized},
		{"member cannot list roles", http.MethodGet, "/api/v1/roles", nil, member, http.StatusForbidden},
		{"member cannot create roles", http.MethodPost, "/api/v1/roles",
			map[string]interface{}{"name": "coach", "permissions": []string{"member:view"}}, member, http.StatusForbidden},
		{"built-in role cannot be deleted", http.MethodDelete, "/api/v1/roles/manager", nil, admin, http.StatusForbidden},
		{"unknown permission", http.MethodPost, "/api/v1/roles",
			map[string]interface{}{"name": "coach", "permissions": []string{"member:fly"}}, admin, http.StatusBadRequest},
		{"duplicate role", http.MethodPost, "/api/v1/roles",
			map[string]interface{}{"name": "manager", "permissions": []string{"member:view"}}, admin, http.StatusConflict},
		{"bad user id", http.MethodPut, "/api/v1/users/not-a-uuid/role",
			map[string]string{"role": rbac.RoleMember}, admin, http.StatusBadRequest},
		{"last admin cannot be demoted", http.MethodPut, "/api/v1/users/" + env.owner.ID.String() + "/role",
			map[string]string{"role": rbac.RoleMember}, admin, http.StatusConflict},
		{"bad page size", http.MethodGet, "/api/v1/users?limit=0", nil, admin, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.cookie != nil {
				cookies = append(cookies, tt.cookie)
			}
			rec := env.do(t, tt.method, tt.path, tt.body, cookies...)
			assert.Equal(t, tt.expected, rec.Code, rec.Body.String())
		})
	}
}

func TestAccessHandler_DeniedGuardIsSilent(t *testing.T) {
	env := newTestEnv(t)
	member := env.login(t, "staff@silvergym.app")

	rec := env.do(t, http.MethodGet, "/api/v1/users", nil, member)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var resp utils.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Access Denied", resp.Message)
	assert.Empty(t, resp.Details, "the missing permission is never named")
}

func TestAccessHandler_ListUsers(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "owner@silvergym.app")

	rec := env.do(t, http.MethodGet, "/api/v1/users?limit=1", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []UserResponse
	envelope(t, rec, &users)
	require.Len(t, users, 1)

	rec = env.do(t, http.MethodGet, "/api/v1/users", nil, admin)
	envelope(t, rec, &users)
	assert.Len(t, users, 2)
}

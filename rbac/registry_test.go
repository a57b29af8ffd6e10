package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	t.Run("admin holds every key in catalog order", func(t *testing.T) {
		perms, err := r.PermissionsFor(RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, AllPermissions(), perms)
	})

	t.Run("member is minimal", func(t *testing.T) {
		perms, err := r.PermissionsFor(RoleMember)
		require.NoError(t, err)
		assert.Equal(t, []Permission{DashboardView, MemberView}, perms)
	})

	t.Run("manager cannot manage roles", func(t *testing.T) {
		perms, err := r.PermissionsFor(RoleManager)
		require.NoError(t, err)
		e := NewEvaluator(perms)
		assert.True(t, e.HasPermission(MemberCreate))
		assert.False(t, e.HasPermission(RoleCreate))
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := r.PermissionsFor("owner")
		assert.ErrorIs(t, err, ErrRoleNotFound)
	})
}

func TestNewRegistry_RejectsUnknownPermission(t *testing.T) {
	_, err := newRegistry([]RoleTemplate{
		{Name: "broken", Permissions: []Permission{MemberView, "member:teleport"}},
	})
	assert.ErrorIs(t, err, ErrUnknownPermission)
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := MustNewRegistry()

	perms, err := r.PermissionsFor(RoleMember)
	require.NoError(t, err)
	perms[0] = RoleDelete

	again, err := r.PermissionsFor(RoleMember)
	require.NoError(t, err)
	assert.Equal(t, DashboardView, again[0])
}

func TestRegistry_CustomRoles(t *testing.T) {
	t.Run("create validates and de-duplicates", func(t *testing.T) {
		r := MustNewRegistry()

		role, err := r.CreateCustomRole(" front-desk ", "Reception staff", []string{"member:view", "member:create", "member:view"})
		require.NoError(t, err)
		assert.Equal(t, "front-desk", role.Name)
		assert.False(t, role.BuiltIn)
		assert.Equal(t, []Permission{MemberView, MemberCreate}, role.Permissions)
		assert.True(t, r.Exists("front-desk"))
	})

	t.Run("unknown permission rejected", func(t *testing.T) {
		r := MustNewRegistry()
		_, err := r.CreateCustomRole("coach", "", []string{"member:view", "classes:teach"})
		assert.ErrorIs(t, err, ErrUnknownPermission)
		assert.False(t, r.Exists("coach"))
	})

	t.Run("malformed permission rejected", func(t *testing.T) {
		r := MustNewRegistry()
		_, err := r.CreateCustomRole("coach", "", []string{"memberview"})
		assert.ErrorIs(t, err, ErrMalformedPermission)
	})

	t.Run("name collisions rejected", func(t *testing.T) {
		r := MustNewRegistry()
		_, err := r.CreateCustomRole(RoleAdmin, "", nil)
		assert.ErrorIs(t, err, ErrRoleExists)

		_, err = r.CreateCustomRole("coach", "", nil)
		require.NoError(t, err)
		_, err = r.CreateCustomRole("coach", "", nil)
		assert.ErrorIs(t, err, ErrRoleExists)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		r := MustNewRegistry()
		_, err := r.CreateCustomRole("  ", "", nil)
		assert.ErrorIs(t, err, ErrInvalidRoleName)
	})

	t.Run("list puts built-ins first", func(t *testing.T) {
		r := MustNewRegistry()
		_, err := r.CreateCustomRole("zumba", "", []string{"dashboard:view"})
		require.NoError(t, err)
		_, err = r.CreateCustomRole("boxing", "", []string{"dashboard:view"})
		require.NoError(t, err)

		var names []string
		for _, role := range r.List() {
			names = append(names, role.Name)
		}
		assert.Equal(t, []string{RoleAdmin, RoleManager, RoleMember, "boxing", "zumba"}, names)
	})

	t.Run("delete", func(t *testing.T) {
		r := MustNewRegistry()
		_, err := r.CreateCustomRole("coach", "", nil)
		require.NoError(t, err)

		require.NoError(t, r.DeleteCustomRole("coach"))
		assert.False(t, r.Exists("coach"))
		assert.ErrorIs(t, r.DeleteCustomRole("coach"), ErrRoleNotFound)
		assert.ErrorIs(t, r.DeleteCustomRole(RoleManager), ErrBuiltInRole)
	})
}

func TestCatalog(t *testing.T) {
	t.Run("every key is resource:action", func(t *testing.T) {
		for _, p := range AllPermissions() {
			assert.NotEmpty(t, p.Resource(), p)
			assert.NotEmpty(t, p.Action(), p)
			info, ok := Lookup(p)
			require.True(t, ok)
			assert.NotEmpty(t, info.Label)
			assert.NotEmpty(t, info.Category)
		}
	})

	t.Run("grouping covers the whole catalog", func(t *testing.T) {
		total := 0
		for _, g := range CatalogByCategory() {
			for _, info := range g.Permissions {
				assert.Equal(t, g.Name, info.Category)
			}
			total += len(g.Permissions)
		}
		assert.Equal(t, len(AllPermissions()), total)
		assert.Equal(t, "Dashboard", CatalogByCategory()[0].Name)
	})

	t.Run("parse", func(t *testing.T) {
		p, err := ParsePermission(" income:view ")
		require.NoError(t, err)
		assert.Equal(t, IncomeView, p)

		_, err = ParsePermission("income:")
		assert.ErrorIs(t, err, ErrMalformedPermission)
	})
}

func TestSidebar(t *testing.T) {
	r := MustNewRegistry()

	keys := func(items []NavItem) []string {
		var out []string
		for _, item := range items {
			out = append(out, item.Key)
		}
		return out
	}

	member, _ := r.PermissionsFor(RoleMember)
	assert.Equal(t, []string{"dashboard", "members"}, keys(Sidebar(NewEvaluator(member))))

	admin, _ := r.PermissionsFor(RoleAdmin)
	assert.Len(t, Sidebar(NewEvaluator(admin)), len(Navigation()))

	assert.Empty(t, Sidebar(NewEvaluator(nil)))

	// User Access appears for role:assign alone.
	assert.Equal(t, []string{"user-access"}, keys(Sidebar(NewEvaluator([]Permission{RoleAssign}))))

	item, ok := NavItemForPath("/dashboard/income")
	require.True(t, ok)
	assert.Equal(t, "income", item.Key)
}

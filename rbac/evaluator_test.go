package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluator_HasPermission(t *testing.T) {
	tests := []struct {
		name    string
		granted []Permission
		key     Permission
		want    bool
	}{
		{"granted key", []Permission{MemberView, IncomeView}, MemberView, true},
		{"missing key", []Permission{MemberView}, MemberCreate, false},
		{"empty grant", nil, DashboardView, false},
		{"key outside catalog", []Permission{MemberView}, Permission("gym:fly"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(tt.granted)
			assert.Equal(t, tt.want, e.HasPermission(tt.key))
		})
	}
}

func TestEvaluator_MembershipMatchesEveryCatalogKey(t *testing.T) {
	granted := []Permission{MemberView, ExpenseCreate, RoleAssign}
	e := NewEvaluator(granted)

	in := make(map[Permission]bool)
	for _, p := range granted {
		in[p] = true
	}
	for _, k := range AllPermissions() {
		assert.Equal(t, in[k], e.HasPermission(k), k.String())
	}
}

func TestEvaluator_EmptyListAsymmetry(t *testing.T) {
	e := NewEvaluator([]Permission{MemberView})

	assert.False(t, e.HasAnyPermission([]Permission{}))
	assert.False(t, e.HasAnyPermission(nil))
	assert.True(t, e.HasAllPermissions([]Permission{}))
	assert.True(t, e.HasAllPermissions(nil))
}

func TestEvaluator_AnyAll(t *testing.T) {
	e := NewEvaluator([]Permission{MemberView, IncomeView})

	assert.True(t, e.HasAnyPermission([]Permission{MemberCreate, IncomeView}))
	assert.False(t, e.HasAnyPermission([]Permission{MemberCreate, ExpenseView}))
	assert.True(t, e.HasAllPermissions([]Permission{MemberView, IncomeView}))
	assert.False(t, e.HasAllPermissions([]Permission{MemberView, ExpenseView}))
}

func TestEvaluator_Can(t *testing.T) {
	e := NewEvaluator([]Permission{AnalyticsExport})

	assert.True(t, e.Can("analytics", "export"))
	assert.False(t, e.Can("analytics", "view"))
}

func TestEvaluator_ZeroValue(t *testing.T) {
	var e Evaluator
	assert.False(t, e.HasPermission(DashboardView))
	assert.True(t, e.HasAllPermissions(nil))
}

func TestRequirement_Allows(t *testing.T) {
	e := NewEvaluator([]Permission{MemberView})

	t.Run("single key uses HasPermission", func(t *testing.T) {
		assert.True(t, Require(MemberView).Allows(e))
		assert.False(t, Require(MemberCreate).Allows(e))
	})

	t.Run("default mode is any", func(t *testing.T) {
		req := Requirement{Permissions: []Permission{MemberCreate, MemberView}}
		assert.True(t, req.Allows(e))
	})

	t.Run("all mode needs every key", func(t *testing.T) {
		assert.False(t, RequireAll(MemberCreate, MemberView).Allows(e))
		assert.True(t, RequireAll(MemberView, MemberView).Allows(e))
	})

	t.Run("empty lists keep the asymmetry", func(t *testing.T) {
		assert.False(t, RequireAny().Allows(e))
		assert.True(t, RequireAll().Allows(e))
	})
}

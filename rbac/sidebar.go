package rbac

// NavItem is one entry in the dashboard sidebar.
type NavItem struct {
	Key         string      `json:"key"`
	Label       string      `json:"label"`
	Path        string      `json:"path"`
	Requirement Requirement `json:"-"`
}

var navigation = []NavItem{
	{Key: "dashboard", Label: "Dashboard", Path: "/dashboard", Requirement: Require(DashboardView)},
	{Key: "members", Label: "Members", Path: "/dashboard/members", Requirement: Require(MemberView)},
	{Key: "income", Label: "Income", Path: "/dashboard/income", Requirement: Require(IncomeView)},
	{Key: "expenses", Label: "Expenses", Path: "/dashboard/expenses", Requirement: Require(ExpenseView)},
	{Key: "accounts", Label: "Accounts", Path: "/dashboard/accounts", Requirement: Require(AccountView)},
	{Key: "analytics", Label: "Analytics", Path: "/dashboard/analytics", Requirement: Require(AnalyticsView)},
	{Key: "user-access", Label: "User Access", Path: "/dashboard/user-access", Requirement: RequireAny(RoleView, RoleAssign)},
	{Key: "settings", Label: "Settings", Path: "/dashboard/settings", Requirement: Require(SettingsView)},
}

// Navigation returns every sidebar item regardless of access.
func Navigation() []NavItem {
	return append([]NavItem(nil), navigation...)
}

// Sidebar returns the items e is allowed to see, in display order.
func Sidebar(e Evaluator) []NavItem {
	items := make([]NavItem, 0, len(navigation))
	for _, item := range navigation {
		if item.Requirement.Allows(e) {
			items = append(items, item)
		}
	}
	return items
}

// NavItemForPath finds the sidebar item served at path.
func NavItemForPath(path string) (NavItem, bool) {
	for _, item := range navigation {
		if item.Path == path {
			return item, true
		}
	}
	return NavItem{}, false
}

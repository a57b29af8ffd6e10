package handlers

import (
	"net/http"

	"github.com/nrbnayon/silver-gym/middleware"
	"github.com/nrbnayon/silver-gym/navigation"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/session"
	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
)

// Page describes one screen the front end renders.
type Page struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// PageView is the view descriptor served for a page route: what to render
// and for whom. Actions lists what the viewer may do on the page beyond
// seeing it, so buttons they cannot use are never drawn.
type PageView struct {
	Page    Page           `json:"page"`
	Session session.State  `json:"session"`
	Sidebar []rbac.NavItem `json:"sidebar,omitempty"`
	Actions []string       `json:"actions,omitempty"`
}

// PublicPages are the screens outside the dashboard.
var PublicPages = []Page{
	{Key: "home", Title: "Silver Gym", Path: navigation.HomePath},
	{Key: "sign-in", Title: "Sign In", Path: navigation.SignInPath},
	{Key: "forgot-password", Title: "Forgot Password", Path: "/forgot-password"},
	{Key: "reset-password", Title: "Reset Password", Path: "/reset-password"},
}

// WizardPages are the sign-up screens, in order.
var WizardPages = []Page{
	{Key: "sign-up", Title: "Create Your Account", Path: "/sign-up"},
	{Key: "verification", Title: "Verify Your Account", Path: "/sign-up/verification"},
	{Key: "business-info", Title: "Business Information", Path: "/sign-up/business-info"},
	{Key: "contact-info", Title: "Contact Information", Path: "/sign-up/contact-info"},
}

// PageHandler serves view descriptors and the navigation check.
type PageHandler struct {
	logger *zap.Logger
}

// NewPageHandler creates a new PageHandler
func NewPageHandler(logger *zap.Logger) *PageHandler {
	return &PageHandler{logger: logger}
}

// Render serves the descriptor of a public or wizard page.
func (h *PageHandler) Render(page Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := middleware.GetStateFromContext(r.Context())
		if err := utils.WriteOK(w, PageView{Page: page, Session: visibleState(state)}); err != nil {
			h.logger.Error("failed to write page view", zap.String("page", page.Key), zap.Error(err))
		}
	}
}

// RenderDashboard serves a dashboard page with the viewer's sidebar and
// the actions they hold on the page's resource.
func (h *PageHandler) RenderDashboard(item rbac.NavItem) http.HandlerFunc {
	page := Page{Key: item.Key, Title: item.Label, Path: item.Path}
	return func(w http.ResponseWriter, r *http.Request) {
		state := middleware.GetStateFromContext(r.Context())
		eval := state.Evaluator()
		view := PageView{
			Page:    page,
			Session: visibleState(state),
			Sidebar: rbac.Sidebar(eval),
			Actions: pageActions(item, eval),
		}
		if err := utils.WriteOK(w, view); err != nil {
			h.logger.Error("failed to write page view", zap.String("page", page.Key), zap.Error(err))
		}
	}
}

// HandleNavigationCheck handles GET /api/v1/navigation/check?path=
func (h *PageHandler) HandleNavigationCheck(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		_ = utils.WriteBadRequest(w, "path is required", nil)
		return
	}
	state := middleware.GetStateFromContext(r.Context())
	_ = utils.WriteOK(w, navigation.Decide(path, state.IsAuthenticated))
}

// pageActions lists the non-view actions eval holds on the resource that
// item's requirement guards, in catalog order.
func pageActions(item rbac.NavItem, eval rbac.Evaluator) []string {
	if len(item.Requirement.Permissions) == 0 {
		return nil
	}
	resource := item.Requirement.Permissions[0].Resource()

	var actions []string
	for _, p := range rbac.AllPermissions() {
		if p.Resource() != resource || p.Action() == "view" {
			continue
		}
		if eval.HasPermission(p) {
			actions = append(actions, p.Action())
		}
	}
	return actions
}

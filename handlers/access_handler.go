package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/middleware"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/services"
	"github.com/nrbnayon/silver-gym/services/audit"
	"github.com/nrbnayon/silver-gym/services/roles"
	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
)

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 200
)

// UserLister is the part of the user repository the access pages read.
type UserLister interface {
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// RoleResponse represents a role in API responses
type RoleResponse struct {
	Name        string                `json:"name"`
	Label       string                `json:"label"`
	Description string                `json:"description,omitempty"`
	BuiltIn     bool                  `json:"built_in"`
	Permissions []rbac.Permission     `json:"permissions"`
	Details     []rbac.PermissionInfo `json:"details"`
}

// UserResponse represents a staff account in API responses
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	RoleLabel string    `json:"role_label"`
	CreatedAt string    `json:"created_at"`
}

// RoleAssignmentResponse reports a role change.
type RoleAssignmentResponse struct {
	User     UserResponse `json:"user"`
	Previous string       `json:"previous_role"`
}

// AccessHandler serves the User Access section: the permission catalog,
// role templates and role assignment.
type AccessHandler struct {
	roles  *roles.Service
	users  UserLister
	audit  *audit.AuditService
	logger *zap.Logger
}

// NewAccessHandler creates a new AccessHandler
func NewAccessHandler(roleSvc *roles.Service, users UserLister, auditSvc *audit.AuditService, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{
		roles:  roleSvc,
		users:  users,
		audit:  auditSvc,
		logger: logger,
	}
}

// HandleListPermissions handles GET /api/v1/permissions
func (h *AccessHandler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, rbac.CatalogByCategory())
}

// HandleListRoles handles GET /api/v1/roles
func (h *AccessHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	templates := h.roles.List()
	responses := make([]RoleResponse, len(templates))
	for i, t := range templates {
		responses[i] = roleToResponse(t)
	}
	_ = utils.WriteOK(w, responses)
}

// HandleGetRole handles GET /api/v1/roles/{name}
func (h *AccessHandler) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	t, err := h.roles.Get(chi.URLParam(r, "name"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, roleToResponse(t))
}

// HandleCreateRole handles POST /api/v1/roles
func (h *AccessHandler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var in roles.CreateRoleInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	t, err := h.roles.Create(in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.audit.LogRoleCreated(requestMeta(r), actorID(middleware.GetStateFromContext(ctx)), t.Name, rbac.Strings(t.Permissions))
	_ = utils.WriteCreated(w, roleToResponse(t))
}

// HandleDeleteRole handles DELETE /api/v1/roles/{name}
func (h *AccessHandler) HandleDeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	if err := h.roles.Delete(ctx, name); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.audit.LogRoleDeleted(requestMeta(r), actorID(middleware.GetStateFromContext(ctx)), name)
	utils.WriteNoContent(w)
}

// HandleListUsers handles GET /api/v1/users?limit=&offset=
func (h *AccessHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	limit, offset, err := pagination(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	users, err := h.users.List(ctx, limit, offset)
	if err != nil {
		h.logger.Error("failed to list users",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve users")
		return
	}

	responses := make([]UserResponse, len(users))
	for i, u := range users {
		responses[i] = userToResponse(u)
	}
	_ = utils.WriteOK(w, responses)
}

// HandleAssignRole handles PUT /api/v1/users/{id}/role
func (h *AccessHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid user ID format", nil)
		return
	}

	var in roles.AssignRoleInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	assignment, err := h.roles.Assign(ctx, userID, in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if assignment.Previous != assignment.User.Role {
		h.audit.LogRoleAssigned(requestMeta(r), actorID(middleware.GetStateFromContext(ctx)),
			userID, assignment.Previous, assignment.User.Role)
	}
	_ = utils.WriteOK(w, RoleAssignmentResponse{
		User:     userToResponse(assignment.User),
		Previous: assignment.Previous,
	})
}

func pagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultUserPageSize
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, services.ErrInvalidInput.WithDetail("limit", raw)
		}
		limit = min(limit, maxUserPageSize)
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, services.ErrInvalidInput.WithDetail("offset", raw)
		}
	}
	return limit, offset, nil
}

func roleToResponse(t rbac.RoleTemplate) RoleResponse {
	details := make([]rbac.PermissionInfo, 0, len(t.Permissions))
	for _, p := range t.Permissions {
		if info, ok := rbac.Lookup(p); ok {
			details = append(details, info)
		}
	}
	label := (&models.User{Role: t.Name}).RoleLabel()
	return RoleResponse{
		Name:        t.Name,
		Label:       label,
		Description: t.Description,
		BuiltIn:     t.BuiltIn,
		Permissions: t.Permissions,
		Details:     details,
	}
}

func userToResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		RoleLabel: u.RoleLabel(),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// Package roles manages role templates and who holds them.
package roles

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/repositories"
	"github.com/nrbnayon/silver-gym/services"
	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
)

// CreateRoleInput is the role editor form.
type CreateRoleInput struct {
	Name        string   `json:"name" validate:"required,role_name"`
	Description string   `json:"description" validate:"max=200"`
	Permissions []string `json:"permissions" validate:"required,min=1,dive,required"`
}

// AssignRoleInput changes a user's role.
type AssignRoleInput struct {
	Role string `json:"role" validate:"required"`
}

// Assignment is the outcome of a role change.
type Assignment struct {
	User     *models.User
	Previous string
}

// Service creates, deletes and assigns roles
type Service struct {
	registry *rbac.Registry
	users    repositories.UserRepository
	txMgr    repositories.TransactionManager
	logger   *zap.Logger

	// assignMu serializes role changes made by this process. The row
	// locks taken in Assign cover other processes sharing the database.
	assignMu sync.Mutex
}

// NewService creates a new role service
func NewService(registry *rbac.Registry, users repositories.UserRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		registry: registry,
		users:    users,
		txMgr:    txMgr,
		logger:   logger,
	}
}

// List returns built-in roles first, then custom roles by name.
func (s *Service) List() []rbac.RoleTemplate {
	return s.registry.List()
}

func (s *Service) Get(name string) (rbac.RoleTemplate, error) {
	t, err := s.registry.Get(name)
	if err != nil {
		return rbac.RoleTemplate{}, translate(err)
	}
	return t, nil
}

// Create registers a custom role.
func (s *Service) Create(in CreateRoleInput) (rbac.RoleTemplate, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return rbac.RoleTemplate{}, err
	}
	t, err := s.registry.CreateCustomRole(in.Name, in.Description, in.Permissions)
	if err != nil {
		return rbac.RoleTemplate{}, translate(err)
	}
	s.logger.Info("custom role created",
		zap.String("role", t.Name),
		zap.Int("permissions", len(t.Permissions)))
	return t, nil
}

// Delete removes a custom role nobody holds any more.
func (s *Service) Delete(ctx context.Context, name string) error {
	if _, err := s.registry.Get(name); err != nil {
		return translate(err)
	}
	holders, err := s.users.CountByRole(ctx, name)
	if err != nil {
		return services.Wrap(services.ErrDatabaseError, err)
	}
	if holders > 0 {
		return services.NewDomainError(services.ErrorTypeConflict, "role is still assigned to users", nil).
			WithDetail("users", holders)
	}
	if err := s.registry.DeleteCustomRole(name); err != nil {
		return translate(err)
	}
	s.logger.Info("custom role deleted", zap.String("role", name))
	return nil
}

// Assign gives userID the named role. The last admin cannot be moved to
// another role, so the gym always keeps someone who can manage access.
func (s *Service) Assign(ctx context.Context, userID uuid.UUID, in AssignRoleInput) (*Assignment, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !s.registry.Exists(in.Role) {
		return nil, services.ErrRoleNotFound.WithDetail("role", in.Role)
	}

	s.assignMu.Lock()
	defer s.assignMu.Unlock()

	return services.WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*Assignment, error) {
		users := s.users.WithTx(tx)

		user, err := users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrUserNotFound
			}
			return nil, services.Wrap(services.ErrDatabaseError, err)
		}
		previous := user.Role
		if previous == in.Role {
			return &Assignment{User: user, Previous: previous}, nil
		}

		if previous == rbac.RoleAdmin {
			admins, err := users.LockRoleHolders(ctx, rbac.RoleAdmin)
			if err != nil {
				return nil, services.Wrap(services.ErrDatabaseError, err)
			}
			if admins <= 1 {
				return nil, services.NewDomainError(services.ErrorTypeConflict, "cannot remove the last admin", nil)
			}
		}

		if err := users.UpdateRole(ctx, userID, in.Role); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrUserNotFound
			}
			return nil, services.Wrap(services.ErrDatabaseError, err)
		}
		user.Role = in.Role

		s.logger.Info("role assigned",
			zap.String("user_id", userID.String()),
			zap.String("from", previous),
			zap.String("to", in.Role))
		return &Assignment{User: user, Previous: previous}, nil
	})
}

// translate maps registry errors onto the domain taxonomy.
func translate(err error) error {
	switch {
	case errors.Is(err, rbac.ErrRoleNotFound):
		return services.Wrap(services.ErrRoleNotFound, err)
	case errors.Is(err, rbac.ErrRoleExists):
		return services.Wrap(services.ErrRoleExists, err)
	case errors.Is(err, rbac.ErrBuiltInRole):
		return services.Wrap(services.ErrBuiltInRole, err)
	case errors.Is(err, rbac.ErrUnknownPermission), errors.Is(err, rbac.ErrMalformedPermission):
		return services.Wrap(services.ErrInvalidPermission, err)
	case errors.Is(err, rbac.ErrInvalidRoleName):
		return services.Wrap(services.ErrInvalidInput, err)
	default:
		return services.WrapInternal("role registry", err)
	}
}

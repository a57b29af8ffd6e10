package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/rbac"
	"github.com/nrbnayon/silver-gym/repositories"
	"github.com/nrbnayon/silver-gym/services"
	"github.com/nrbnayon/silver-gym/session"
	"github.com/nrbnayon/silver-gym/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when no account matches, so a miss costs
// the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("silver-gym-placeholder"), bcrypt.DefaultCost)

// Service authenticates staff accounts and resolves their permissions.
type Service struct {
	users    repositories.UserRepository
	registry *rbac.Registry
	tokens   *TokenManager
	logger   *zap.Logger
}

// NewService creates a new auth service
func NewService(users repositories.UserRepository, registry *rbac.Registry, tokens *TokenManager, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		registry: registry,
		tokens:   tokens,
		logger:   logger,
	}
}

// Tokens exposes the token manager.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate resolves identifier (e-mail or phone) and checks password.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		user *models.User
		err  error
	)
	switch {
	case utils.IsEmail(identifier):
		user, err = s.users.GetByEmail(ctx, identifier)
	case utils.IsPhone(identifier):
		user, err = s.users.GetByPhone(ctx, identifier)
	default:
		return nil, services.ErrInvalidCredentials
	}

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, services.ErrInvalidCredentials
		}
		return nil, services.Wrap(services.ErrDatabaseError, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, services.ErrInvalidCredentials
	}
	return user, nil
}

// IdentityFor builds the session identity for user. A role missing from
// the registry yields an identity with no permissions.
func (s *Service) IdentityFor(user *models.User) *session.Identity {
	perms, err := s.registry.PermissionsFor(user.Role)
	if err != nil {
		s.logger.Warn("user has unknown role, granting no permissions",
			zap.String("user_id", user.ID.String()),
			zap.String("role", user.Role))
		perms = nil
	}
	return &session.Identity{
		User: session.User{
			ID:        user.ID.String(),
			Name:      user.Name,
			Email:     user.Email,
			Phone:     user.Phone,
			AvatarURL: user.AvatarURL,
			RoleLabel: user.RoleLabel(),
		},
		Role:        user.Role,
		Permissions: perms,
	}
}

// Resolve validates token and loads the identity behind it.
func (s *Service) Resolve(ctx context.Context, token string) (*session.Identity, *Claims, error) {
	claims, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrInvalidToken, err)
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, services.ErrUserNotFound
		}
		return nil, nil, services.Wrap(services.ErrDatabaseError, err)
	}
	return s.IdentityFor(user), claims, nil
}

// ForToken returns a CredentialProvider bound to one presented token
// (empty when the client sent none).
func (s *Service) ForToken(token string) session.CredentialProvider {
	return &tokenProvider{svc: s, token: token}
}

type tokenProvider struct {
	svc   *Service
	token string
}

func (p *tokenProvider) Check(ctx context.Context) (*session.Identity, error) {
	if p.token == "" {
		return nil, session.ErrNoCredentials
	}
	identity, _, err := p.svc.Resolve(ctx, p.token)
	if err != nil {
		return nil, err
	}
	identity.Token = p.token
	return identity, nil
}

func (p *tokenProvider) Login(ctx context.Context, identifier, password string, rememberMe bool) (*session.Identity, error) {
	user, err := p.svc.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	token, _, err := p.svc.tokens.Issue(user, rememberMe)
	if err != nil {
		return nil, services.WrapInternal("issue session token", err)
	}
	p.token = token

	identity := p.svc.IdentityFor(user)
	identity.Token = token
	return identity, nil
}

// Logout revokes the bound token. A missing or already invalid token is
// not an error; there is nothing left to sign out.
func (p *tokenProvider) Logout(ctx context.Context) error {
	if p.token == "" {
		return nil
	}
	claims, err := p.svc.tokens.Validate(ctx, p.token)
	p.token = ""
	if err != nil {
		return nil
	}
	return p.svc.tokens.Revoke(ctx, claims)
}

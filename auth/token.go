package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nrbnayon/silver-gym/config"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/repositories"
	"github.com/nrbnayon/silver-gym/services"
)

// Claims are the session token claims.
type Claims struct {
	Role     string `json:"role"`
	Remember bool   `json:"remember,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates HS256 session tokens. Revoked token
// IDs are kept in store until the tokens would have expired anyway; the
// LRU only remembers recent hits so repeat requests skip the store.
type TokenManager struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	rememberTTL time.Duration
	store       repositories.RevocationRepository
	revoked     *lru.LRU[string, time.Time]
	now         func() time.Time
}

// NewTokenManager creates a token manager from session config
func NewTokenManager(cfg config.SessionConfig, store repositories.RevocationRepository) *TokenManager {
	capacity := cfg.RevokedCap
	if capacity <= 0 {
		capacity = 10000
	}
	return &TokenManager{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		ttl:         cfg.TTL,
		rememberTTL: cfg.RememberTTL,
		store:       store,
		revoked:     lru.NewLRU[string, time.Time](capacity, nil, cfg.RememberTTL),
		now:         time.Now,
	}
}

// Issue signs a token for user. rememberMe selects the long TTL.
func (m *TokenManager) Issue(user *models.User, rememberMe bool) (string, time.Time, error) {
	now := m.now().UTC()
	ttl := m.ttl
	if rememberMe {
		ttl = m.rememberTTL
	}
	exp := now.Add(ttl)

	claims := Claims{
		Role:     user.Role,
		Remember: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

// Validate parses and verifies token, returning services.ErrTokenExpired,
// services.ErrTokenRevoked or services.ErrInvalidToken on failure. When the
// revocation store cannot be read the token is refused.
func (m *TokenManager) Validate(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.Wrap(services.ErrTokenExpired, err)
		}
		return nil, services.Wrap(services.ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, services.ErrInvalidToken
	}
	if m.revoked.Contains(claims.ID) {
		return nil, services.ErrTokenRevoked
	}
	revoked, err := m.store.IsRevoked(ctx, claims.ID, m.now())
	if err != nil {
		return nil, services.Wrap(services.ErrDatabaseError, err)
	}
	if revoked {
		m.revoked.Add(claims.ID, claims.ExpiresAt.Time)
		return nil, services.ErrTokenRevoked
	}
	return claims, nil
}

// Revoke marks the token's ID as signed out until it expires.
func (m *TokenManager) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	exp := claims.ExpiresAt.Time
	if err := m.store.Revoke(ctx, claims.ID, exp); err != nil {
		return services.Wrap(services.ErrDatabaseError, err)
	}
	m.revoked.Add(claims.ID, exp)
	return nil
}

// PurgeRevoked drops revocations of tokens that have expired.
func (m *TokenManager) PurgeRevoked(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, services.Wrap(services.ErrDatabaseError, err)
	}
	return n, nil
}

package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name:    "with cause",
			err:     NewDomainError(ErrorTypeNotFound, "user not found", errors.New("sql: no rows")),
			wantMsg: "not_found: user not found (sql: no rows)",
		},
		{
			name:    "without cause",
			err:     NewDomainError(ErrorTypeValidation, "invalid input", nil),
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	wrapped := Wrap(ErrInvalidCredentials, errors.New("bcrypt mismatch"))

	assert.ErrorIs(t, wrapped, ErrInvalidCredentials)
	assert.NotErrorIs(t, wrapped, ErrInvalidToken, "same type, different sentinel")
	assert.NotErrorIs(t, wrapped, ErrForbidden)

	outer := fmt.Errorf("login: %w", wrapped)
	assert.ErrorIs(t, outer, ErrInvalidCredentials)
	assert.True(t, IsUnauthorizedError(outer))
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrDatabaseError, cause)
	assert.ErrorIs(t, err, cause)
}

func TestDomainError_WithDetailDoesNotMutateSentinel(t *testing.T) {
	err := ErrRoleExists.WithDetail("name", "coach")

	assert.Equal(t, "coach", GetErrorDetails(err)["name"])
	assert.Empty(t, ErrRoleExists.Details)
	assert.ErrorIs(t, err, ErrRoleExists)
}

func TestTypeCheckers(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
	}{
		{ErrUserNotFound, IsNotFoundError},
		{ErrInvalidCode, IsValidationError},
		{ErrTokenRevoked, IsUnauthorizedError},
		{ErrBuiltInRole, IsForbiddenError},
		{ErrStepOutOfOrder, IsConflictError},
		{ErrDatabaseError, IsInternalError},
		{ErrMailDelivery, IsExternalError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeConflict, GetErrorType(ErrLoginInProgress))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}

func TestWrapInternal(t *testing.T) {
	err := WrapInternal("save progress", errors.New("disk full"))
	assert.True(t, IsInternalError(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, "Invalid email/phone or password", GetErrorMessage(ErrInvalidCredentials))
	assert.Equal(t, "Role not found", GetErrorMessage(Wrap(ErrRoleNotFound, errors.New("rbac: role not found: coach"))))
	assert.Equal(t, "An unexpected error occurred", GetErrorMessage(errors.New("boom")))
}

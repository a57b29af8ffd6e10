package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeRateLimited  ErrorType = "rate_limited"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on Type and Message so wrapped sentinels compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithDetail returns a copy of the error carrying key=value.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Type: e.Type, Message: e.Message, Err: e.Err, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

var (
	ErrUserNotFound     = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrRoleNotFound     = NewDomainError(ErrorTypeNotFound, "role not found", nil)
	ErrProgressNotFound = NewDomainError(ErrorTypeNotFound, "sign-up progress not found", nil)

	ErrInvalidInput      = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidPermission = NewDomainError(ErrorTypeValidation, "invalid permission", nil)
	ErrInvalidCode       = NewDomainError(ErrorTypeValidation, "verification code is incorrect", nil)

	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, "invalid email/phone or password", nil)
	ErrInvalidToken       = NewDomainError(ErrorTypeUnauthorized, "invalid session token", nil)
	ErrTokenExpired       = NewDomainError(ErrorTypeUnauthorized, "session expired", nil)
	ErrTokenRevoked       = NewDomainError(ErrorTypeUnauthorized, "session has been signed out", nil)

	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)
	ErrBuiltInRole             = NewDomainError(ErrorTypeForbidden, "built-in roles cannot be modified", nil)
	ErrTooManyAttempts         = NewDomainError(ErrorTypeForbidden, "too many verification attempts", nil)

	ErrDuplicateEmail  = NewDomainError(ErrorTypeConflict, "email already registered", nil)
	ErrDuplicatePhone  = NewDomainError(ErrorTypeConflict, "phone already registered", nil)
	ErrRoleExists      = NewDomainError(ErrorTypeConflict, "role already exists", nil)
	ErrLoginInProgress = NewDomainError(ErrorTypeConflict, "a sign-in is already in progress", nil)
	ErrStepOutOfOrder  = NewDomainError(ErrorTypeConflict, "previous sign-up steps are incomplete", nil)

	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	ErrMailDelivery = NewDomainError(ErrorTypeExternal, "verification e-mail could not be sent", nil)

	ErrTooManyLogins = NewDomainError(ErrorTypeRateLimited, "too many failed sign-in attempts, try again later", nil)
)

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// IsExternalError checks if an error is an external service error
func IsExternalError(err error) bool { return hasType(err, ErrorTypeExternal) }

// IsRateLimitedError checks if an error is a rate limit error
func IsRateLimitedError(err error) bool { return hasType(err, ErrorTypeRateLimited) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// Wrap attaches cause to a sentinel, keeping its type and message.
func Wrap(sentinel *DomainError, cause error) error {
	return &DomainError{Type: sentinel.Type, Message: sentinel.Message, Err: cause, Details: sentinel.Details}
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// GetErrorMessage returns the client-facing message of a domain error with
// its first letter capitalised. Other errors get a generic message.
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Message == "" {
		return "An unexpected error occurred"
	}
	msg := domainErr.Message
	return strings.ToUpper(msg[:1]) + msg[1:]
}

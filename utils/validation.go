package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is the singleton validator instance
	validate *validator.Validate

	// emailRegex is deliberately loose: something@something.something
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// phoneRegex accepts 10 to 15 digits
	phoneRegex = regexp.MustCompile(`^[0-9]{10,15}$`)

	// roleNameRegex is a lower-case slug such as "front-desk"
	roleNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{1,39}$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("email_or_phone", func(fl validator.FieldLevel) bool {
		return IsEmailOrPhone(fl.Field().String())
	})
	_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	})
	_ = validate.RegisterValidation("role_name", func(fl validator.FieldLevel) bool {
		return roleNameRegex.MatchString(fl.Field().String())
	})
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := err.Field()
		tag := err.Tag()

		switch tag {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "email":
			fields[field] = fmt.Sprintf("%s must be a valid email", field)
		case "email_or_phone":
			fields[field] = "Please enter a valid email or phone number"
		case "phone":
			fields[field] = fmt.Sprintf("%s must be 10 to 15 digits", field)
		case "role_name":
			fields[field] = fmt.Sprintf("%s must be lower-case letters, digits and hyphens", field)
		case "min":
			if err.Kind() == reflect.Slice || err.Kind() == reflect.Int {
				fields[field] = fmt.Sprintf("%s must be at least %s", field, err.Param())
				break
			}
			fields[field] = fmt.Sprintf("%s must be at least %s characters", field, err.Param())
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s characters", field, err.Param())
		case "len":
			fields[field] = fmt.Sprintf("%s must be exactly %s characters", field, err.Param())
		case "numeric":
			fields[field] = fmt.Sprintf("%s must contain only digits", field)
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "eqfield":
			fields[field] = fmt.Sprintf("%s must match %s", field, err.Param())
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", field, tag)
		}
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

// NewFieldError builds a ValidationError for a single field.
func NewFieldError(field, message string) *ValidationError {
	return &ValidationError{
		Message: "Validation failed",
		Fields:  map[string]string{field: message},
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// IsPhone reports whether s is a 10-15 digit phone number.
func IsPhone(s string) bool {
	return phoneRegex.MatchString(s)
}

// IsEmailOrPhone is the sign-in identifier check.
func IsEmailOrPhone(s string) bool {
	return IsEmail(s) || IsPhone(s)
}

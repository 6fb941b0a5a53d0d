package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Pipeline error taxonomy. ErrNotJSON and ErrJSONStructure are decode-stage
// failures; the other three collapse into a single archive outcome but keep
// distinct diagnostics in logs.
var (
	ErrNotJSON           = errors.New("content is not json")
	ErrJSONStructure     = errors.New("json structure error")
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateIdentity = errors.New("duplicate transaction identity")
	ErrPersistence       = errors.New("persistence error")
	ErrInvalidInput      = errors.New("invalid input")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

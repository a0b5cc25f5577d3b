// Package vault holds the primitives shared by the vault's record services.
package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that no record exists for the caller.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput reports a request that failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict reports a request that contradicts the stored record.
	ErrConflict = errors.New("conflicting state")
	// ErrForbidden reports an attempt to touch another owner's object.
	ErrForbidden = errors.New("object belongs to another owner")
)

// ServiceError carries an operation.reason code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

// NewServiceError builds a ServiceError coded "<operation>.<reason>".
func NewServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Invalid wraps a validation message so it matches ErrInvalidInput.
func Invalid(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, message)
}

// ErrorCode returns the service code carried by err, or "".
func ErrorCode(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}

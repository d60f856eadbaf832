package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrSchema indicates that a value does not match the wire format we expect.
var ErrSchema = errors.New("schema error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ValidationError describes malformed caller or model input.
// Index is the position of the offending item in a batch, or -1.
type ValidationError struct {
	Field   string
	Index   int
	Message string
}

// NewValidationError creates a ValidationError that is not tied to a batch position.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("transaction %d: %s", e.Index, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports a missing local resource, such as a receipt image.
type NotFoundError struct {
	Resource string
	Path     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Path)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SchemaError reports a value that cannot be represented in the ledger wire model.
type SchemaError struct {
	Field   string
	Message string
	Err     error
}

func (e *SchemaError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

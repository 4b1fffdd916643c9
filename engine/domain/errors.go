package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidVehicle    = errors.New("invalid vehicle")
	ErrYearFormat        = errors.New("year must be four digits or ?")
	ErrFieldTooLong      = errors.New("field too long")
	ErrInvalidColor      = errors.New("invalid color hex")
	ErrCarNotFound       = errors.New("car not found")
	ErrUnknownStyle      = errors.New("unknown style")
	ErrAlreadyGenerating = errors.New("style already generating")
	ErrStyleNotReady     = errors.New("style image not ready")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrUnknownProduct    = errors.New("unknown product")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

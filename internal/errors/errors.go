// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInputValidation       = errors.New("input validation failed")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrLotNotFound           = errors.New("lot not found")
	ErrTargetNotFound        = errors.New("price target not found")
	ErrConfigInvalid         = errors.New("invalid configuration")
	ErrDatabaseError         = errors.New("database error")
	ErrConcurrentUpdate      = errors.New("lot changed by another writer")
)

// ValidationError represents a caller-supplied invalid argument.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Is lets errors.Is match ValidationError against ErrInputValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// InsufficientInventoryError is returned when a sell exceeds the open lots of a ticker.
type InsufficientInventoryError struct {
	Ticker    string
	Requested int64
	Available int64
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s: requested %d, available %d", e.Ticker, e.Requested, e.Available)
}

// Is lets errors.Is match InsufficientInventoryError against ErrInsufficientInventory.
func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// NewInsufficientInventoryError creates a new InsufficientInventoryError.
func NewInsufficientInventoryError(ticker string, requested, available int64) *InsufficientInventoryError {
	return &InsufficientInventoryError{
		Ticker:    ticker,
		Requested: requested,
		Available: available,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

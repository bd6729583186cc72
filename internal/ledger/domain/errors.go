package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below unwrap to one of these so callers can
// use errors.Is for the kind and errors.As for the detail.
var (
	// ErrValidation is returned when caller input is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a write path requires an entity that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when a tenant acts on a register it does not own.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidStateTransition is returned when a docket is not in the required source state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrConflict is returned when a concurrent writer changed the state an operation depended on.
	ErrConflict = errors.New("conflict")
)

// ValidationError identifies the offending parameter.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError names the missing entity and the key it was looked up by.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AuthorizationError is returned by DeleteRegister on a tenant mismatch.
type AuthorizationError struct {
	RegisterID string
	TenantID   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("tenant %q is not authorized to modify register %s", e.TenantID, e.RegisterID)
}

func (e *AuthorizationError) Unwrap() error {
	return ErrUnauthorized
}

// StateTransitionError describes a rejected state machine move.
type StateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot transition %s from %s to %s", e.Entity, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

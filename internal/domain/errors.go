// Package domain holds the error taxonomy shared by every workflow component.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates the requested state change is not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrPermissionDenied indicates the actor lacks the permission key required by the operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConcurrentModification indicates the retry bound was exhausted on version conflicts.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrPersistence indicates storage was unavailable; nothing was written.
	ErrPersistence = errors.New("persistence failure")
	// ErrUnresolvedReference indicates a scan referenced a barcode with no asset record.
	ErrUnresolvedReference = errors.New("unresolved reference")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

// Validation builds a ValidationError.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError describes a refused state change. Cause, when set, is the specific
// rule that refused it.
type TransitionError struct {
	Entity string
	From   string
	To     string
	Cause  error
}

// InvalidTransition builds a TransitionError.
func InvalidTransition(entity, from, to string, cause error) *TransitionError {
	return &TransitionError{Entity: entity, From: from, To: to, Cause: cause}
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is matches ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Unwrap exposes the refusing rule.
func (e *TransitionError) Unwrap() error {
	return e.Cause
}

// PermissionError names the missing permission key.
type PermissionError struct {
	ActorID    string
	Permission string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("actor %q lacks permission %q", e.ActorID, e.Permission)
}

// Is matches ErrPermissionDenied.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

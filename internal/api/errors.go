package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/domain/inspection"
)

// Stable error codes returned to callers.
const (
	CodeDependencyNotSatisfied = "DEPENDENCY_NOT_SATISFIED"
	CodeCyclicDependency       = "CYCLIC_DEPENDENCY"
	CodeChecklistNotClear      = "CHECKLIST_NOT_CLEAR"
	CodeValidation             = "VALIDATION"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodePermissionDenied       = "PERMISSION_DENIED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeUnresolvedReference    = "UNRESOLVED_REFERENCE"
	CodePersistence            = "PERSISTENCE"
	CodeInvalidParams          = "INVALID_PARAMS"
	CodeUnknownMethod          = "UNKNOWN_METHOD"
	CodeCanceled               = "CANCELED"
)

// ErrUnknownMethod is returned for a method name with no handler.
var ErrUnknownMethod = errors.New("unknown method")

// APIError is the caller-facing form of a rejected operation.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
	err          error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the domain error so errors.Is keeps working past the API boundary.
func (e *APIError) Unwrap() error {
	return e.err
}

// MapError converts an engine error into an APIError carrying the violated rule.
// It returns nil for a nil error.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	out := &APIError{Message: err.Error(), err: err}

	var (
		notSatisfied *dependency.NotSatisfiedError
		cycle        *dependency.CycleError
		checklist    *inspection.ChecklistError
		validation   *domain.ValidationError
		transition   *domain.TransitionError
		permission   *domain.PermissionError
	)
	switch {
	case errors.Is(err, dependency.ErrDependencyNotSatisfied):
		out.Code = CodeDependencyNotSatisfied
		out.RecoveryHint = "Finish or start the named predecessors first"
		if errors.As(err, &notSatisfied) {
			out.Details = map[string]any{"instance_id": notSatisfied.InstanceID, "blockers": notSatisfied.Blockers}
		}
	case errors.Is(err, dependency.ErrCyclicDependency):
		out.Code = CodeCyclicDependency
		out.RecoveryHint = "Remove an edge on the reported path or reverse the new edge"
		if errors.As(err, &cycle) {
			out.Details = map[string]any{"path": cycle.Path}
		}
	case errors.Is(err, inspection.ErrChecklistNotClear):
		out.Code = CodeChecklistNotClear
		out.RecoveryHint = "Resolve the listed items, or reject and resubmit"
		if errors.As(err, &checklist) {
			out.Details = map[string]any{"failing": checklist.Failing, "unresolved": checklist.Unresolved}
		}
	case errors.Is(err, domain.ErrPermissionDenied):
		out.Code = CodePermissionDenied
		out.RecoveryHint = "Ask for the named permission key"
		if errors.As(err, &permission) {
			out.Details = map[string]any{"permission": permission.Permission}
		}
	case errors.Is(err, domain.ErrValidation):
		out.Code = CodeValidation
		out.RecoveryHint = "Fix the named field and resend"
		if errors.As(err, &validation) && validation.Field != "" {
			out.Details = map[string]any{"field": validation.Field}
		}
	case errors.Is(err, domain.ErrNotFound):
		out.Code = CodeNotFound
		out.RecoveryHint = "Check the id spelling"
	case errors.Is(err, domain.ErrInvalidTransition):
		out.Code = CodeInvalidTransition
		out.RecoveryHint = "Read the current state and pick a valid transition"
		if errors.As(err, &transition) {
			out.Details = map[string]any{"entity": transition.Entity, "from": transition.From, "to": transition.To}
		}
	case errors.Is(err, domain.ErrConcurrentModification):
		out.Code = CodeConcurrentModification
		out.RecoveryHint = "Re-read the entity and retry"
	case errors.Is(err, domain.ErrUnresolvedReference):
		out.Code = CodeUnresolvedReference
		out.RecoveryHint = "Register the panel, then retry"
	case errors.Is(err, domain.ErrPersistence):
		out.Code = CodePersistence
		out.Message = "storage unavailable, nothing was written"
		out.RecoveryHint = "Retry later"
	case errors.Is(err, ErrUnknownMethod):
		out.Code = CodeUnknownMethod
		out.RecoveryHint = "List the available methods"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Code = CodeCanceled
	default:
		return nil
	}
	return out
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}

func invalidParams(method string, err error) *APIError {
	return &APIError{
		Code:         CodeInvalidParams,
		Message:      fmt.Sprintf("%s: %v", method, err),
		RecoveryHint: "Check the parameter names and types",
		err:          err,
	}
}

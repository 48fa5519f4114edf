package service

import (
	"errors"
	"fmt"

	"github.com/draftline/draftline/internal/models"
)

// Sentinel errors surfaced to callers. State-machine and permission failures
// are never absorbed; handlers map these onto HTTP status codes.
var (
	// ErrNotFound covers both missing records and records outside the
	// caller's org scope, which are indistinguishable on purpose.
	ErrNotFound = errors.New("record not found")

	// ErrForbidden means the caller lacks the capability or ownership the
	// action requires.
	ErrForbidden = errors.New("forbidden")

	// ErrConflictingApproval means a pending approval request already exists
	// for the queue item.
	ErrConflictingApproval = errors.New("a pending approval request already exists")

	// ErrUpstreamUnavailable marks a generation provider as unreachable or
	// unhealthy. Retriable; critical only for the content phase.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)

// InvalidTransitionError reports an illegal status change. It always carries
// both sides of the rejected pair; callers are never silently coerced onto a
// different status.
type InvalidTransitionError struct {
	From models.Status
	To   models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

// RetryStateError reports a retry attempted from any status other than failed.
type RetryStateError struct {
	Status models.Status
}

func (e *RetryStateError) Error() string {
	return fmt.Sprintf("cannot retry item in status %q, only failed items may be retried", e.Status)
}

// ValidationError reports malformed caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsInvalidTransition reports whether err is a transition rejection.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

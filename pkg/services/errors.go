// Package services implements the portal's operations on applications,
// instances, executions and credentials on top of persistence and the
// orchestrator.
package services

import (
	"errors"
	"fmt"

	"github.com/mso4sc/experiments/pkg/orchestrator"
)

var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidInputs  = errors.New("invalid deployment inputs")
	ErrEmptyOwnerID   = errors.New("owner ID cannot be empty")

	// Conflicts (409 Conflict).
	ErrInstanceBusy = errors.New("instance is busy")

	// ErrExecutionNotCreated means the orchestrator accepted the request but
	// returned no execution.
	ErrExecutionNotCreated = errors.New("orchestrator returned no execution")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should be reported as HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidInputs) ||
		errors.Is(err, ErrEmptyOwnerID)
}

// IsConflictError checks if an error should be reported as HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInstanceBusy)
}

// IsRemoteError checks if the orchestrator rejected the call.
func IsRemoteError(err error) bool {
	var remote *orchestrator.RemoteError

	return errors.As(err, &remote)
}

func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

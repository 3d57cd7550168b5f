package orchestrator

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the orchestrator.
const (
	CodeEnvironmentCreationPending    = "deployment_environment_creation_pending_error"
	CodeEnvironmentCreationInProgress = "deployment_environment_creation_in_progress_error"
	CodeNotFound                      = "not_found_error"
	CodeConflict                      = "conflict_error"
)

// RemoteError is a non-2xx answer from the orchestrator.
type RemoteError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("orchestrator %s failed (%d %s): %s", e.Op, e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("orchestrator %s failed (%d): %s", e.Op, e.StatusCode, e.Message)
}

// IsTransient reports whether err means the deployment environment is still
// being prepared, in which case the call may be repeated.
func IsTransient(err error) bool {
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return false
	}

	return remote.Code == CodeEnvironmentCreationPending || remote.Code == CodeEnvironmentCreationInProgress
}

func IsNotFound(err error) bool {
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return false
	}

	return remote.Code == CodeNotFound || remote.StatusCode == http.StatusNotFound
}

func IsAlreadyExists(err error) bool {
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return false
	}

	return remote.Code == CodeConflict || remote.StatusCode == http.StatusConflict
}

// Package models defines the records managed by the experiments portal.
package models

// InstanceStatus is the lifecycle state of an application instance. The
// non-prepared values mirror the remote execution states.
type InstanceStatus string

const (
	StatusPrepared        InstanceStatus = "prepared"
	StatusPending         InstanceStatus = "pending"
	StatusStarted         InstanceStatus = "started"
	StatusCancelling      InstanceStatus = "cancelling"
	StatusForceCancelling InstanceStatus = "force_cancelling"
	StatusCancelled       InstanceStatus = "cancelled"
	StatusFailed          InstanceStatus = "failed"
	StatusTerminated      InstanceStatus = "terminated"
)

// EndStates are the remote states an execution never leaves.
var EndStates = []InstanceStatus{StatusTerminated, StatusFailed, StatusCancelled}

// ActiveStates are the transitional states of a running execution.
var ActiveStates = []InstanceStatus{StatusPending, StatusStarted, StatusCancelling, StatusForceCancelling}

func (s InstanceStatus) Valid() bool {
	switch s {
	case StatusPrepared, StatusPending, StatusStarted, StatusCancelling,
		StatusForceCancelling, StatusCancelled, StatusFailed, StatusTerminated:
		return true
	}

	return false
}

// IsEnd reports whether s is one of EndStates.
func (s InstanceStatus) IsEnd() bool {
	return s == StatusTerminated || s == StatusFailed || s == StatusCancelled
}

// IsExecutionFinished reports whether nothing is executing for the instance.
// prepared counts as finished: it is both the initial and the reset state.
func IsExecutionFinished(s InstanceStatus) bool {
	return s.IsEnd() || s == StatusPrepared
}

// IsExecutionWrong reports whether the execution finished without success.
func IsExecutionWrong(s InstanceStatus) bool {
	return IsExecutionFinished(s) && s != StatusTerminated && s != StatusPrepared
}

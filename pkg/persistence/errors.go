package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no record exists for the given identifier.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates the record exists but belongs to someone else.
	ErrAccessDenied = errors.New("access denied")

	// ErrAlreadyExists indicates a record with the same unique name exists.
	ErrAlreadyExists = errors.New("already exists")
)

const (
	EntityApplication = "application"
	EntityInstance    = "instance"
	EntityExecution   = "execution"
	EntityTunnel      = "tunnel"
	EntityHPC         = "hpc"
	EntityCatalogue   = "datacatalogue_key"
)

// EntityError wraps a persistence failure with the operation and record.
type EntityError struct {
	Op     string // e.g. "GetByID", "Save", "Delete"
	Entity string
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: entity, ID: id, Err: err}
}

func NotFound(op, entity, id string) error {
	return NewEntityError(op, entity, id, ErrNotFound)
}

// CheckOwner returns an access-denied error when owner does not own the record.
func CheckOwner(op, entity, id, owner, recordOwner string) error {
	if owner != recordOwner {
		return NewEntityError(op, entity, id, ErrAccessDenied)
	}

	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

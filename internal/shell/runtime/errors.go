package runtime

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrContainerNotFound      = errors.New("container not found")
	ErrContainerAlreadyExists = errors.New("container already exists")
	ErrPortAlreadyAllocated   = errors.New("port is already allocated")
	ErrImageNotFound          = errors.New("image not found")
	ErrConnectionFailed       = errors.New("runtime connection failed")
	ErrTimeout                = errors.New("runtime operation timed out")
	ErrCommandFailed          = errors.New("runtime command failed")
)

// RuntimeError wraps runtime failures with the operation context and any
// output the runtime produced before failing.
type RuntimeError struct {
	Op      string
	Entity  string
	ID      string
	Message string
	Output  Output
	Err     error
}

func (e *RuntimeError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(op, entity, id, message string, err error) *RuntimeError {
	return &RuntimeError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}

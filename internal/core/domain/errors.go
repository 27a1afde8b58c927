// Package domain contains the core orchestration entities and validation
// logic. This is part of the Functional Core - all functions are pure with
// no I/O.
package domain

import "errors"

// =============================================================================
// Error Taxonomy
// =============================================================================

var (
	// ErrValidation is returned for missing or malformed required input.
	// Always detected before any side effect.
	ErrValidation = errors.New("validation failed")

	// ErrSandboxViolation is returned when a path escapes the tenant root.
	ErrSandboxViolation = errors.New("path outside tenant sandbox")

	// ErrPortConflict is returned when an explicitly requested host port is
	// already reserved for the tenant and protocol.
	ErrPortConflict = errors.New("host port already reserved")

	// ErrPortRangeExhausted is returned when auto-allocation finds no free
	// port in the configured range.
	ErrPortRangeExhausted = errors.New("port range exhausted")

	// ErrTemplateNotAllowed is returned when a template exists but its
	// allowed flag is false at instantiation time.
	ErrTemplateNotAllowed = errors.New("template is not allowed")

	// ErrUnsupportedTemplateKind is returned for template kinds the stack
	// engine cannot render.
	ErrUnsupportedTemplateKind = errors.New("unsupported template kind")

	// ErrRuntimeCall is returned when the container runtime reported a
	// non-zero result.
	ErrRuntimeCall = errors.New("runtime call failed")

	// ErrRuntimeTimeout is returned when a runtime call exceeded the
	// configured operation timeout.
	ErrRuntimeTimeout = errors.New("runtime call timed out")

	// ErrNotFound is returned when an entity does not exist or does not
	// belong to the calling tenant.
	ErrNotFound = errors.New("entity not found")

	// ErrWrite is returned when a filesystem write fails.
	ErrWrite = errors.New("filesystem write failed")
)

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind returns the stable wire identifier for a taxonomy error, or
// "internal_error" for anything outside the taxonomy.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrSandboxViolation):
		return "sandbox_violation"
	case errors.Is(err, ErrPortConflict):
		return "port_conflict"
	case errors.Is(err, ErrPortRangeExhausted):
		return "port_range_exhausted"
	case errors.Is(err, ErrTemplateNotAllowed):
		return "template_not_allowed"
	case errors.Is(err, ErrUnsupportedTemplateKind):
		return "unsupported_template_kind"
	case errors.Is(err, ErrRuntimeTimeout):
		return "runtime_timeout"
	case errors.Is(err, ErrRuntimeCall):
		return "runtime_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrWrite):
		return "write_error"
	default:
		return "internal_error"
	}
}

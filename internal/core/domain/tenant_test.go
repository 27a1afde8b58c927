package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Username Validation Tests
// =============================================================================

func TestValidateUsername_Valid(t *testing.T) {
	for _, name := range []string{"alice", "bob-2", "x", "user_name", "0leading"} {
		assert.NoError(t, ValidateUsername(name), name)
	}
}

func TestValidateUsername_Invalid(t *testing.T) {
	cases := []string{
		"",
		"Alice",     // uppercase
		"-leading",  // must start alphanumeric
		"_leading",  // must start alphanumeric
		"has space",
		"dot.name",
		"../escape",
		"a/b",
	}
	for _, name := range cases {
		assert.ErrorIs(t, ValidateUsername(name), ErrValidation, name)
	}
}

func TestValidateUsername_Length(t *testing.T) {
	long := make([]byte, 63)
	for i := range long {
		long[i] = 'a'
	}
	assert.NoError(t, ValidateUsername(string(long)))
	assert.ErrorIs(t, ValidateUsername(string(long)+"a"), ErrValidation)
}

// =============================================================================
// Error Kind Tests
// =============================================================================

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{ErrValidation, "validation_error"},
		{ErrSandboxViolation, "sandbox_violation"},
		{ErrPortConflict, "port_conflict"},
		{ErrPortRangeExhausted, "port_range_exhausted"},
		{ErrTemplateNotAllowed, "template_not_allowed"},
		{ErrUnsupportedTemplateKind, "unsupported_template_kind"},
		{ErrRuntimeTimeout, "runtime_timeout"},
		{ErrRuntimeCall, "runtime_error"},
		{ErrNotFound, "not_found"},
		{ErrWrite, "write_error"},
		{errors.New("anything else"), "internal_error"},
		{nil, "internal_error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.kind, ErrorKind(tt.err))
	}
}

func TestErrorKind_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("create container: %w", ErrPortConflict)
	assert.Equal(t, "port_conflict", ErrorKind(wrapped))
}

// =============================================================================
// Audit Event Tests
// =============================================================================

func TestNewAuditEvent(t *testing.T) {
	ev := NewAuditEvent("tenant-1", AuditContainerRemoveOrphan, "ctr-1", "runtime remove failed")
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "tenant-1", ev.TenantID)
	assert.Equal(t, AuditContainerRemoveOrphan, ev.Action)
	assert.Equal(t, "ctr-1", ev.EntityID)
	assert.Equal(t, "runtime remove failed", ev.Detail)
	assert.False(t, ev.CreatedAt.IsZero())
}

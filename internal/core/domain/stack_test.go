package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// NewStack Tests
// =============================================================================

func TestNewStack_Valid(t *testing.T) {
	s, err := NewStack("tenant-1", "tpl-1", "My Blog", "my-blog")
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "tenant-1", s.TenantID)
	assert.Equal(t, "tpl-1", s.TemplateID)
	assert.Equal(t, "My Blog", s.Name)
	assert.Equal(t, "my-blog", s.Slug)
	assert.Equal(t, StackCreated, s.Status)
	assert.Equal(t, s.CreatedAt, s.UpdatedAt)
}

func TestNewStack_MissingFields(t *testing.T) {
	_, err := NewStack("", "tpl-1", "My Blog", "my-blog")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewStack("tenant-1", "", "My Blog", "my-blog")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewStack("tenant-1", "tpl-1", " ", "my-blog")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewStack("tenant-1", "tpl-1", "My Blog", "My Blog")
	assert.ErrorIs(t, err, ErrValidation)
}

// =============================================================================
// Status Transition Tests
// =============================================================================

func TestValidateStackTransition(t *testing.T) {
	tests := []struct {
		from, to StackStatus
		valid    bool
	}{
		{StackCreated, StackUp, true},
		{StackCreated, StackDown, true},
		{StackUp, StackDown, true},
		{StackUp, StackUp, true}, // re-up reconciles drift
		{StackDown, StackUp, true},
		{StackDown, StackDown, true},
		{StackUp, StackCreated, false},
		{StackDown, StackCreated, false},
		{StackStatus("bogus"), StackUp, false},
	}

	for _, tt := range tests {
		err := ValidateStackTransition(tt.from, tt.to)
		if tt.valid {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tt.from, tt.to)
		}
	}
}

func TestStackTransition_TouchesUpdatedAt(t *testing.T) {
	s, err := NewStack("tenant-1", "tpl-1", "My Blog", "my-blog")
	require.NoError(t, err)

	created := s.UpdatedAt
	require.NoError(t, s.Transition(StackUp))
	assert.Equal(t, StackUp, s.Status)
	assert.True(t, !s.UpdatedAt.Before(created))

	assert.ErrorIs(t, s.Transition(StackCreated), ErrInvalidTransition)
	assert.Equal(t, StackUp, s.Status)
}

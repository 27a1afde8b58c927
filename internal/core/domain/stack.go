package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Stack Status
// =============================================================================

type StackStatus string

const (
	StackCreated StackStatus = "created"
	StackUp      StackStatus = "up"
	StackDown    StackStatus = "down"
)

// validStackTransitions defines the allowed state transitions. Deletion is
// not a status: the record is removed together with the stack directory.
var validStackTransitions = map[StackStatus][]StackStatus{
	StackCreated: {StackUp, StackDown},
	StackUp:      {StackUp, StackDown},
	StackDown:    {StackUp, StackDown},
}

// ValidateStackTransition checks if a status transition is valid.
func ValidateStackTransition(from, to StackStatus) error {
	allowed, exists := validStackTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// =============================================================================
// Stack
// =============================================================================

// Stack is a materialized, tenant-owned instance of a Template. Slug is
// unique per tenant and names the stack's on-disk directory. ComposePath
// points at the rendered definition file.
type Stack struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	TemplateID  string            `json:"template_id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	ComposePath string            `json:"compose_path"`
	Variables   map[string]string `json:"variables,omitempty"`
	Status      StackStatus       `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewStack creates a stack record in the created state.
func NewStack(tenantID, templateID, name, slug string) (*Stack, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if templateID == "" {
		return nil, fmt.Errorf("%w: template id is required", ErrValidation)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: stack name is required", ErrValidation)
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Stack{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		TemplateID: templateID,
		Name:       name,
		Slug:       slug,
		Status:     StackCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Transition attempts to move the stack to a new status.
func (s *Stack) Transition(to StackStatus) error {
	if err := ValidateStackTransition(s.Status, to); err != nil {
		return err
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Template Kind
// =============================================================================

type TemplateKind string

const (
	// KindCompose is the only kind the stack engine renders.
	KindCompose TemplateKind = "compose"
)

// IsValid checks if the template kind is one the engine can render.
func (k TemplateKind) IsValid() bool {
	return k == KindCompose
}

// =============================================================================
// Template
// =============================================================================

// Template is an administrator-curated, allow-listed stack blueprint. The
// definition text carries ${VAR} placeholders resolved at instantiation.
// Only templates with Allowed=true may be instantiated, and the stack
// engine re-checks the flag at instantiation time, not only at listing.
type Template struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Slug       string            `json:"slug"`
	Kind       TemplateKind      `json:"kind"`
	Definition string            `json:"definition"`
	Defaults   map[string]string `json:"defaults,omitempty"`
	Allowed    bool              `json:"allowed"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewTemplate creates a template with a generated ID and slug.
// New templates start disallowed; an administrator flips the flag.
func NewTemplate(name string, kind TemplateKind, definition string) (*Template, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedTemplateKind, kind)
	}
	if strings.TrimSpace(definition) == "" {
		return nil, fmt.Errorf("%w: template definition is required", ErrValidation)
	}
	now := time.Now().UTC()
	return &Template{
		ID:         uuid.New().String(),
		Name:       name,
		Slug:       Slugify(name),
		Kind:       kind,
		Definition: definition,
		Allowed:    false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// =============================================================================
// Slug Functions (Pure)
// =============================================================================

// Slugify generates a URL- and filesystem-safe slug from a name.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	var b strings.Builder
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune('-')
		}
	}
	slug = b.String()
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// ValidateSlug validates a tenant-supplied stack slug. The slug becomes a
// directory component, so it gets the same character rules Slugify emits.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug is required", ErrValidation)
	}
	if len(slug) > 63 {
		return fmt.Errorf("%w: slug must be at most 63 characters", ErrValidation)
	}
	if Slugify(slug) != slug {
		return fmt.Errorf("%w: slug %q may only contain lowercase alphanumerics and single hyphens", ErrValidation, slug)
	}
	return nil
}

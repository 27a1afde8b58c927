package store

import (
	"context"

	"github.com/canopy-host/canopy/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for orchestration entities. All
// container and stack lookups are tenant-scoped: an ID owned by a different
// tenant behaves as absent.
type Store interface {
	// Tenant resolution (upsert from the surrounding application's identity)
	ResolveTenant(ctx context.Context, id, username, homeDir string) (*domain.Tenant, error)
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)

	// Container operations. CreateContainer persists the container together
	// with its port bindings and mounts; DeleteContainer removes all three.
	CreateContainer(ctx context.Context, c *domain.Container) error
	GetContainer(ctx context.Context, tenantID, id string) (*domain.Container, error)
	GetContainerByName(ctx context.Context, tenantID, name string) (*domain.Container, error)
	UpdateContainer(ctx context.Context, c *domain.Container) error
	DeleteContainer(ctx context.Context, tenantID, id string) error
	ListContainers(ctx context.Context, tenantID string, opts ListOptions) ([]domain.Container, error)

	// Port allocation table
	PortInUse(ctx context.Context, tenantID string, hostPort int, proto domain.Protocol) (bool, error)
	ListBoundPorts(ctx context.Context, tenantID string, proto domain.Protocol) ([]int, error)

	// Template operations
	CreateTemplate(ctx context.Context, t *domain.Template) error
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	GetTemplateBySlug(ctx context.Context, slug string) (*domain.Template, error)
	UpdateTemplate(ctx context.Context, t *domain.Template) error
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context, opts ListOptions) ([]domain.Template, error)
	ListAllowedTemplates(ctx context.Context) ([]domain.Template, error)
	CountTemplates(ctx context.Context) (int, error)

	// Stack operations
	CreateStack(ctx context.Context, s *domain.Stack) error
	GetStack(ctx context.Context, tenantID, id string) (*domain.Stack, error)
	UpdateStack(ctx context.Context, s *domain.Stack) error
	DeleteStack(ctx context.Context, tenantID, id string) error
	ListStacks(ctx context.Context, tenantID string, opts ListOptions) ([]domain.Stack, error)
	SlugInUse(ctx context.Context, tenantID, slug string) (bool, error)

	// Audit events (operator-facing reconciliation trail)
	CreateAuditEvent(ctx context.Context, ev *domain.AuditEvent) error
	ListAuditEvents(ctx context.Context, tenantID string, limit int) ([]domain.AuditEvent, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Audit Events
// =============================================================================

// AuditAction identifies the best-effort trade-off or lifecycle decision an
// audit event records.
type AuditAction string

const (
	// AuditContainerRemoveOrphan records a container whose runtime removal
	// failed while its DB record and bindings were still cleared.
	AuditContainerRemoveOrphan AuditAction = "container_remove_orphan"

	// AuditStackDeleteOrphan records a stack whose compose down failed
	// while its directory and record were still removed.
	AuditStackDeleteOrphan AuditAction = "stack_delete_orphan"

	// AuditRenderUnresolved records a stack rendered with placeholders left
	// unresolved.
	AuditRenderUnresolved AuditAction = "render_unresolved_placeholders"
)

// AuditEvent is an operator-facing record of a decision that may have left
// runtime state diverging from recorded state. Events are persisted so an
// operator can reconcile orphaned runtime objects later.
type AuditEvent struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenant_id"`
	Action    AuditAction `json:"action"`
	EntityID  string      `json:"entity_id"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewAuditEvent creates an audit event with a generated ID.
func NewAuditEvent(tenantID string, action AuditAction, entityID, detail string) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Action:    action,
		EntityID:  entityID,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}

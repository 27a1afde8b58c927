// Package engine orchestrates container and stack lifecycles on behalf of
// tenants. It is the imperative shell over the pure core packages: it holds
// the store, the runtime gateway, and the per-tenant locks that serialize
// allocation decisions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/canopy-host/canopy/internal/core/domain"
	"github.com/canopy-host/canopy/internal/shell/runtime"
	"github.com/canopy-host/canopy/internal/shell/store"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the engine's resource limits and filesystem roots.
type Config struct {
	PortRangeStart int
	PortRangeEnd   int
	HomesRoot      string // root under which tenant home dirs live
	StacksRoot     string // root under which rendered stacks are written
	ComposeFile    string // rendered definition file name
	OpTimeout      time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		PortRangeStart: 20000,
		PortRangeEnd:   29999,
		HomesRoot:      "/var/lib/canopy/homes",
		StacksRoot:     "/var/lib/canopy/stacks",
		ComposeFile:    "docker-compose.yml",
		OpTimeout:      2 * time.Minute,
	}
}

// =============================================================================
// Engine
// =============================================================================

// Engine drives the container and stack lifecycle managers.
type Engine struct {
	store  store.Store
	rt     runtime.Gateway
	cfg    Config
	logger *slog.Logger
	locks  *tenantLocks
}

// New creates a new engine.
func New(s store.Store, rt runtime.Gateway, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ComposeFile == "" {
		cfg.ComposeFile = "docker-compose.yml"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 2 * time.Minute
	}
	return &Engine{
		store:  s,
		rt:     rt,
		cfg:    cfg,
		logger: logger,
		locks:  newTenantLocks(),
	}
}

// opContext bounds a runtime call with the configured operation timeout.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.OpTimeout)
}

// =============================================================================
// Operation Errors
// =============================================================================

// OpError wraps a lifecycle failure with the operation context and any
// output the runtime produced, for operator diagnosis.
type OpError struct {
	Op       string
	TenantID string
	Entity   string
	ID       string
	Message  string
	Output   runtime.Output
	Err      error
}

func (e *OpError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// CapturedOutput extracts runtime output attached to an error chain, if any.
func CapturedOutput(err error) (runtime.Output, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		if len(opErr.Output.Stdout) > 0 || len(opErr.Output.Stderr) > 0 || opErr.Output.ExitCode != 0 {
			return opErr.Output, true
		}
	}
	var rtErr *runtime.RuntimeError
	if errors.As(err, &rtErr) {
		if len(rtErr.Output.Stdout) > 0 || len(rtErr.Output.Stderr) > 0 || rtErr.Output.ExitCode != 0 {
			return rtErr.Output, true
		}
	}
	return runtime.Output{}, false
}

// =============================================================================
// Error Mapping
// =============================================================================

// mapRuntimeErr folds gateway failures into the domain taxonomy.
func mapRuntimeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, runtime.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrRuntimeTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrRuntimeCall, err)
}

// mapStoreErr folds persistence failures into the domain taxonomy.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, store.ErrDuplicatePort):
		return fmt.Errorf("%w: %v", domain.ErrPortConflict, err)
	case errors.Is(err, store.ErrDuplicateName), errors.Is(err, store.ErrDuplicateSlug):
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	default:
		return err
	}
}

// =============================================================================
// Audit
// =============================================================================

// audit persists an operator-facing audit event and mirrors it to the log.
// Audit persistence itself is best-effort; a failed insert is logged, never
// propagated.
func (e *Engine) audit(ctx context.Context, tenantID string, action domain.AuditAction, entityID, detail string) {
	ev := domain.NewAuditEvent(tenantID, action, entityID, detail)
	if err := e.store.CreateAuditEvent(ctx, ev); err != nil {
		e.logger.Error("failed to persist audit event",
			"audit", true, "action", string(action), "entity_id", entityID, "error", err)
		return
	}
	e.logger.Warn(detail,
		"audit", true, "action", string(action), "tenant_id", tenantID, "entity_id", entityID)
}

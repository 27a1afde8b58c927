package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/canopy-host/canopy/internal/core/compose"
	"github.com/canopy-host/canopy/internal/core/domain"
	"github.com/canopy-host/canopy/internal/core/render"
	"github.com/canopy-host/canopy/internal/core/sandbox"
	"github.com/canopy-host/canopy/internal/shell/runtime"
	"github.com/canopy-host/canopy/internal/shell/store"
)

// =============================================================================
// Stack Lifecycle Manager
// =============================================================================

// CreateStackParams carries the caller-supplied stack spec.
type CreateStackParams struct {
	TemplateID string
	Name       string
	Slug       string
	Variables  map[string]string
}

// CreateStack renders an allowed template into the tenant's stack directory
// and persists the record. The template's allowed flag is re-checked here,
// not only at listing time, so a revoked template cannot be instantiated
// through a stale reference.
func (e *Engine) CreateStack(ctx context.Context, tenant *domain.Tenant, p CreateStackParams) (*domain.Stack, error) {
	if p.TemplateID == "" {
		return nil, fmt.Errorf("%w: template id is required", domain.ErrValidation)
	}
	st, err := domain.NewStack(tenant.ID, p.TemplateID, p.Name, p.Slug)
	if err != nil {
		return nil, err
	}

	tpl, err := e.store.GetTemplate(ctx, p.TemplateID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !tpl.Allowed {
		return nil, fmt.Errorf("%w: template %s", domain.ErrTemplateNotAllowed, tpl.Slug)
	}
	if !tpl.Kind.IsValid() {
		return nil, fmt.Errorf("%w: kind %q", domain.ErrUnsupportedTemplateKind, tpl.Kind)
	}

	// Slug uniqueness is check-then-act; hold the tenant lock until the
	// record is inserted.
	unlock := e.locks.Lock(tenant.ID)
	defer unlock()

	inUse, err := e.store.SlugInUse(ctx, tenant.ID, st.Slug)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if inUse {
		return nil, fmt.Errorf("%w: slug %q already in use", domain.ErrValidation, st.Slug)
	}

	stackDir := sandbox.Normalize(filepath.Join(e.cfg.StacksRoot, tenant.Username, st.Slug))
	if !sandbox.IsWithin(stackDir, sandbox.Normalize(e.cfg.StacksRoot)) {
		return nil, fmt.Errorf("%w: stack dir %s escapes the stacks root", domain.ErrSandboxViolation, stackDir)
	}
	if err := os.MkdirAll(filepath.FromSlash(stackDir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", domain.ErrWrite, stackDir, err)
	}

	// Caller variables replace the defaults wholesale. Mixing partial
	// caller vars with defaults would make renders non-reproducible.
	vars := p.Variables
	if len(vars) == 0 {
		vars = tpl.Defaults
	}
	vars = render.WithStackPath(vars, stackDir)

	rendered := render.Render(tpl.Definition, vars)
	if leftover := render.UnresolvedPlaceholders(rendered); len(leftover) > 0 {
		e.audit(ctx, tenant.ID, domain.AuditRenderUnresolved, st.ID,
			fmt.Sprintf("stack %s rendered with unresolved placeholders: %s", st.Slug, strings.Join(leftover, ", ")))
	}

	if _, err := compose.Validate(rendered); err != nil {
		e.cleanupStackDir(tenant, stackDir)
		return nil, fmt.Errorf("%w: rendered definition is not a valid compose file: %v", domain.ErrValidation, err)
	}

	composePath := stackDir + "/" + e.cfg.ComposeFile
	if err := os.WriteFile(filepath.FromSlash(composePath), []byte(rendered), 0o644); err != nil {
		e.cleanupStackDir(tenant, stackDir)
		return nil, fmt.Errorf("%w: write %s: %v", domain.ErrWrite, composePath, err)
	}

	st.ComposePath = composePath
	st.Variables = vars

	if err := e.store.CreateStack(ctx, st); err != nil {
		e.cleanupStackDir(tenant, stackDir)
		return nil, mapStoreErr(err)
	}

	e.logger.Info("stack created",
		"tenant_id", tenant.ID, "stack_id", st.ID, "slug", st.Slug, "template_id", tpl.ID)
	return st, nil
}

// cleanupStackDir removes a stack directory after a failed create. The dir
// was validated against the stacks root before creation; re-check anyway.
func (e *Engine) cleanupStackDir(tenant *domain.Tenant, stackDir string) {
	if !sandbox.IsWithin(stackDir, sandbox.Normalize(e.cfg.StacksRoot)) {
		return
	}
	if err := os.RemoveAll(filepath.FromSlash(stackDir)); err != nil {
		e.logger.Warn("failed to clean up stack dir", "tenant_id", tenant.ID, "dir", stackDir, "error", err)
	}
}

// =============================================================================
// Up / Down
// =============================================================================

// StackUp brings the stack's compose file up. Status changes only on
// success; a failure carries the captured compose output.
func (e *Engine) StackUp(ctx context.Context, tenantID, id string) (*domain.Stack, error) {
	return e.transitionStack(ctx, tenantID, id, domain.StackUp, "StackUp",
		func(rctx context.Context, st *domain.Stack) (runtime.Output, error) {
			return e.rt.ComposeUp(rctx, st.ComposePath, filepath.Dir(st.ComposePath))
		})
}

// StackDown tears the stack down. Status changes only on success.
func (e *Engine) StackDown(ctx context.Context, tenantID, id string) (*domain.Stack, error) {
	return e.transitionStack(ctx, tenantID, id, domain.StackDown, "StackDown",
		func(rctx context.Context, st *domain.Stack) (runtime.Output, error) {
			return e.rt.ComposeDown(rctx, st.ComposePath, filepath.Dir(st.ComposePath))
		})
}

func (e *Engine) transitionStack(
	ctx context.Context,
	tenantID, id string,
	to domain.StackStatus,
	op string,
	call func(context.Context, *domain.Stack) (runtime.Output, error),
) (*domain.Stack, error) {
	st, err := e.store.GetStack(ctx, tenantID, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if err := domain.ValidateStackTransition(st.Status, to); err != nil {
		return nil, fmt.Errorf("%w: cannot go from %s to %s", domain.ErrValidation, st.Status, to)
	}

	rctx, cancel := e.opContext(ctx)
	defer cancel()

	out, err := call(rctx, st)
	if err != nil {
		return nil, &OpError{
			Op: op, TenantID: tenantID, Entity: "stack", ID: id,
			Message: "compose call failed",
			Output:  out,
			Err:     mapRuntimeErr(err),
		}
	}

	if err := st.Transition(to); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := e.store.UpdateStack(ctx, st); err != nil {
		return nil, mapStoreErr(err)
	}

	e.logger.Info("stack transitioned",
		"tenant_id", tenantID, "stack_id", id, "status", string(to))
	return st, nil
}

// =============================================================================
// Logs
// =============================================================================

// StackLogs returns recent compose logs for the stack. Read-only.
func (e *Engine) StackLogs(ctx context.Context, tenantID, id string, tail int) ([]string, error) {
	st, err := e.store.GetStack(ctx, tenantID, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	args := []string{"logs", "--no-color"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}

	rctx, cancel := e.opContext(ctx)
	defer cancel()

	out, err := e.rt.ComposeCmd(rctx, st.ComposePath, args, filepath.Dir(st.ComposePath))
	if err != nil {
		return nil, &OpError{
			Op: "StackLogs", TenantID: tenantID, Entity: "stack", ID: id,
			Message: "compose logs failed",
			Output:  out,
			Err:     mapRuntimeErr(err),
		}
	}

	lines := out.Stdout
	lines = append(lines, out.Stderr...)
	return lines, nil
}

// =============================================================================
// Delete
// =============================================================================

// DeleteStack tears the stack down, removes its directory, and deletes the
// record. The compose down is best-effort: a stack whose containers cannot
// be stopped must still be removable from the tenant's view, so the failure
// becomes an audit event instead of aborting the delete.
func (e *Engine) DeleteStack(ctx context.Context, tenantID, id string) error {
	st, err := e.store.GetStack(ctx, tenantID, id)
	if err != nil {
		return mapStoreErr(err)
	}

	rctx, cancel := e.opContext(ctx)
	defer cancel()

	if st.ComposePath != "" {
		if out, err := e.rt.ComposeDown(rctx, st.ComposePath, filepath.Dir(st.ComposePath)); err != nil {
			detail := fmt.Sprintf("compose down of %s failed, stack deleted anyway: %v", st.Slug, err)
			if len(out.Stderr) > 0 {
				detail += " | " + strings.Join(out.Stderr, "\n")
			}
			e.audit(ctx, tenantID, domain.AuditStackDeleteOrphan, st.ID, detail)
		}

		stackDir := sandbox.Normalize(filepath.Dir(st.ComposePath))
		if sandbox.IsWithin(stackDir, sandbox.Normalize(e.cfg.StacksRoot)) {
			if err := os.RemoveAll(filepath.FromSlash(stackDir)); err != nil {
				e.logger.Warn("failed to remove stack dir",
					"tenant_id", tenantID, "stack_id", id, "dir", stackDir, "error", err)
			}
		}
	}

	if err := e.store.DeleteStack(ctx, tenantID, id); err != nil {
		return mapStoreErr(err)
	}

	e.logger.Info("stack deleted", "tenant_id", tenantID, "stack_id", id)
	return nil
}

// =============================================================================
// Listing
// =============================================================================

// ListStacks lists the tenant's stacks.
func (e *Engine) ListStacks(ctx context.Context, tenantID string, opts store.ListOptions) ([]domain.Stack, error) {
	stacks, err := e.store.ListStacks(ctx, tenantID, opts)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return stacks, nil
}

// ListAllowedTemplates lists the templates tenants may instantiate.
func (e *Engine) ListAllowedTemplates(ctx context.Context) ([]domain.Template, error) {
	templates, err := e.store.ListAllowedTemplates(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return templates, nil
}

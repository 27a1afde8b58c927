package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/canopy-host/canopy/internal/core/domain"
	"github.com/canopy-host/canopy/internal/core/sandbox"
	"github.com/canopy-host/canopy/internal/shell/runtime"
	"github.com/canopy-host/canopy/internal/shell/store"
	"github.com/google/uuid"
)

// =============================================================================
// Container Lifecycle Manager
// =============================================================================

// CreateContainerParams carries the caller-supplied container spec.
type CreateContainerParams struct {
	Name          string
	Image         string
	Env           map[string]string
	ContainerPort int
	HostPort      int // 0 requests auto-allocation
	Protocol      string
	HostPath      string
	ContainerPath string
	ReadOnly      bool
	CPULimit      string
	MemoryLimit   string
	Network       string
}

// CreateContainer validates the request, reserves resources, runs the
// container, and persists the record with its bindings in one transaction.
// No record is written when the runtime call fails.
func (e *Engine) CreateContainer(ctx context.Context, tenant *domain.Tenant, p CreateContainerParams) (*domain.Container, error) {
	c, err := domain.NewContainer(tenant.ID, p.Name, p.Image)
	if err != nil {
		return nil, err
	}
	c.Env = p.Env
	c.CPULimit = p.CPULimit
	c.MemoryLimit = p.MemoryLimit
	c.Network = p.Network

	proto, err := domain.NormalizeProtocol(p.Protocol)
	if err != nil {
		return nil, err
	}

	if (p.HostPath == "") != (p.ContainerPath == "") {
		return nil, fmt.Errorf("%w: host path and container path must be supplied together", domain.ErrValidation)
	}

	if p.HostPort != 0 && p.ContainerPort == 0 {
		return nil, fmt.Errorf("%w: host port %d requested without a container port", domain.ErrValidation, p.HostPort)
	}

	if p.CPULimit != "" {
		if _, err := parseCPULimit(p.CPULimit); err != nil {
			return nil, err
		}
	}
	if p.MemoryLimit != "" {
		if _, err := parseMemoryLimit(p.MemoryLimit); err != nil {
			return nil, err
		}
	}

	// Allocation decisions below are check-then-act; the tenant lock holds
	// until the reserving insert commits.
	unlock := e.locks.Lock(tenant.ID)
	defer unlock()

	if p.ContainerPort != 0 {
		if err := domain.ValidatePortRange(p.HostPort, p.ContainerPort); err != nil {
			return nil, err
		}
		hostPort := p.HostPort
		if hostPort == 0 {
			hostPort, err = e.allocatePort(ctx, tenant.ID, proto)
			if err != nil {
				return nil, err
			}
		} else if err := e.checkPortFree(ctx, tenant.ID, hostPort, proto); err != nil {
			return nil, err
		}
		c.Ports = []domain.PortBinding{{
			ID:            uuid.New().String(),
			TenantID:      tenant.ID,
			ContainerID:   c.ID,
			HostPort:      hostPort,
			ContainerPort: p.ContainerPort,
			Protocol:      proto,
		}}
	}

	if p.HostPath != "" {
		hostPath := sandbox.Normalize(p.HostPath)
		within, err := sandbox.IsWithinResolved(hostPath, tenant.HomeDir)
		if err != nil || !within {
			return nil, fmt.Errorf("%w: %s is outside the tenant home", domain.ErrSandboxViolation, hostPath)
		}
		if err := os.MkdirAll(filepath.FromSlash(hostPath), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", domain.ErrWrite, hostPath, err)
		}
		c.Mounts = []domain.Mount{{
			ID:            uuid.New().String(),
			ContainerID:   c.ID,
			HostPath:      hostPath,
			ContainerPath: p.ContainerPath,
			ReadOnly:      p.ReadOnly,
		}}
	}

	rctx, cancel := e.opContext(ctx)
	defer cancel()

	runtimeID, out, err := e.rt.Run(rctx, runSpecFor(c))
	if err != nil {
		// The runtime may have created the container before failing to
		// start it; take the partial object down or its name stays taken.
		if runtimeID != "" {
			if _, rmErr := e.rt.Remove(rctx, c.Name, true); rmErr != nil {
				e.audit(ctx, tenant.ID, domain.AuditContainerRemoveOrphan, c.ID,
					fmt.Sprintf("partially created container %s left behind after failed run: %v", c.Name, rmErr))
			}
		}
		return nil, &OpError{
			Op: "CreateContainer", TenantID: tenant.ID, Entity: "container", ID: c.Name,
			Message: "runtime run failed",
			Output:  out,
			Err:     mapRuntimeErr(err),
		}
	}
	c.RuntimeID = runtimeID

	err = e.store.WithTx(ctx, func(tx store.Store) error {
		return tx.CreateContainer(ctx, c)
	})
	if err != nil {
		// The runtime object exists but the record does not; take the
		// container back down so nothing is leaked.
		if _, rmErr := e.rt.Remove(rctx, c.Name, true); rmErr != nil {
			e.audit(ctx, tenant.ID, domain.AuditContainerRemoveOrphan, c.ID,
				fmt.Sprintf("container %s persisted nowhere and runtime remove failed: %v", c.Name, rmErr))
		}
		return nil, mapStoreErr(err)
	}

	e.logger.Info("container created",
		"tenant_id", tenant.ID, "container_id", c.ID, "name", c.Name, "image", c.Image)
	return c, nil
}

// runSpecFor assembles the gateway spec from a container record.
func runSpecFor(c *domain.Container) runtime.RunSpec {
	spec := runtime.RunSpec{
		Name:    c.Name,
		Image:   c.Image,
		Env:     c.Env,
		Network: c.Network,
		Labels: map[string]string{
			"canopy.tenant":    c.TenantID,
			"canopy.container": c.ID,
		},
	}
	for _, pb := range c.Ports {
		spec.Ports = append(spec.Ports, runtime.PortMap{
			HostPort:      pb.HostPort,
			ContainerPort: pb.ContainerPort,
			Protocol:      string(pb.Protocol),
		})
	}
	for _, m := range c.Mounts {
		spec.Mounts = append(spec.Mounts, runtime.MountSpec{
			HostPath:      m.HostPath,
			ContainerPath: m.ContainerPath,
			ReadOnly:      m.ReadOnly,
		})
	}
	if c.CPULimit != "" {
		if cores, err := parseCPULimit(c.CPULimit); err == nil {
			spec.CPULimit = cores
		}
	}
	if c.MemoryLimit != "" {
		if bytes, err := parseMemoryLimit(c.MemoryLimit); err == nil {
			spec.MemoryLimit = bytes
		}
	}
	return spec
}

// =============================================================================
// Transitions
// =============================================================================

// StartContainer starts a created or stopped container.
func (e *Engine) StartContainer(ctx context.Context, tenantID, id string) (*domain.Container, error) {
	return e.transitionContainer(ctx, tenantID, id, domain.ContainerRunning, "StartContainer",
		func(rctx context.Context, name string) (runtime.Output, error) {
			return e.rt.Start(rctx, name)
		})
}

// StopContainer stops a running container.
func (e *Engine) StopContainer(ctx context.Context, tenantID, id string) (*domain.Container, error) {
	return e.transitionContainer(ctx, tenantID, id, domain.ContainerStopped, "StopContainer",
		func(rctx context.Context, name string) (runtime.Output, error) {
			return e.rt.Stop(rctx, name)
		})
}

// RestartContainer restarts a container; it ends running.
func (e *Engine) RestartContainer(ctx context.Context, tenantID, id string) (*domain.Container, error) {
	return e.transitionContainer(ctx, tenantID, id, domain.ContainerRunning, "RestartContainer",
		func(rctx context.Context, name string) (runtime.Output, error) {
			return e.rt.Restart(rctx, name)
		})
}

// transitionContainer runs the shared lookup, runtime call, status update
// sequence. Status only changes after the runtime call succeeded.
func (e *Engine) transitionContainer(
	ctx context.Context,
	tenantID, id string,
	to domain.ContainerStatus,
	op string,
	call func(context.Context, string) (runtime.Output, error),
) (*domain.Container, error) {
	c, err := e.store.GetContainer(ctx, tenantID, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if err := domain.ValidateContainerTransition(c.Status, to); err != nil {
		return nil, fmt.Errorf("%w: cannot go from %s to %s", domain.ErrValidation, c.Status, to)
	}

	rctx, cancel := e.opContext(ctx)
	defer cancel()

	out, err := call(rctx, c.Name)
	if err != nil {
		return nil, &OpError{
			Op: op, TenantID: tenantID, Entity: "container", ID: id,
			Message: "runtime call failed",
			Output:  out,
			Err:     mapRuntimeErr(err),
		}
	}

	if err := c.Transition(to); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := e.store.UpdateContainer(ctx, c); err != nil {
		return nil, mapStoreErr(err)
	}

	e.logger.Info("container transitioned",
		"tenant_id", tenantID, "container_id", id, "status", string(to))
	return c, nil
}

// =============================================================================
// Remove
// =============================================================================

// RemoveContainer removes the container. The runtime remove is best-effort:
// the record and its port bindings are always deleted so allocation state
// cannot leak, and a failed runtime call is surfaced as an audit event.
func (e *Engine) RemoveContainer(ctx context.Context, tenantID, id string) error {
	c, err := e.store.GetContainer(ctx, tenantID, id)
	if err != nil {
		return mapStoreErr(err)
	}

	rctx, cancel := e.opContext(ctx)
	defer cancel()

	if _, err := e.rt.Remove(rctx, c.Name, true); err != nil {
		e.audit(ctx, tenantID, domain.AuditContainerRemoveOrphan, c.ID,
			fmt.Sprintf("runtime remove of %s failed, record deleted anyway: %v", c.Name, err))
	}

	err = e.store.WithTx(ctx, func(tx store.Store) error {
		return tx.DeleteContainer(ctx, tenantID, id)
	})
	if err != nil {
		return mapStoreErr(err)
	}

	e.logger.Info("container removed", "tenant_id", tenantID, "container_id", id)
	return nil
}

// =============================================================================
// Logs and Listing
// =============================================================================

// ContainerLogs returns the container's recent output. Read-only.
func (e *Engine) ContainerLogs(ctx context.Context, tenantID, id string, tail int) ([]string, error) {
	c, err := e.store.GetContainer(ctx, tenantID, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	rctx, cancel := e.opContext(ctx)
	defer cancel()

	lines, err := e.rt.Logs(rctx, c.Name, tail)
	if err != nil {
		return nil, &OpError{
			Op: "ContainerLogs", TenantID: tenantID, Entity: "container", ID: id,
			Message: "runtime logs failed",
			Err:     mapRuntimeErr(err),
		}
	}
	return lines, nil
}

// ListContainers lists the tenant's containers.
func (e *Engine) ListContainers(ctx context.Context, tenantID string, opts store.ListOptions) ([]domain.Container, error) {
	containers, err := e.store.ListContainers(ctx, tenantID, opts)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return containers, nil
}

// ListImages lists images known to the runtime.
func (e *Engine) ListImages(ctx context.Context) ([]runtime.ImageRef, error) {
	rctx, cancel := e.opContext(ctx)
	defer cancel()

	refs, err := e.rt.ListImages(rctx)
	if err != nil {
		return nil, mapRuntimeErr(err)
	}
	return refs, nil
}

// =============================================================================
// Limit Parsing
// =============================================================================

// parseCPULimit parses a cores value like "0.5" or "2". The whole string
// must be numeric; trailing garbage is rejected.
func parseCPULimit(s string) (float64, error) {
	cores, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid cpu limit %q", domain.ErrValidation, s)
	}
	if cores < 0 {
		return 0, fmt.Errorf("%w: cpu limit must be non-negative", domain.ErrValidation)
	}
	return cores, nil
}

// parseMemoryLimit parses values like "512m", "2g", or plain bytes. The
// quantity must be a whole number; "1.5g" is rejected, not rounded.
func parseMemoryLimit(s string) (int64, error) {
	orig := s
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'k':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid memory limit %q", domain.ErrValidation, orig)
	}
	return n * mult, nil
}

package engine

import (
	"context"
	"fmt"

	"github.com/canopy-host/canopy/internal/core/domain"
	"github.com/canopy-host/canopy/internal/core/netalloc"
)

// =============================================================================
// Port Allocation
// =============================================================================

// allocatePort scans the configured range for the tenant's first free host
// port. Callers must hold the tenant lock across allocation and the insert
// that reserves the result.
func (e *Engine) allocatePort(ctx context.Context, tenantID string, proto domain.Protocol) (int, error) {
	bound, err := e.store.ListBoundPorts(ctx, tenantID, proto)
	if err != nil {
		return 0, mapStoreErr(err)
	}

	port, ok := netalloc.FirstFree(netalloc.UsedSet(bound), e.cfg.PortRangeStart, e.cfg.PortRangeEnd)
	if !ok {
		return 0, fmt.Errorf("%w: no free %s port in [%d, %d]",
			domain.ErrPortRangeExhausted, proto, e.cfg.PortRangeStart, e.cfg.PortRangeEnd)
	}
	return port, nil
}

// checkPortFree rejects an explicitly requested host port that is already
// reserved. Explicit requests are never silently reassigned.
func (e *Engine) checkPortFree(ctx context.Context, tenantID string, hostPort int, proto domain.Protocol) error {
	inUse, err := e.store.PortInUse(ctx, tenantID, hostPort, proto)
	if err != nil {
		return mapStoreErr(err)
	}
	if inUse {
		return fmt.Errorf("%w: %s port %d", domain.ErrPortConflict, proto, hostPort)
	}
	return nil
}

package engine

import "sync"

// =============================================================================
// Per-Tenant Locks
// =============================================================================

// tenantLocks serializes allocation decisions per tenant. Port allocation
// and slug uniqueness are check-then-act sequences; holding the tenant's
// lock across check and reserve closes the race. The store's unique
// constraints remain as the backstop.
//
// Entries are never evicted: a mutex may be held by a request at any time,
// so the map grows with the number of distinct tenants the process has
// served. One mutex per tenant keeps that bounded by the tenant table.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for a tenant and returns the unlock function.
func (t *tenantLocks) Lock(tenantID string) func() {
	t.mu.Lock()
	l, ok := t.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[tenantID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

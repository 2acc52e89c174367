package scan

import (
	"sync"

	"github.com/crmforge/hubscan/errors"
)

// Registry tracks every scan currently admitted for execution and enforces
// the concurrency ceilings: at most maxPerTenant active scans for any single
// tenant and maxGlobal across all tenants.
type Registry struct {
	mu           sync.Mutex
	active       map[string]*Machine
	perTenant    map[string]int
	maxPerTenant int
	maxGlobal    int
}

// NewRegistry builds a registry with the given ceilings. Non-positive values
// fall back to 5 per tenant and 20 global.
func NewRegistry(maxPerTenant, maxGlobal int) *Registry {
	if maxPerTenant <= 0 {
		maxPerTenant = 5
	}
	if maxGlobal <= 0 {
		maxGlobal = 20
	}
	return &Registry{
		active:       make(map[string]*Machine),
		perTenant:    make(map[string]int),
		maxPerTenant: maxPerTenant,
		maxGlobal:    maxGlobal,
	}
}

func registryKey(tenantID, scanID string) string {
	return tenantID + "\x00" + scanID
}

// Add admits a scan for execution. Returns Conflict if the same
// (tenant, scan id) is already active, and ErrScanLimitExceeded when a
// concurrency ceiling is hit.
func (r *Registry) Add(tenantID, scanID string, m *Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(tenantID, scanID)
	if _, ok := r.active[key]; ok {
		return errors.NewConflictError("scan %s is already active for tenant %s", scanID, tenantID)
	}
	if r.perTenant[tenantID] >= r.maxPerTenant {
		return errors.Wrapf(errors.ErrScanLimitExceeded,
			"tenant %s already has %d active scans", tenantID, r.perTenant[tenantID])
	}
	if len(r.active) >= r.maxGlobal {
		return errors.Wrapf(errors.ErrScanLimitExceeded,
			"global scan limit of %d reached", r.maxGlobal)
	}

	r.active[key] = m
	r.perTenant[tenantID]++
	return nil
}

// Get returns the machine for an active scan, or nil
func (r *Registry) Get(tenantID, scanID string) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[registryKey(tenantID, scanID)]
}

// Remove releases the slot held by a scan. Safe to call for scans that were
// never admitted.
func (r *Registry) Remove(tenantID, scanID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(tenantID, scanID)
	if _, ok := r.active[key]; !ok {
		return
	}
	delete(r.active, key)
	if r.perTenant[tenantID] <= 1 {
		delete(r.perTenant, tenantID)
	} else {
		r.perTenant[tenantID]--
	}
}

// ActiveCount returns the number of scans currently admitted
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// ActiveForTenant returns the number of active scans for one tenant
func (r *Registry) ActiveForTenant(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perTenant[tenantID]
}

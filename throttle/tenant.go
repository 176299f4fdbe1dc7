package throttle

import (
	"fmt"

	"golang.org/x/time/rate"
)

// TenantConfig defines rate limits and concurrency for a specific tenant
// on a specific operation.
type TenantConfig struct {
	// Op is the operation this config applies to.
	Op string

	// TenantID is the tenant identifier.
	TenantID string

	// RateLimit is the sustained calls per second for this tenant.
	RateLimit float64

	// RateBurst is the burst size for the tenant's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous calls for this tenant on this
	// operation. Zero means no tenant-specific concurrency limit.
	MaxConcurrency int
}

// tenantState tracks runtime state for a single operation+tenant pair.
type tenantState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// tenantKey builds the map key for an operation+tenant pair.
func tenantKey(op, tenantID string) string {
	return fmt.Sprintf("%s:%s", op, tenantID)
}

// SetTenantConfig configures rate limits and concurrency for a specific
// tenant on a specific operation. Calling this multiple times for the same
// operation+tenant replaces the previous configuration.
func (m *Manager) SetTenantConfig(cfg TenantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantKey(cfg.Op, cfg.TenantID)
	existing := m.tenants[key]

	ts := &tenantState{
		maxConcurrency: cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ts.active = existing.active
	}
	m.tenants[key] = ts
}

// TenantActiveCount returns the current number of active calls for an
// operation+tenant pair.
func (m *Manager) TenantActiveCount(op, tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.tenants[tenantKey(op, tenantID)]; ts != nil {
		return ts.active
	}
	return 0
}

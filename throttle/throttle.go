package throttle

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-operation behaviour such as rate limiting and
// concurrency.
type Config struct {
	// Op is the operation identifier (must match the middleware.Op name,
	// e.g. "schedule.get").
	Op string

	// MaxConcurrency limits how many calls of this operation may run
	// simultaneously across the engine. Zero means no operation-specific
	// limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained calls per second admitted for
	// this operation. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// opState tracks runtime state for a single operation.
type opState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-operation and per-tenant rate limiting and
// concurrency. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	ops     map[string]*opState
	tenants map[string]*tenantState
}

// NewManager creates a Manager with the given operation configurations.
// Operations not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		ops:     make(map[string]*opState, len(configs)),
		tenants: make(map[string]*tenantState),
	}
	for _, cfg := range configs {
		m.ops[cfg.Op] = newOpState(cfg)
	}
	return m
}

func newOpState(cfg Config) *opState {
	os := &opState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		os.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return os
}

// Acquire checks rate limits and concurrency for the given operation and
// tenant. If the call is allowed to proceed it increments the active
// counter and returns true. The caller MUST call Release when the call
// completes.
func (m *Manager) Acquire(op, tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check operation-level constraints.
	os := m.ops[op]
	if os != nil {
		if os.limiter != nil && !os.limiter.Allow() {
			return false
		}
		if os.config.MaxConcurrency > 0 && os.active >= os.config.MaxConcurrency {
			return false
		}
	}

	// Check tenant-level constraints.
	if tenantID != "" {
		ts := m.tenants[tenantKey(op, tenantID)]
		if ts != nil {
			if ts.limiter != nil && !ts.limiter.Allow() {
				return false
			}
			if ts.maxConcurrency > 0 && ts.active >= ts.maxConcurrency {
				return false
			}
			ts.active++
		}
	}

	// Increment operation active count.
	if os != nil {
		os.active++
	}

	return true
}

// Release decrements the active call count for the operation and tenant.
func (m *Manager) Release(op, tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if os := m.ops[op]; os != nil && os.active > 0 {
		os.active--
	}

	if tenantID != "" {
		if ts := m.tenants[tenantKey(op, tenantID)]; ts != nil && ts.active > 0 {
			ts.active--
		}
	}
}

// SetOpConfig dynamically updates (or creates) an operation configuration.
func (m *Manager) SetOpConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.ops[cfg.Op]
	os := newOpState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		os.active = existing.active
	}
	m.ops[cfg.Op] = os
}

// ActiveCount returns the current number of active calls for an operation.
func (m *Manager) ActiveCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if os := m.ops[op]; os != nil {
		return os.active
	}
	return 0
}

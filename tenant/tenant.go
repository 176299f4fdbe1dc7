// Package tenant resolves tenant identifiers to data partition handles.
//
// Every store operation in Engage takes an explicit Partition. There is no
// ambient session or connection state carrying the active tenant: a handle
// is resolved once per inbound request or task and passed down, so a stale
// or forgotten tenant switch cannot leak across requests.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
)

// Partition is a validated handle to one tenant's data partition. The zero
// value is invalid; obtain one from Router.Resolve.
type Partition struct {
	tenantID id.TenantID
	schema   string
}

// TenantID returns the tenant this partition belongs to.
func (p Partition) TenantID() id.TenantID { return p.tenantID }

// Schema returns the backing schema name for this partition. Relational
// stores qualify every statement with it; the memory store uses it as a
// map key.
func (p Partition) Schema() string { return p.schema }

// IsZero reports whether the partition was never resolved.
func (p Partition) IsZero() bool { return p.schema == "" }

// Provisioner supplies the set of valid tenant identifiers. The router
// only validates against it; creating and dropping partitions is the
// provisioning service's job.
type Provisioner interface {
	ListTenants(ctx context.Context) ([]id.TenantID, error)
}

// Option configures a Router.
type Option func(*Router)

// WithCacheTTL sets how long the resolved tenant set is cached before the
// provisioner is consulted again.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Router) { r.cacheTTL = d }
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// Router validates tenant identifiers and hands out partition handles.
// Safe for concurrent use.
type Router struct {
	provisioner Provisioner
	logger      *slog.Logger
	cacheTTL    time.Duration

	mu        sync.RWMutex
	known     map[string]struct{}
	refreshed time.Time
}

// NewRouter creates a Router backed by the given provisioner.
func NewRouter(p Provisioner, opts ...Option) *Router {
	r := &Router{
		provisioner: p,
		logger:      slog.Default(),
		cacheTTL:    time.Minute,
		known:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates raw against the provisioned tenant set and returns a
// partition handle for it. A malformed or unknown identifier yields
// engage.ErrTenantNotFound and no partition; there is no fallback to a
// default partition.
func (r *Router) Resolve(ctx context.Context, raw string) (Partition, error) {
	tenantID, err := id.ParseTenantID(raw)
	if err != nil {
		return Partition{}, fmt.Errorf("%w: %q", engage.ErrTenantNotFound, raw)
	}

	ok, err := r.isKnown(ctx, tenantID)
	if err != nil {
		return Partition{}, fmt.Errorf("tenant: resolve %q: %w", raw, err)
	}
	if !ok {
		return Partition{}, fmt.Errorf("%w: %q", engage.ErrTenantNotFound, raw)
	}

	return Partition{tenantID: tenantID, schema: SchemaFor(tenantID)}, nil
}

// ResolveID is Resolve for callers that already hold a typed tenant ID.
func (r *Router) ResolveID(ctx context.Context, tenantID id.TenantID) (Partition, error) {
	if tenantID.IsNil() {
		return Partition{}, engage.ErrTenantNotFound
	}
	return r.Resolve(ctx, tenantID.String())
}

// SchemaFor derives the partition schema name for a tenant. Exported so
// provisioning tooling can create partitions with matching names.
func SchemaFor(tenantID id.TenantID) string {
	return "tenant_" + tenantID.String()
}

// NewPartition builds a partition handle without router validation.
// For store internals (migration loops over provisioned tenants) and
// tests; request paths go through Router.Resolve.
func NewPartition(tenantID id.TenantID) Partition {
	return Partition{tenantID: tenantID, schema: SchemaFor(tenantID)}
}

func (r *Router) isKnown(ctx context.Context, tenantID id.TenantID) (bool, error) {
	key := tenantID.String()

	r.mu.RLock()
	fresh := time.Since(r.refreshed) < r.cacheTTL
	_, ok := r.known[key]
	r.mu.RUnlock()
	if ok && fresh {
		return true, nil
	}
	if fresh {
		// Negative answers also honor the cache window so a storm of
		// requests for a bogus tenant cannot hammer the provisioner.
		return false, nil
	}

	tenants, err := r.provisioner.ListTenants(ctx)
	if err != nil {
		return false, err
	}

	known := make(map[string]struct{}, len(tenants))
	for _, t := range tenants {
		known[t.String()] = struct{}{}
	}

	r.mu.Lock()
	r.known = known
	r.refreshed = time.Now()
	_, ok = r.known[key]
	r.mu.Unlock()

	r.logger.Debug("tenant set refreshed", slog.Int("count", len(known)))
	return ok, nil
}

// Package throttle enforces per-operation and per-tenant rate limits and
// concurrency caps for engine operations.
//
// Heavy tenants polling the schedule endpoint or flooding task-status
// batches must not starve other tenants. [Manager] gates operations at
// admission time using a token-bucket rate limiter (golang.org/x/time/rate)
// and an active-count gate for concurrency limits.
//
//	m := throttle.NewManager(
//	    throttle.Config{Op: "schedule.get", RateLimit: 10, RateBurst: 20},
//	    throttle.Config{Op: "instance.update_task_status", MaxConcurrency: 50},
//	)
//	if m.Acquire(opName, tenantID) {
//	    defer m.Release(opName, tenantID)
//	    // execute the operation
//	}
//
// Use [TenantConfig] to layer tenant-specific limits on top of the
// operation-wide ones; both gates must admit the call. Operations without
// a [Config] have no limits.
package throttle

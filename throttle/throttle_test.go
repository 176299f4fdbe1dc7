package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Manager basics
// ---------------------------------------------------------------------------

func TestNewManager_Empty(t *testing.T) {
	m := NewManager()
	// No configs; Acquire/Release should always succeed.
	if !m.Acquire("any.op", "") {
		t.Fatal("expected Acquire to succeed for unconfigured op")
	}
	m.Release("any.op", "")
}

func TestNewManager_WithConfig(t *testing.T) {
	m := NewManager(Config{
		Op:             "schedule.get",
		MaxConcurrency: 2,
	})
	if m.ActiveCount("schedule.get") != 0 {
		t.Fatal("expected 0 active calls initially")
	}
}

// ---------------------------------------------------------------------------
// Concurrency limits
// ---------------------------------------------------------------------------

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Config{
		Op:             "schedule.get",
		MaxConcurrency: 2,
	})

	if !m.Acquire("schedule.get", "") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire("schedule.get", "") {
		t.Fatal("second Acquire should succeed")
	}
	// Third should be blocked.
	if m.Acquire("schedule.get", "") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	// Release one slot.
	m.Release("schedule.get", "")
	if !m.Acquire("schedule.get", "") {
		t.Fatal("Acquire should succeed after Release")
	}
}

func TestManager_AcquireRelease_ActiveCount(t *testing.T) {
	m := NewManager(Config{
		Op:             "instance.update_task_status",
		MaxConcurrency: 5,
	})

	for i := range 3 {
		if !m.Acquire("instance.update_task_status", "") {
			t.Fatalf("Acquire %d should succeed", i)
		}
	}
	if m.ActiveCount("instance.update_task_status") != 3 {
		t.Fatalf("expected 3 active, got %d", m.ActiveCount("instance.update_task_status"))
	}

	m.Release("instance.update_task_status", "")
	m.Release("instance.update_task_status", "")
	if m.ActiveCount("instance.update_task_status") != 1 {
		t.Fatalf("expected 1 active, got %d", m.ActiveCount("instance.update_task_status"))
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestManager_RateLimit_Throttles(t *testing.T) {
	m := NewManager(Config{
		Op:        "limited.op",
		RateLimit: 1.0, // 1 per second
		RateBurst: 1,
	})

	// First should succeed (burst allows it).
	if !m.Acquire("limited.op", "") {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	m.Release("limited.op", "")

	// Immediately after, token bucket is empty.
	if m.Acquire("limited.op", "") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	// Wait for token refill.
	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire("limited.op", "") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release("limited.op", "")
}

func TestManager_RateLimit_BurstAllows(t *testing.T) {
	m := NewManager(Config{
		Op:        "bursty.op",
		RateLimit: 10.0,
		RateBurst: 3,
	})

	// Three immediate acquires should succeed (burst = 3).
	for i := range 3 {
		if !m.Acquire("bursty.op", "") {
			t.Fatalf("Acquire %d should succeed (within burst)", i)
		}
		m.Release("bursty.op", "")
	}
}

// ---------------------------------------------------------------------------
// Per-tenant isolation
// ---------------------------------------------------------------------------

func TestManager_TenantRateLimit(t *testing.T) {
	m := NewManager(Config{
		Op:             "schedule.get",
		MaxConcurrency: 100, // high op-wide limit
	})

	m.SetTenantConfig(TenantConfig{
		Op:             "schedule.get",
		TenantID:       "tenantA",
		MaxConcurrency: 1,
	})

	// Tenant A: first call succeeds.
	if !m.Acquire("schedule.get", "tenantA") {
		t.Fatal("tenantA first Acquire should succeed")
	}
	// Tenant A: second call blocked.
	if m.Acquire("schedule.get", "tenantA") {
		t.Fatal("tenantA second Acquire should fail (tenant max 1)")
	}

	// Tenant B (no config): should still succeed.
	if !m.Acquire("schedule.get", "tenantB") {
		t.Fatal("tenantB Acquire should succeed (no tenant limit)")
	}

	m.Release("schedule.get", "tenantA")
	m.Release("schedule.get", "tenantB")
}

func TestManager_TenantIsolation(t *testing.T) {
	m := NewManager(Config{
		Op:             "schedule.get",
		MaxConcurrency: 100,
	})

	m.SetTenantConfig(TenantConfig{
		Op:             "schedule.get",
		TenantID:       "tenantA",
		MaxConcurrency: 2,
	})
	m.SetTenantConfig(TenantConfig{
		Op:             "schedule.get",
		TenantID:       "tenantB",
		MaxConcurrency: 2,
	})

	// Fill tenantA slots.
	m.Acquire("schedule.get", "tenantA")
	m.Acquire("schedule.get", "tenantA")

	// tenantA is maxed.
	if m.Acquire("schedule.get", "tenantA") {
		t.Fatal("tenantA should be blocked at max concurrency")
	}

	// tenantB is unaffected.
	if !m.Acquire("schedule.get", "tenantB") {
		t.Fatal("tenantB should not be affected by tenantA's limits")
	}

	m.Release("schedule.get", "tenantA")
	m.Release("schedule.get", "tenantA")
	m.Release("schedule.get", "tenantB")
}

func TestManager_TenantActiveCount(t *testing.T) {
	m := NewManager(Config{Op: "schedule.get", MaxConcurrency: 10})
	m.SetTenantConfig(TenantConfig{
		Op:             "schedule.get",
		TenantID:       "t1",
		MaxConcurrency: 5,
	})

	m.Acquire("schedule.get", "t1")
	m.Acquire("schedule.get", "t1")

	if got := m.TenantActiveCount("schedule.get", "t1"); got != 2 {
		t.Fatalf("expected tenant active 2, got %d", got)
	}

	m.Release("schedule.get", "t1")
	if got := m.TenantActiveCount("schedule.get", "t1"); got != 1 {
		t.Fatalf("expected tenant active 1, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetOpConfig(t *testing.T) {
	m := NewManager(Config{
		Op:             "dyn.op",
		MaxConcurrency: 1,
	})

	m.Acquire("dyn.op", "")
	if m.Acquire("dyn.op", "") {
		t.Fatal("should be blocked at concurrency 1")
	}

	// Raise the limit dynamically.
	m.SetOpConfig(Config{
		Op:             "dyn.op",
		MaxConcurrency: 3,
	})

	// Now should succeed.
	if !m.Acquire("dyn.op", "") {
		t.Fatal("should succeed after raising concurrency")
	}
	m.Release("dyn.op", "")
	m.Release("dyn.op", "")
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(Config{
		Op:             "concurrent.op",
		MaxConcurrency: 50,
	})

	var acquired atomic.Int64
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("concurrent.op", "") {
				acquired.Add(1)
				// Simulate work.
				time.Sleep(time.Millisecond)
				m.Release("concurrent.op", "")
			}
		}()
	}

	wg.Wait()

	// At least some should have succeeded.
	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}

	// Active should be back to 0.
	if m.ActiveCount("concurrent.op") != 0 {
		t.Fatalf("expected 0 active after all goroutines, got %d", m.ActiveCount("concurrent.op"))
	}
}

func TestManager_UnconfiguredOp_AlwaysSucceeds(t *testing.T) {
	m := NewManager(Config{
		Op:             "configured.op",
		MaxConcurrency: 1,
	})

	// "other.op" has no config, so no limits apply.
	for range 10 {
		if !m.Acquire("other.op", "") {
			t.Fatal("unconfigured op should always allow Acquire")
		}
	}
	for range 10 {
		m.Release("other.op", "")
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager(Config{
		Op:             "schedule.get",
		MaxConcurrency: 5,
	})

	// Release without Acquire should not go negative.
	m.Release("schedule.get", "")
	if m.ActiveCount("schedule.get") != 0 {
		t.Fatal("active count should not go below 0")
	}
}

package queue

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
	// No limits; Acquire/Release should always succeed.
	if !m.Acquire("any-process") {
		t.Fatal("expected Acquire to succeed for unlimited process")
	}
	m.Release("any-process")
}

func TestLimits_IsZero(t *testing.T) {
	if !(Limits{ProcessID: "p"}).IsZero() {
		t.Fatal("limits without caps should be zero")
	}
	if (Limits{ProcessID: "p", RateLimit: 1}).IsZero() {
		t.Fatal("rate-limited limits should not be zero")
	}
}

// ---------------------------------------------------------------------------
// Concurrency limits
// ---------------------------------------------------------------------------

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Limits{
		ProcessID:      "reproject",
		MaxConcurrency: 2,
	})

	if !m.Acquire("reproject") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire("reproject") {
		t.Fatal("second Acquire should succeed")
	}
	if m.Acquire("reproject") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	m.Release("reproject")
	if !m.Acquire("reproject") {
		t.Fatal("Acquire should succeed after Release")
	}
	if got := m.ActiveCount("reproject"); got != 2 {
		t.Fatalf("expected 2 active, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestManager_RateLimit_Throttles(t *testing.T) {
	m := NewManager(Limits{
		ProcessID: "limited",
		RateLimit: 1.0, // 1 per second
		RateBurst: 1,
	})

	if !m.Acquire("limited") {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	m.Release("limited")

	// Immediately after, token bucket is empty.
	if m.Acquire("limited") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire("limited") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release("limited")
}

func TestManager_ConcurrencyDenialKeepsRateToken(t *testing.T) {
	m := NewManager(Limits{
		ProcessID:      "p",
		MaxConcurrency: 1,
		RateLimit:      0.001,
		RateBurst:      2,
	})

	if !m.Acquire("p") {
		t.Fatal("first Acquire should succeed")
	}
	// Denied by concurrency; must not consume the second token.
	if m.Acquire("p") {
		t.Fatal("second Acquire should fail (max concurrency 1)")
	}
	m.Release("p")
	if !m.Acquire("p") {
		t.Fatal("remaining burst token should still be available")
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetLimits(t *testing.T) {
	m := NewManager(Limits{ProcessID: "dyn", MaxConcurrency: 1})

	m.Acquire("dyn")
	if m.Acquire("dyn") {
		t.Fatal("should be blocked at concurrency 1")
	}

	m.SetLimits(Limits{ProcessID: "dyn", MaxConcurrency: 3})
	if !m.Acquire("dyn") {
		t.Fatal("should succeed after raising concurrency")
	}
	if got := m.ActiveCount("dyn"); got != 2 {
		t.Fatalf("active count should survive reconfiguration, got %d", got)
	}

	m.SetLimits(Limits{ProcessID: "dyn"})
	for range 5 {
		if !m.Acquire("dyn") {
			t.Fatal("zero limits should remove the cap")
		}
	}
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(Limits{ProcessID: "concurrent", MaxConcurrency: 50})

	var acquired atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("concurrent") {
				acquired.Add(1)
				time.Sleep(time.Millisecond)
				m.Release("concurrent")
			}
		}()
	}
	wg.Wait()

	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}
	if m.ActiveCount("concurrent") != 0 {
		t.Fatalf("expected 0 active after all goroutines, got %d", m.ActiveCount("concurrent"))
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager(Limits{ProcessID: "q", MaxConcurrency: 5})
	m.Release("q")
	if m.ActiveCount("q") != 0 {
		t.Fatal("active count should not go below 0")
	}
}

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mockClock allows controlling time in penalty tests
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{now: now}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Test Case: Burst budget
// Given: 10 calls per second with burst 5
// When: Taking slots immediately
// Then: Exactly the burst is granted without waiting
func TestAllow_BurstBudget(t *testing.T) {
	l := New(10, time.Second, 5)

	granted := 0
	for i := 0; i < 20; i++ {
		if l.Allow("acme") {
			granted++
		}
	}

	if granted != 5 {
		t.Errorf("expected burst of 5 immediate slots, got %d", granted)
	}
}

// Test Case: Tenant isolation
// Given: One tenant has exhausted its burst
// When: A second tenant makes its first call
// Then: The second tenant's budget is untouched
func TestAllow_TenantIsolation(t *testing.T) {
	l := New(10, time.Second, 3)

	for l.Allow("acme") {
	}

	if !l.Allow("globex") {
		t.Error("tenant globex should have a full budget despite acme's burst")
	}
}

// Test Case: Wait blocks once the budget is spent
func TestWait_BlocksWhenExhausted(t *testing.T) {
	l := New(20, time.Second, 2)
	ctx := context.Background()

	// Drain the burst
	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx, "acme"); err != nil {
			t.Fatalf("burst call %d failed: %v", i+1, err)
		}
	}

	start := time.Now()
	if err := l.Wait(ctx, "acme"); err != nil {
		t.Fatalf("post-burst wait failed: %v", err)
	}
	// 20 calls/sec refills a token every 50ms
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("expected post-burst call to be delayed, returned after %v", elapsed)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(1, time.Hour, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "acme"); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}
	if err := l.Wait(ctx, "acme"); err == nil {
		t.Error("expected context error once the hour-long budget is spent")
	}
}

// Test Case: Retry-After penalty overrides the bucket
func TestPenalize_OverridesSchedule(t *testing.T) {
	clock := newMockClock(time.Now())
	l := NewWithClock(100, time.Second, 10, clock.Now)

	l.Penalize("acme", 5*time.Second)

	if l.Allow("acme") {
		t.Error("penalized tenant should not be allowed before the deadline")
	}
	if l.Allow("globex") {
		// globex has tokens, so this should succeed
	} else {
		t.Error("penalty must not leak to other tenants")
	}

	clock.Advance(6 * time.Second)
	if !l.Allow("acme") {
		t.Error("penalty expired, call should be allowed")
	}
}

func TestPenalize_KeepsLongerDeadline(t *testing.T) {
	clock := newMockClock(time.Now())
	l := NewWithClock(100, time.Second, 10, clock.Now)

	l.Penalize("acme", 10*time.Second)
	first := l.PenaltyUntil("acme")
	l.Penalize("acme", 1*time.Second)

	if got := l.PenaltyUntil("acme"); !got.Equal(first) {
		t.Errorf("shorter penalty replaced a longer one: %v -> %v", first, got)
	}
}

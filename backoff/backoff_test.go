package backoff

import (
	"context"
	"sync"
	"testing"
	"time"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
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

func TestFailureBudget(t *testing.T) {
	s := NewState(Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second})

	if !s.Failure() {
		t.Error("first failure should leave attempts remaining")
	}
	if !s.Failure() {
		t.Error("second failure should leave attempts remaining")
	}
	if s.Failure() {
		t.Error("third failure should exhaust the budget")
	}
	if !s.Exhausted() {
		t.Error("state should report exhausted")
	}
	if s.Attempts() != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", s.Attempts())
	}
}

func TestExponentialDelays(t *testing.T) {
	clock := &mockClock{now: time.Unix(1000, 0)}
	s := NewStateWithClock(Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}, clock.Now)

	s.Failure()
	if got := s.NextAllowed().Sub(clock.Now()); got != 100*time.Millisecond {
		t.Errorf("first delay: expected 100ms, got %v", got)
	}

	s.Failure()
	if got := s.NextAllowed().Sub(clock.Now()); got != 200*time.Millisecond {
		t.Errorf("second delay: expected 200ms, got %v", got)
	}

	s.Failure()
	if got := s.NextAllowed().Sub(clock.Now()); got != 400*time.Millisecond {
		t.Errorf("third delay: expected 400ms, got %v", got)
	}
}

func TestDelayCappedAtMax(t *testing.T) {
	clock := &mockClock{now: time.Unix(1000, 0)}
	s := NewStateWithClock(Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 2 * time.Second}, clock.Now)

	for i := 0; i < 5; i++ {
		s.Failure()
	}
	if got := s.NextAllowed().Sub(clock.Now()); got != 2*time.Second {
		t.Errorf("expected delay capped at 2s, got %v", got)
	}
}

func TestWaitReturnsImmediatelyWhenDue(t *testing.T) {
	s := NewState(DefaultPolicy())

	start := time.Now()
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("Wait with no pending delay should return immediately")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	s := NewState(Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour})
	s.Failure()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := s.Wait(ctx); err == nil {
		t.Error("expected context deadline error from Wait")
	}
}

// Package ratelimit throttles outbound CRM API calls per tenant.
//
// Each tenant gets an isolated token bucket so one tenant's burst never
// shortens another tenant's budget. An upstream retry-after signal
// (HTTP 429) overrides the bucket schedule for that tenant only.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TenantLimiter manages one token bucket per tenant
type TenantLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	penalties map[string]time.Time // tenant -> earliest next attempt
	limit     rate.Limit
	burst     int
	timeNow   func() time.Time // Injectable for testing
}

// New creates a limiter allowing maxCalls per window with the given burst
// allowance, applied independently per tenant.
func New(maxCalls int, window time.Duration, burst int) *TenantLimiter {
	return NewWithClock(maxCalls, window, burst, time.Now)
}

// NewWithClock creates a limiter with an injectable clock (for testing the
// penalty schedule; the underlying buckets still use real time).
func NewWithClock(maxCalls int, window time.Duration, burst int, timeNow func() time.Time) *TenantLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TenantLimiter{
		limiters:  make(map[string]*rate.Limiter),
		penalties: make(map[string]time.Time),
		limit:     rate.Limit(float64(maxCalls) / window.Seconds()),
		burst:     burst,
		timeNow:   timeNow,
	}
}

// limiterFor returns the tenant's bucket, creating it on first use.
// Must be called with the lock held.
func (l *TenantLimiter) limiterFor(tenant string) *rate.Limiter {
	lim, ok := l.limiters[tenant]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[tenant] = lim
	}
	return lim
}

// Wait blocks until a call slot is available for the tenant, honoring any
// pending retry-after penalty first. Returns early if ctx is cancelled.
func (l *TenantLimiter) Wait(ctx context.Context, tenant string) error {
	l.mu.Lock()
	penalty := l.penalties[tenant]
	lim := l.limiterFor(tenant)
	l.mu.Unlock()

	if wait := penalty.Sub(l.timeNow()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lim.Wait(ctx)
}

// Allow reports whether a call slot is immediately available for the tenant.
// A pending penalty counts as unavailable.
func (l *TenantLimiter) Allow(tenant string) bool {
	l.mu.Lock()
	penalty := l.penalties[tenant]
	lim := l.limiterFor(tenant)
	l.mu.Unlock()

	if penalty.After(l.timeNow()) {
		return false
	}
	return lim.Allow()
}

// Penalize records an upstream retry-after delay for the tenant. The next
// Wait will not proceed before the server-specified deadline, regardless of
// bucket state. A longer existing penalty is kept.
func (l *TenantLimiter) Penalize(tenant string, d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := l.timeNow().Add(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	if deadline.After(l.penalties[tenant]) {
		l.penalties[tenant] = deadline
	}
}

// PenaltyUntil returns the tenant's current penalty deadline, zero if none.
func (l *TenantLimiter) PenaltyUntil(tenant string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.penalties[tenant]
}

// Tokens returns the tenant's currently available tokens, for observability.
func (l *TenantLimiter) Tokens(tenant string) float64 {
	l.mu.Lock()
	lim := l.limiterFor(tenant)
	l.mu.Unlock()
	return lim.Tokens()
}

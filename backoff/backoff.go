// Package backoff provides explicit retry state with exponential delays.
//
// Retry control flow is expressed as a value (attempt count, next-allowed
// time) inspected by the caller's loop, not as nested callbacks.
package backoff

import (
	"context"
	"time"
)

// Policy bounds a retry sequence
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay after the first failure
	MaxDelay    time.Duration // growth cap
}

// DefaultPolicy matches the orchestration defaults: 3 attempts, 500ms base,
// 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// State tracks one retry sequence
type State struct {
	policy      Policy
	attempts    int
	nextAllowed time.Time
	timeNow     func() time.Time // Injectable for testing
}

// NewState creates retry state with real time
func NewState(policy Policy) *State {
	return NewStateWithClock(policy, time.Now)
}

// NewStateWithClock creates retry state with an injectable clock (for testing)
func NewStateWithClock(policy Policy, timeNow func() time.Time) *State {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	return &State{policy: policy, timeNow: timeNow}
}

// Attempts returns the number of failures recorded so far
func (s *State) Attempts() int {
	return s.attempts
}

// NextAllowed returns the earliest time the next attempt may run
func (s *State) NextAllowed() time.Time {
	return s.nextAllowed
}

// Failure records a failed attempt. It returns true if another attempt is
// permitted, false once the budget is exhausted. Delay doubles per failure,
// capped at MaxDelay.
func (s *State) Failure() bool {
	s.attempts++
	if s.attempts >= s.policy.MaxAttempts {
		return false
	}

	delay := s.policy.BaseDelay << (s.attempts - 1)
	if delay > s.policy.MaxDelay || delay <= 0 {
		delay = s.policy.MaxDelay
	}
	s.nextAllowed = s.timeNow().Add(delay)
	return true
}

// Exhausted reports whether the retry budget is spent
func (s *State) Exhausted() bool {
	return s.attempts >= s.policy.MaxAttempts
}

// Wait suspends until the next attempt is allowed or ctx is cancelled
func (s *State) Wait(ctx context.Context) error {
	wait := s.nextAllowed.Sub(s.timeNow())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

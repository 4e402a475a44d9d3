// Package reconnect decides when to reopen a session that dropped without
// being asked to.
package reconnect

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultMaxAttempts is the reconnect budget before giving up.
	DefaultMaxAttempts = 5

	// DefaultMaxDelay caps the wait between attempts.
	DefaultMaxDelay = 30 * time.Second

	// InitialDelay is the wait before the first attempt.
	InitialDelay = 2 * time.Second

	// HeartbeatInterval is how often an open session is pinged.
	HeartbeatInterval = 10 * time.Second
)

// Policy yields exponentially growing delays, 2^attempt seconds capped at
// the max delay, for a bounded number of attempts. Not safe for concurrent use.
type Policy struct {
	maxAttempts int
	attempt     int
	backoff     *backoff.ExponentialBackOff
}

// New creates a policy. Non-positive arguments select the defaults.
func New(maxAttempts int, maxDelay time.Duration) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
	}
	b.Reset()
	return &Policy{maxAttempts: maxAttempts, backoff: b}
}

// Next reserves the next attempt. ok is false once the budget is spent;
// the attempt counter stays at the max until Reset.
func (p *Policy) Next() (attempt int, delay time.Duration, ok bool) {
	if p.attempt >= p.maxAttempts {
		return p.attempt, 0, false
	}
	p.attempt++
	delay = min(p.backoff.NextBackOff(), p.backoff.MaxInterval)
	return p.attempt, delay, true
}

// Reset clears the counter after a successful open or a manual start.
func (p *Policy) Reset() {
	p.attempt = 0
	p.backoff.Reset()
}

// Attempt returns the number of attempts reserved since the last Reset.
func (p *Policy) Attempt() int {
	return p.attempt
}

// MaxAttempts returns the budget.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Exhausted reports whether no attempts remain.
func (p *Policy) Exhausted() bool {
	return p.attempt >= p.maxAttempts
}

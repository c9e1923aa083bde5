package gateway

import (
	"sync"
	"time"
)

// BreakerState is the process-wide circuit state for the external service.
type BreakerState uint8

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns the state name for logs and telemetry.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker trips open after threshold consecutive failures. While open,
// calls short-circuit to the fallback with no network attempt. After the
// cooldown, exactly one half-open trial is allowed: success closes the
// breaker, failure reopens it and restarts the cooldown.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time

	// trialInFlight guards the single half-open probe.
	trialInFlight bool

	// onChange, when set, is notified of state transitions.
	onChange func(state string)

	trips int
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration, onChange func(state string)) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		onChange:  onChange,
	}
}

// Allow reports whether a call may go external right now. In the open
// state it returns false until the cooldown elapses, then admits exactly
// one trial call.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if now.Sub(b.openedAt) >= b.cooldown {
			b.setState(BreakerHalfOpen)
			b.trialInFlight = true
			return true
		}
		return false
	default: // BreakerHalfOpen
		if b.trialInFlight {
			return false // the probe is already out
		}
		b.trialInFlight = true
		return true
	}
}

// RecordSuccess closes the breaker and clears the failure streak.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialInFlight = false
	if b.state != BreakerClosed {
		b.setState(BreakerClosed)
	}
}

// RecordFailure counts a consecutive failure. A half-open failure reopens
// immediately; a closed breaker opens at the threshold.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.trialInFlight = false

	switch b.state {
	case BreakerHalfOpen:
		b.openedAt = now
		b.trips++
		b.setState(BreakerOpen)
	case BreakerClosed:
		if b.failures >= b.threshold {
			b.openedAt = now
			b.trips++
			b.setState(BreakerOpen)
		}
	}
}

// State returns the current circuit state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trips returns how many times the breaker has opened.
func (b *Breaker) Trips() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

// setState transitions and notifies. Callers hold b.mu.
func (b *Breaker) setState(s BreakerState) {
	b.state = s
	if b.onChange != nil {
		b.onChange(s.String())
	}
}

// Package breaker implements the circuit breaker state machine used by
// the transport layer to stop routing tasks to a principal whose
// recent failures or trust score cross a threshold.
package breaker

import (
	"sync"
	"time"

	"github.com/dataparency-dev/delegation-core/internal/types"
)

// State is one of the three circuit breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config tunes the breaker. Zero ResetTimeout/HalfOpenMaxAttempts take
// the defaults below.
type Config struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
	TrustFloor          float64 // optional; 0 disables the trust-drop trip
}

const (
	DefaultResetTimeout        = 30 * time.Minute
	DefaultHalfOpenMaxAttempts = 1
)

func (c Config) withDefaults() Config {
	if c.ResetTimeout == 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenMaxAttempts == 0 {
		c.HalfOpenMaxAttempts = DefaultHalfOpenMaxAttempts
	}
	return c
}

// Breaker monitors one principal's health and trips to Open on
// FailureThreshold consecutive failures, cools down to HalfOpen after
// ResetTimeout, and returns to Closed on the first successful probe or
// back to Open on a failed one.
type Breaker struct {
	mu sync.Mutex

	principal    types.PrincipalID
	cfg          Config
	failureCount int
	state        State
	lastTripped  time.Time
	halfOpenUsed int
}

// New constructs a breaker in the Closed state.
func New(principal types.PrincipalID, cfg Config) *Breaker {
	return &Breaker{principal: principal, cfg: cfg.withDefaults(), state: Closed}
}

// RecordFailure increments the failure counter and trips to Open once
// it reaches FailureThreshold. Reports whether this call tripped it.
func (b *Breaker) RecordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.state = Open
		b.lastTripped = now
		b.failureCount = 0
		return true
	}

	b.failureCount++
	if b.failureCount >= b.cfg.FailureThreshold {
		b.state = Open
		b.lastTripped = now
		return true
	}
	return false
}

// RecordSuccess resets the failure counter; from HalfOpen it closes the
// breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.halfOpenUsed = 0
	b.state = Closed
}

// CheckTrustDrop trips the breaker immediately if currentTrust falls
// below the configured TrustFloor (0 disables this check).
func (b *Breaker) CheckTrustDrop(currentTrust float64, now time.Time) bool {
	if b.cfg.TrustFloor <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if currentTrust < b.cfg.TrustFloor {
		b.state = Open
		b.lastTripped = now
		return true
	}
	return false
}

// IsAllowed reports whether the principal may currently be routed a
// task. Open transitions to HalfOpen once ResetTimeout has elapsed,
// permitting up to HalfOpenMaxAttempts probes.
func (b *Breaker) IsAllowed(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if now.Sub(b.lastTripped) > b.cfg.ResetTimeout {
			b.state = HalfOpen
			b.halfOpenUsed = 0
		} else {
			return false
		}
		fallthrough
	case HalfOpen:
		if b.halfOpenUsed >= b.cfg.HalfOpenMaxAttempts {
			return false
		}
		b.halfOpenUsed++
		return true
	default:
		return false
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

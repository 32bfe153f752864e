// Package breaker implements a three-state circuit breaker that protects the
// upstream chat-completion provider from cascading failures. A single breaker
// instance guards the provider for the whole process.
package breaker

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/wrenchgate/clock"
)

// State is the current mode of the breaker.
type State int

const (
	// StateClosed is normal operation: requests pass through.
	StateClosed State = iota

	// StateOpen blocks requests until the recovery timeout elapses.
	StateOpen

	// StateHalfOpen admits probe requests to test whether the upstream recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state by name so status payloads stay readable.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

// ErrCircuitOpen is returned by Check while the circuit is open.
var ErrCircuitOpen = errors.New("service temporarily unavailable (circuit open)")

// OpenError carries how long the caller should wait before retrying.
// It unwraps to ErrCircuitOpen.
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("service temporarily unavailable (circuit open), retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// CircuitBreaker tracks consecutive upstream failures and fails fast once the
// threshold is reached. State, the consecutive-failure counter, and the
// opened-at timestamp change together under one mutex so no caller can
// observe them half-updated. Lifetime totals are plain atomic counters.
type CircuitBreaker struct {
	threshold uint32
	timeout   time.Duration
	clk       clock.Clock

	mu                  sync.Mutex
	state               State
	consecutiveFailures uint32
	openedAt            time.Time // zero unless Open/HalfOpen was entered via a failure

	totalRequests atomic.Uint64
	totalFailures atomic.Uint64
}

// New creates a closed CircuitBreaker. threshold is the number of consecutive
// failures before opening; timeout is how long the circuit stays open before
// admitting a recovery probe. A nil clk defaults to the real clock.
func New(threshold uint32, timeout time.Duration, clk clock.Clock) *CircuitBreaker {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		clk:       clk,
		state:     StateClosed,
	}
}

// Check reports whether a request may proceed to the upstream. Every call
// counts toward TotalRequests. When the circuit is open and the timeout has
// elapsed, the call itself performs the open -> half-open transition and is
// admitted as the recovery probe.
//
// While half-open, every check is admitted: under concurrency more than one
// in-flight probe can be outstanding, and the first reported outcome decides
// the next transition. That looseness is deliberate; the cost is a few extra
// upstream calls, not a correctness problem.
//
// Every Check that returns nil obligates the caller to report exactly one of
// RecordSuccess or RecordFailure once the upstream attempt concludes.
func (cb *CircuitBreaker) Check() error {
	cb.totalRequests.Add(1)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		elapsed := cb.clk.Since(cb.openedAt)
		if elapsed >= cb.timeout {
			cb.state = StateHalfOpen
			log.Printf("breaker: transitioning to half-open state")
			return nil
		}
		return &OpenError{RetryAfter: cb.timeout - elapsed}
	default:
		return nil
	}
}

// RecordSuccess reports a successful upstream call. In half-open it closes
// the circuit; otherwise it just clears the consecutive-failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		log.Printf("breaker: closing after successful probe")
		cb.state = StateClosed
		cb.openedAt = time.Time{}
	}
	cb.consecutiveFailures = 0
}

// RecordFailure reports a failed upstream call. It opens the circuit when the
// consecutive-failure threshold is reached while closed, and immediately
// re-opens with a fresh timestamp on any half-open failure.
func (cb *CircuitBreaker) RecordFailure() {
	cb.totalFailures.Add(1)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.threshold {
			log.Printf("breaker: opening after %d consecutive failures", cb.consecutiveFailures)
			cb.state = StateOpen
			cb.openedAt = cb.clk.Now()
		}
	case StateHalfOpen:
		log.Printf("breaker: reopening after failure in half-open state")
		cb.state = StateOpen
		cb.openedAt = cb.clk.Now()
	case StateOpen:
		// Already open; only the counters advance.
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a read-only snapshot of the breaker.
type Stats struct {
	State               State  `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	Threshold           uint32 `json:"threshold"`
	TotalRequests       uint64 `json:"total_requests"`
	TotalFailures       uint64 `json:"total_failures"`
}

// Stats returns a snapshot of the breaker's counters and state.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	state := cb.state
	failures := cb.consecutiveFailures
	cb.mu.Unlock()

	return Stats{
		State:               state,
		ConsecutiveFailures: failures,
		Threshold:           cb.threshold,
		TotalRequests:       cb.totalRequests.Load(),
		TotalFailures:       cb.totalFailures.Load(),
	}
}

// Reset forces the circuit closed and clears every counter, lifetime totals
// included. Intended for operator intervention, not automatic recovery.
func (cb *CircuitBreaker) Reset() {
	log.Printf("breaker: manual reset")

	cb.mu.Lock()
	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.openedAt = time.Time{}
	cb.mu.Unlock()

	cb.totalRequests.Store(0)
	cb.totalFailures.Store(0)
}

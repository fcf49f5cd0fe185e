// Package resilience keeps the interview loop alive when an upstream model
// backend degrades. A [CircuitBreaker] stops hammering a backend that keeps
// failing, and [LLMFallback] chains several llm.Provider backends so a
// tripped or failing primary hands the request to the next one.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// rejecting calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is a breaker's operating mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen lets a single probe call through; its outcome decides
	// whether the breaker closes again or re-opens.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is the run of consecutive failures that trips the breaker.
	// Default 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before
	// allowing a probe. Default 30s.
	ResetTimeout time.Duration
}

// CircuitBreaker guards calls to one backend. It trips open after a run of
// consecutive failures, rejects calls for the reset timeout, then lets one
// probe call at a time decide whether the backend has recovered.
//
// Safe for concurrent use.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker returns a closed breaker with the given tuning.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
	}
}

// Execute runs fn unless the breaker is rejecting calls. After the reset
// timeout one probe call is let through at a time; the probe's outcome
// closes or re-opens the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.allow()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// allow decides whether the next call may run and whether it is a probe.
func (cb *CircuitBreaker) allow() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return false, nil
	}
	if cb.probing || time.Since(cb.openedAt) < cb.resetTimeout {
		return false, ErrCircuitOpen
	}
	cb.probing = true
	return true, nil
}

// settle records the outcome of a call admitted by allow.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
		if err != nil {
			cb.openedAt = time.Now()
			slog.Warn("circuit breaker probe failed, staying open", "breaker", cb.name, "error", err)
			return
		}
		cb.state = StateClosed
		cb.failures = 0
		slog.Info("circuit breaker closed after successful probe", "breaker", cb.name)
		return
	}

	if err == nil {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		slog.Warn("circuit breaker tripped", "breaker", cb.name, "failures", cb.failures)
	}
}

// State reports the breaker's mode. An open breaker whose reset timeout has
// elapsed reads as half-open; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.probing {
		return StateHalfOpen
	}
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears the failure run.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probing = false
}

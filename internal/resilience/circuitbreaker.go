// Package resilience guards the hosted and local speech backends against
// flapping: a [CircuitBreaker] stops calling a backend that keeps failing, and
// a [FallbackGroup] moves on to the next configured backend of the same kind.
//
// The STT, LLM and TTS wrappers in this package implement the provider
// interfaces themselves, so the turn controller never knows whether it is
// talking to one backend or a chain of them.
//
// Failures caused by the caller's own cancellation (an interrupted turn) are
// never counted against a backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds the tuning knobs of a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log records and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// Default: 3.
	HalfOpenMax int

	// OnStateChange, when set, is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker is a three-state breaker (closed, open, half-open).
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	onStateChange func(name string, from, to State)

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewCircuitBreaker returns a closed breaker. Zero config fields take their
// defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
	}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute calls fn unless the breaker is open. An error returned while ctx
// is already done is passed through without being counted.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.allow()
	if err != nil {
		return err
	}

	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		cb.release(probe)
		return err
	}
	cb.record(probe, err == nil)
	return err
}

// allow decides whether a call may proceed and whether it is a half-open
// probe.
func (cb *CircuitBreaker) allow() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.successes = 0, 0
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
	}
	probe = cb.state == StateHalfOpen
	if probe {
		cb.probes++
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return probe, nil
}

// release returns an unused probe slot.
func (cb *CircuitBreaker) release(probe bool) {
	if !probe {
		return
	}
	cb.mu.Lock()
	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) record(probe, ok bool) {
	cb.mu.Lock()
	from := cb.state
	switch {
	case ok && probe:
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
		}
	case ok:
		cb.failures = 0
	case probe:
		cb.state = StateOpen
		cb.openedAt = time.Now()
	default:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if from != to && to == StateOpen {
		slog.Warn("circuit breaker opened", "name", cb.name, "from", from.String(), "consecutive_failures", failures)
	}
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}
	if to != StateOpen {
		slog.Info("circuit breaker state change", "name", cb.name, "from", from.String(), "to", to.String())
	}
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/echovault/internal/observe"
)

// ErrAllFailed is wrapped by the error returned from [Execute] when every
// entry either failed or was skipped by its breaker.
var ErrAllFailed = errors.New("all providers failed")

// Request statuses recorded on the provider request counter.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
	StatusSkipped   = "circuit_open"
)

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is applied to every entry. Name is replaced by
	// "<kind>/<entry name>".
	CircuitBreaker CircuitBreakerConfig

	// Metrics receives one provider request per attempt. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

type entry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered list of interchangeable backends of one kind
// ("stt", "llm", "tts"), each behind its own [CircuitBreaker].
type FallbackGroup[T any] struct {
	kind    string
	cfg     CircuitBreakerConfig
	metrics *observe.Metrics
	entries []entry[T]
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](kind string, primary T, name string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{
		kind:    kind,
		cfg:     cfg.CircuitBreaker,
		metrics: cfg.Metrics,
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	g.AddFallback(name, primary)
	return g
}

// AddFallback appends a backend tried after all existing entries. Not safe to
// call concurrently with [Execute].
func (g *FallbackGroup[T]) AddFallback(name string, v T) {
	bc := g.cfg
	bc.Name = g.kind + "/" + name
	g.entries = append(g.entries, entry[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// Kind returns the backend kind the group was created with.
func (g *FallbackGroup[T]) Kind() string { return g.kind }

// Primary returns the first entry.
func (g *FallbackGroup[T]) Primary() T { return g.entries[0].value }

// Names returns the entry names in try order.
func (g *FallbackGroup[T]) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.name
	}
	return names
}

// Breaker returns the circuit breaker guarding the named entry, or nil.
func (g *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, e := range g.entries {
		if e.name == name {
			return e.breaker
		}
	}
	return nil
}

// Execute calls fn with each entry of g in order until one succeeds and
// returns its result together with the entry that produced it. Entries whose
// breaker is open are skipped. Cancellation of ctx stops the walk at once
// and returns the context's error.
func Execute[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, T, error) {
	var (
		zeroR R
		zeroT T
		errs  []error
	)
	for _, e := range g.entries {
		if err := ctx.Err(); err != nil {
			return zeroR, zeroT, err
		}

		var res R
		err := e.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			res, err = fn(ctx, e.value)
			return err
		})
		switch {
		case err == nil:
			g.metrics.RecordProviderRequest(ctx, e.name, g.kind, StatusOK)
			return res, e.value, nil
		case errors.Is(err, ErrCircuitOpen):
			g.metrics.RecordProviderRequest(ctx, e.name, g.kind, StatusSkipped)
			slog.Debug("resilience: skipping provider with open circuit", "kind", g.kind, "provider", e.name)
		case ctx.Err() != nil:
			g.metrics.RecordProviderRequest(ctx, e.name, g.kind, StatusCancelled)
			return zeroR, zeroT, err
		default:
			g.metrics.RecordProviderRequest(ctx, e.name, g.kind, StatusError)
			g.metrics.RecordProviderError(ctx, e.name, g.kind)
			slog.Warn("resilience: provider failed", "kind", g.kind, "provider", e.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
	}
	return zeroR, zeroT, fmt.Errorf("resilience: %s: %w: %w", g.kind, ErrAllFailed, errors.Join(errs...))
}

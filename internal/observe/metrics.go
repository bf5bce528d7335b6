// Package observe provides application-wide observability primitives for
// EchoVault: OpenTelemetry metrics, tracing, structured logging setup, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all EchoVault metrics.
const meterName = "github.com/MrWong99/echovault"

// Turn outcomes recorded by [Metrics.RecordTurn].
const (
	OutcomeCompleted    = "completed"
	OutcomeNoAudio      = "no_audio"
	OutcomeNoTranscript = "no_transcript"
	OutcomeNoResponse   = "no_response"
	OutcomeError        = "error"
	OutcomeCancelled    = "cancelled"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CaptureDuration tracks how long an utterance capture took.
	CaptureDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks response generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks synthesis plus playback time.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks a full turn from capture end to playback end.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Turns counts finished turns by attribute.String("outcome", ...).
	Turns metric.Int64Counter

	// StateTransitions counts controller state entries by attribute.String("state", ...).
	StateTransitions metric.Int64Counter

	// WakeTriggers counts wake phrase detections by attribute.String("phrase", ...).
	WakeTriggers metric.Int64Counter

	// --- Gauges ---

	// EventClients tracks the number of connected event feed clients.
	EventClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// voice pipeline. Captures and playback run much longer than provider calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.CaptureDuration, "echovault.capture.duration", "Duration of utterance capture."},
		{&met.STTDuration, "echovault.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "echovault.llm.duration", "Latency of response generation."},
		{&met.TTSDuration, "echovault.tts.duration", "Duration of speech synthesis and playback."},
		{&met.TurnDuration, "echovault.turn.duration", "Duration of a full conversation turn."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "echovault.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.ProviderErrors, "echovault.provider.errors", "Total provider errors by provider and kind."},
		{&met.Turns, "echovault.turns", "Total conversation turns by outcome."},
		{&met.StateTransitions, "echovault.state.transitions", "Total controller state entries by state."},
		{&met.WakeTriggers, "echovault.wake.triggers", "Total wake phrase detections by phrase."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.EventClients, err = m.Int64UpDownCounter("echovault.event_clients",
		metric.WithDescription("Number of connected event feed clients."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("echovault.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn records a finished turn with the given outcome.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTransition records entry into state.
func (m *Metrics) RecordTransition(ctx context.Context, state string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordWakeTrigger records a wake phrase detection.
func (m *Metrics) RecordWakeTrigger(ctx context.Context, phrase string) {
	m.WakeTriggers.Add(ctx, 1, metric.WithAttributes(attribute.String("phrase", phrase)))
}

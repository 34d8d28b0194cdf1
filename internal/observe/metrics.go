// Package observe provides application-wide observability primitives for
// semem: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all semem metrics.
const meterName = "github.com/MrWong99/semem"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per C-module ---

	// VerbDuration tracks Simple Verbs Service call latency (C7). Use with
	// attribute.String("verb", ...).
	VerbDuration metric.Float64Histogram

	// LLMDuration tracks chat-completion latency for `ask`/`augment`.
	LLMDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding-generation latency for `tell`/`retrieve`.
	EmbeddingDuration metric.Float64Histogram

	// RetrievalDuration tracks C4 similarity-scan latency.
	RetrievalDuration metric.Float64Histogram

	// SparqlDuration tracks C2 SPARQL query/update round-trip latency. Use
	// with attribute.String("operation", "query"|"update").
	SparqlDuration metric.Float64Histogram

	// EnhancementDuration tracks C8 pipeline latency. Use with
	// attribute.String("pipeline", "hyde"|"wikipedia"|"wikidata").
	EnhancementDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// VerbCalls counts Simple Verbs Service invocations. Use with attributes:
	//   attribute.String("verb", ...), attribute.String("status", ...)
	VerbCalls metric.Int64Counter

	// InteractionsIngested counts successful `tell` ingestions.
	InteractionsIngested metric.Int64Counter

	// ConceptsExtracted counts concepts folded into the inverted index.
	ConceptsExtracted metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ShortTermItems tracks the current short-term store size.
	ShortTermItems metric.Int64UpDownCounter

	// LongTermItems tracks the current long-term store size.
	LongTermItems metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// sub-10ms local retrieval scans up through multi-second LLM/SPARQL calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.VerbDuration, err = m.Float64Histogram("semem.verb.duration",
		metric.WithDescription("Latency of Simple Verbs Service calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("semem.llm.duration",
		metric.WithDescription("Latency of LLM chat completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("semem.embedding.duration",
		metric.WithDescription("Latency of embedding generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("semem.retrieval.duration",
		metric.WithDescription("Latency of similarity-based candidate scoring."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SparqlDuration, err = m.Float64Histogram("semem.sparql.duration",
		metric.WithDescription("Latency of SPARQL query/update round trips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EnhancementDuration, err = m.Float64Histogram("semem.enhancement.duration",
		metric.WithDescription("Latency of a single C8 enhancement pipeline call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("semem.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.VerbCalls, err = m.Int64Counter("semem.verb.calls",
		metric.WithDescription("Total verb invocations by verb name and status."),
	); err != nil {
		return nil, err
	}
	if met.InteractionsIngested, err = m.Int64Counter("semem.interactions.ingested",
		metric.WithDescription("Total interactions ingested via tell."),
	); err != nil {
		return nil, err
	}
	if met.ConceptsExtracted, err = m.Int64Counter("semem.concepts.extracted",
		metric.WithDescription("Total concepts folded into the inverted index."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("semem.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ShortTermItems, err = m.Int64UpDownCounter("semem.shortterm.items",
		metric.WithDescription("Current number of short-term interactions held in memory."),
	); err != nil {
		return nil, err
	}
	if met.LongTermItems, err = m.Int64UpDownCounter("semem.longterm.items",
		metric.WithDescription("Current number of promoted long-term interactions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("semem.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordVerbCall is a convenience method that records a verb call counter
// increment with the standard attribute set.
func (m *Metrics) RecordVerbCall(ctx context.Context, verb, status string) {
	m.VerbCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verb", verb),
			attribute.String("status", status),
		),
	)
}

// RecordInteractionIngested is a convenience method that records a
// successful tell ingestion.
func (m *Metrics) RecordInteractionIngested(ctx context.Context) {
	m.InteractionsIngested.Add(ctx, 1)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

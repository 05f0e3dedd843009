// Package observe provides application-wide observability primitives for
// thoughtmap: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [Setup] so that metrics can be scraped
// from /metrics. A package-level default [Metrics] instance ([DefaultMetrics])
// is provided for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all thoughtmap metrics.
const meterName = "github.com/MrWong99/thoughtmap"

// Skip reasons reported on [Metrics.ExtractionSkipped].
const (
	SkipEmpty          = "empty"
	SkipUnchanged      = "unchanged"
	SkipNotInitialized = "not_initialized"
	SkipInFlight       = "in_flight"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// ExtractionDuration tracks concept extraction round-trips (LLM call plus
	// parsing).
	ExtractionDuration metric.Float64Histogram

	// FollowupDuration tracks follow-up question generation.
	FollowupDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// ExtractionRequests counts backend calls. Use with attributes:
	//   attribute.String("kind", "concepts"|"followups"), attribute.String("status", "ok"|"error")
	ExtractionRequests metric.Int64Counter

	// ExtractionSkipped counts scheduler firings that did not call the
	// backend. Use with attribute.String("reason", ...).
	ExtractionSkipped metric.Int64Counter

	// ExtractionErrors counts failed backend calls by kind.
	ExtractionErrors metric.Int64Counter

	// --- Gauges ---

	// Concepts tracks the number of nodes in the published forest.
	Concepts metric.Int64Gauge

	// WSClients tracks the number of connected websocket clients.
	WSClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for LLM
// round-trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ExtractionDuration, err = m.Float64Histogram("thoughtmap.extraction.duration",
		metric.WithDescription("Latency of concept extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FollowupDuration, err = m.Float64Histogram("thoughtmap.followup.duration",
		metric.WithDescription("Latency of follow-up question generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("thoughtmap.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ExtractionRequests, err = m.Int64Counter("thoughtmap.extraction.requests",
		metric.WithDescription("Total extraction backend requests by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ExtractionSkipped, err = m.Int64Counter("thoughtmap.extraction.skipped",
		metric.WithDescription("Scheduler firings skipped without a backend call, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ExtractionErrors, err = m.Int64Counter("thoughtmap.extraction.errors",
		metric.WithDescription("Total failed extraction backend requests by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.Concepts, err = m.Int64Gauge("thoughtmap.concepts",
		metric.WithDescription("Number of concepts in the current forest."),
	); err != nil {
		return nil, err
	}
	if met.WSClients, err = m.Int64UpDownCounter("thoughtmap.ws.clients",
		metric.WithDescription("Number of connected websocket clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordExtraction records one backend call of the given kind ("concepts" or
// "followups"): the request counter, the matching latency histogram and, on
// failure, the error counter.
func (m *Metrics) RecordExtraction(ctx context.Context, kind string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ExtractionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
	m.ExtractionRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	h := m.ExtractionDuration
	if kind == KindFollowups {
		h = m.FollowupDuration
	}
	h.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSkip records a scheduler firing that was skipped for reason.
func (m *Metrics) RecordSkip(ctx context.Context, reason string) {
	m.ExtractionSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Request kinds reported by [Metrics.RecordExtraction].
const (
	KindConcepts  = "concepts"
	KindFollowups = "followups"
)

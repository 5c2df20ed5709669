// Package observe provides application-wide observability primitives for
// Mnemo: OpenTelemetry metrics, distributed tracing, and structured logging.
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

// meterName is the instrumentation scope name used for all Mnemo metrics.
const meterName = "github.com/lunavale/mnemo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// RetrievalDuration tracks end-to-end memory retrieval latency. Use with
	// attribute: attribute.String("strategy", ...)
	RetrievalDuration metric.Float64Histogram

	// RollupDuration tracks per-user rollup latency. Use with attribute:
	//   attribute.String("kind", ...)
	RollupDuration metric.Float64Histogram

	// --- Counters ---

	// TurnsSaved counts persisted conversation turns. Use with attribute:
	//   attribute.String("role", ...)
	TurnsSaved metric.Int64Counter

	// RollupRuns counts rollup executions per user. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	RollupRuns metric.Int64Counter

	// QueryRejections counts structured queries refused by the safety
	// validator.
	QueryRejections metric.Int64Counter

	// UsersErased counts full user-memory erasures.
	UsersErased metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// quick store reads up to slow summarisation calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RetrievalDuration, err = m.Float64Histogram("mnemo.retrieval.duration",
		metric.WithDescription("Latency of memory retrieval by strategy."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RollupDuration, err = m.Float64Histogram("mnemo.rollup.duration",
		metric.WithDescription("Latency of per-user rollup execution by kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TurnsSaved, err = m.Int64Counter("mnemo.turns.saved",
		metric.WithDescription("Total persisted conversation turns by role."),
	); err != nil {
		return nil, err
	}
	if met.RollupRuns, err = m.Int64Counter("mnemo.rollup.runs",
		metric.WithDescription("Total rollup executions by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.QueryRejections, err = m.Int64Counter("mnemo.query.rejections",
		metric.WithDescription("Total structured queries refused by the safety validator."),
	); err != nil {
		return nil, err
	}
	if met.UsersErased, err = m.Int64Counter("mnemo.users.erased",
		metric.WithDescription("Total full user-memory erasures."),
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

// RecordRetrieval records one retrieval latency observation.
func (m *Metrics) RecordRetrieval(ctx context.Context, strategy string, seconds float64) {
	m.RetrievalDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("strategy", strategy)),
	)
}

// RecordRollupRun records one rollup execution with its outcome.
func (m *Metrics) RecordRollupRun(ctx context.Context, kind, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	m.RollupRuns.Add(ctx, 1, attrs)
	m.RollupDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

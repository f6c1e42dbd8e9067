// Package observe provides the bot's OpenTelemetry metric instruments.
//
// A Prometheus exporter bridge is installed by [InitProvider] so metrics can
// be scraped from /metrics. Tests should use [NewMetrics] with their own
// [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/EugeneArbatsky/kbju-2026-bot"

// Status values used with the batch counters.
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusMismatch = "count_mismatch"
	StatusPartial  = "partial"
	StatusError    = "error"
)

// Metrics holds all metric instruments. Safe for concurrent use.
type Metrics struct {
	// EntriesLogged counts stored food entries.
	EntriesLogged metric.Int64Counter

	// BatchEdits counts batch edit attempts by status.
	BatchEdits metric.Int64Counter

	// BatchDeletes counts batch delete attempts by status.
	BatchDeletes metric.Int64Counter

	// DayRollovers counts day creations by trigger (first, boundary, manual).
	DayRollovers metric.Int64Counter

	// ProviderDuration tracks latency of the understanding and speech calls.
	ProviderDuration metric.Float64Histogram

	// ProviderErrors counts failed provider calls by kind.
	ProviderErrors metric.Int64Counter
}

var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EntriesLogged, err = m.Int64Counter("kbju.entries.logged",
		metric.WithDescription("Food entries stored."),
	); err != nil {
		return nil, err
	}
	if met.BatchEdits, err = m.Int64Counter("kbju.batch.edits",
		metric.WithDescription("Batch edits by status."),
	); err != nil {
		return nil, err
	}
	if met.BatchDeletes, err = m.Int64Counter("kbju.batch.deletes",
		metric.WithDescription("Batch deletes by status."),
	); err != nil {
		return nil, err
	}
	if met.DayRollovers, err = m.Int64Counter("kbju.day.rollovers",
		metric.WithDescription("Logical days created by trigger."),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("kbju.provider.duration",
		metric.WithDescription("Latency of understanding and transcription calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("kbju.provider.errors",
		metric.WithDescription("Failed understanding and transcription calls by kind."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics built from the global
// meter provider on first use.
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

// RecordEntries adds n stored entries.
func (m *Metrics) RecordEntries(ctx context.Context, n int) {
	m.EntriesLogged.Add(ctx, int64(n))
}

// RecordEdit counts one batch edit outcome.
func (m *Metrics) RecordEdit(ctx context.Context, status string) {
	m.BatchEdits.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDelete counts one batch delete outcome.
func (m *Metrics) RecordDelete(ctx context.Context, status string) {
	m.BatchDeletes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordRollover counts one day creation.
func (m *Metrics) RecordRollover(ctx context.Context, trigger string) {
	m.DayRollovers.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordProvider records the latency of a provider call started at start and
// counts it as an error when err is non-nil.
func (m *Metrics) RecordProvider(ctx context.Context, kind string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.ProviderDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		m.ProviderErrors.Add(ctx, 1, attrs)
	}
}

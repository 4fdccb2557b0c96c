// Package observe provides OpenTelemetry metrics for facecheck.
//
// Instruments are created from a [metric.MeterProvider]. [InitProvider]
// installs a Prometheus exporter bridge so the process can be scraped at
// /metrics. Tests should use [NewMetrics] with their own provider instead
// of [DefaultMetrics] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all facecheck metrics.
const meterName = "github.com/ayusman/facecheck"

// Metrics holds all metric instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// Sessions counts finished check-in sessions by outcome reason
	// ("matched" for a match).
	Sessions metric.Int64Counter

	// ActiveSessions is the number of sessions not yet closed.
	ActiveSessions metric.Int64UpDownCounter

	// SessionDuration is wall time from start to result.
	SessionDuration metric.Float64Histogram

	// TickDuration is the latency of one detection tick's embedding call.
	TickDuration metric.Float64Histogram

	// TicksDropped counts ticks skipped because one was already in flight.
	TicksDropped metric.Int64Counter

	// TickErrors counts embedding errors swallowed by the loop.
	TickErrors metric.Int64Counter

	// AttendanceSubmissions counts attendance submissions by status.
	AttendanceSubmissions metric.Int64Counter

	// HTTPRequestDuration tracks local API latency by method and route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are in seconds and sized for face embedding calls.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

var sessionBuckets = []float64{
	0.5, 1, 2, 5, 10, 20, 30, 60, 120,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Sessions, err = m.Int64Counter("facecheck.sessions",
		metric.WithDescription("Finished check-in sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("facecheck.active_sessions",
		metric.WithDescription("Check-in sessions currently running."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("facecheck.session.duration",
		metric.WithDescription("Time from session start to result."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("facecheck.tick.duration",
		metric.WithDescription("Latency of face embedding per detection tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TicksDropped, err = m.Int64Counter("facecheck.ticks.dropped",
		metric.WithDescription("Detection ticks skipped while another was in flight."),
	); err != nil {
		return nil, err
	}
	if met.TickErrors, err = m.Int64Counter("facecheck.ticks.errors",
		metric.WithDescription("Embedding errors absorbed by the detection loop."),
	); err != nil {
		return nil, err
	}
	if met.AttendanceSubmissions, err = m.Int64Counter("facecheck.attendance.submissions",
		metric.WithDescription("Attendance submissions by status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("facecheck.http.request.duration",
		metric.WithDescription("Local API latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built from the global
// provider. Panics if instrument creation fails, which the global provider
// never does.
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

// RecordSession records a finished session.
func (m *Metrics) RecordSession(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Sessions.Add(ctx, 1, attrs)
	m.SessionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordTick records one embedding call and whether it failed.
func (m *Metrics) RecordTick(ctx context.Context, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.TickErrors.Add(ctx, 1)
	}
	m.TickDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordSubmission records an attendance submission.
func (m *Metrics) RecordSubmission(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AttendanceSubmissions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

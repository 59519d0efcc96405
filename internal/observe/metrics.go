// Package observe holds the gateway's OpenTelemetry metrics. Instruments
// are exported to Prometheus through the bridge set up by InitProvider.
//
// All Metrics methods are no-ops on a nil receiver so components can run
// without metrics in tests.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/yoockh/callbridge"

// Metrics holds every instrument the gateway records.
type Metrics struct {
	// CallsActive is the number of calls between accept and teardown.
	CallsActive metric.Int64UpDownCounter

	// CallsAccepted counts bootstrap outcomes. Attribute: outcome.
	CallsAccepted metric.Int64Counter

	// CallsEnded counts finished calls. Attribute: reason.
	CallsEnded metric.Int64Counter

	// CallDuration is wall time from accept to close.
	CallDuration metric.Float64Histogram

	// AudioChunks counts frames relayed. Attribute: direction (in|out).
	AudioChunks metric.Int64Counter

	// AudioBytes counts PCM bytes relayed. Attribute: direction.
	AudioBytes metric.Int64Counter

	// AudioDropped counts frames that were not relayed. Attribute: reason.
	AudioDropped metric.Int64Counter

	// BatchSeconds is the playback length of each batch sent to a client.
	BatchSeconds metric.Float64Histogram

	// ProtocolErrors counts malformed client messages. Attribute: kind.
	ProtocolErrors metric.Int64Counter

	// BackendSignals counts signals and failures from the backend. Attribute: kind.
	BackendSignals metric.Int64Counter

	// HTTPRequestDuration is request latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

var callBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}

var batchBuckets = []float64{0.02, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CallsActive, err = m.Int64UpDownCounter("callbridge.calls.active",
		metric.WithDescription("Calls currently bridged."),
	); err != nil {
		return nil, err
	}
	if met.CallsAccepted, err = m.Int64Counter("callbridge.calls.bootstrap",
		metric.WithDescription("Connection attempts by bootstrap outcome."),
	); err != nil {
		return nil, err
	}
	if met.CallsEnded, err = m.Int64Counter("callbridge.calls.ended",
		metric.WithDescription("Finished calls by end reason."),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("callbridge.call.duration",
		metric.WithDescription("Call length from accept to close."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioChunks, err = m.Int64Counter("callbridge.audio.chunks",
		metric.WithDescription("Audio frames relayed by direction."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytes, err = m.Int64Counter("callbridge.audio.bytes",
		metric.WithDescription("PCM bytes relayed by direction."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.AudioDropped, err = m.Int64Counter("callbridge.audio.dropped",
		metric.WithDescription("Audio frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.BatchSeconds, err = m.Float64Histogram("callbridge.audio.batch",
		metric.WithDescription("Playback length of each batch delivered to a client."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(batchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("callbridge.protocol.errors",
		metric.WithDescription("Malformed client messages by kind."),
	); err != nil {
		return nil, err
	}
	if met.BackendSignals, err = m.Int64Counter("callbridge.backend.signals",
		metric.WithDescription("Backend signals and failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("callbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
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

// DefaultMetrics returns a process-wide Metrics built from the global meter
// provider on first use.
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

func (m *Metrics) CallStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.CallsActive.Add(ctx, 1)
	m.CallsAccepted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "accepted")))
}

// CallRejected records a bootstrap rejection by error code.
func (m *Metrics) CallRejected(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.CallsAccepted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", code)))
}

func (m *Metrics) CallEnded(ctx context.Context, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Add(ctx, -1)
	m.CallsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.CallDuration.Record(ctx, d.Seconds())
}

// AudioRelayed records one frame of n bytes; direction is "in" for client to
// backend and "out" for backend to client.
func (m *Metrics) AudioRelayed(ctx context.Context, direction string, n int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("direction", direction))
	m.AudioChunks.Add(ctx, 1, attrs)
	m.AudioBytes.Add(ctx, int64(n), attrs)
}

func (m *Metrics) AudioDroppedFor(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.AudioDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) BatchFlushed(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.BatchSeconds.Record(ctx, seconds)
}

func (m *Metrics) ProtocolError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) BackendSignal(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.BackendSignals.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) HTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}

// ABOUTME: OpenTelemetry metric instruments for the playback pipeline
// ABOUTME: Counts packets, loss and levels across all active sessions
package observe

import (
	"context"
	"math"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all player metrics.
const meterName = "github.com/sdplay/sdplay-go"

// Metrics holds the metric instruments for the playback pipeline. All
// fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// PacketsReceived counts delivered RTP payloads. Use with
	// attribute.String("stream", ...).
	PacketsReceived metric.Int64Counter

	// BytesReceived counts delivered payload bytes.
	BytesReceived metric.Int64Counter

	// PacketsLost counts packets the sequence tracker saw go missing.
	PacketsLost metric.Int64Counter

	// PacketsReordered counts duplicate and late packets.
	PacketsReordered metric.Int64Counter

	// PayloadSize tracks the distribution of payload sizes in bytes.
	PayloadSize metric.Int64Histogram

	// Level tracks the most recent peak level in dB per stream.
	Level metric.Float64Gauge

	// BufferedSamples tracks the elastic buffer depth per stream.
	BufferedSamples metric.Int64Gauge

	// ActiveSessions tracks the number of playing sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// payloadBuckets defines histogram bucket boundaries (in bytes) around
// the packet sizes common stream shapes produce.
var payloadBuckets = []float64{
	32, 64, 96, 128, 192, 256, 512, 1024, 2048, 4096,
}

// NewMetrics creates a fully initialised [Metrics] struct using the
// given [metric.MeterProvider]. Returns an error if any instrument
// creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PacketsReceived, err = m.Int64Counter("sdplay.packets.received",
		metric.WithDescription("Total RTP payloads delivered to playback by stream."),
	); err != nil {
		return nil, err
	}
	if met.BytesReceived, err = m.Int64Counter("sdplay.bytes.received",
		metric.WithDescription("Total payload bytes delivered to playback by stream."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.PacketsLost, err = m.Int64Counter("sdplay.packets.lost",
		metric.WithDescription("Total packets missing from the RTP sequence by stream."),
	); err != nil {
		return nil, err
	}
	if met.PacketsReordered, err = m.Int64Counter("sdplay.packets.reordered",
		metric.WithDescription("Total duplicate or late RTP packets by stream."),
	); err != nil {
		return nil, err
	}

	if met.PayloadSize, err = m.Int64Histogram("sdplay.payload.size",
		metric.WithDescription("Distribution of RTP payload sizes."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(payloadBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Level, err = m.Float64Gauge("sdplay.level.db",
		metric.WithDescription("Most recent peak audio level by stream."),
		metric.WithUnit("dB"),
	); err != nil {
		return nil, err
	}
	if met.BufferedSamples, err = m.Int64Gauge("sdplay.buffer.samples",
		metric.WithDescription("Elastic buffer depth after the last device read by stream."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("sdplay.active_sessions",
		metric.WithDescription("Number of currently playing sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating
// it on first call using [otel.GetMeterProvider]. Subsequent calls
// return the same pointer. Panics if instrument creation fails (should
// not happen with the global provider).
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

// streamAttr labels a metric with the stream it belongs to.
func streamAttr(stream string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("stream", stream))
}

// RecordPacket records one delivered payload of the given size.
func (m *Metrics) RecordPacket(ctx context.Context, stream string, payloadBytes int) {
	attrs := streamAttr(stream)
	m.PacketsReceived.Add(ctx, 1, attrs)
	m.BytesReceived.Add(ctx, int64(payloadBytes), attrs)
	m.PayloadSize.Record(ctx, int64(payloadBytes), attrs)
}

// RecordLoss records a sequence gap of the given size.
func (m *Metrics) RecordLoss(ctx context.Context, stream string, missing int) {
	m.PacketsLost.Add(ctx, int64(missing), streamAttr(stream))
}

// RecordReordered records one duplicate or late packet.
func (m *Metrics) RecordReordered(ctx context.Context, stream string) {
	m.PacketsReordered.Add(ctx, 1, streamAttr(stream))
}

// RecordLevel records the latest peak level. Silent windows come in as
// negative infinity and are skipped.
func (m *Metrics) RecordLevel(ctx context.Context, stream string, db float64) {
	if math.IsNaN(db) || math.IsInf(db, 0) {
		return
	}
	m.Level.Record(ctx, db, streamAttr(stream))
}

// RecordBufferDepth records the elastic buffer depth.
func (m *Metrics) RecordBufferDepth(ctx context.Context, stream string, samples int) {
	m.BufferedSamples.Record(ctx, int64(samples), streamAttr(stream))
}

// SessionStarted bumps the active session count.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionStopped drops the active session count.
func (m *Metrics) SessionStopped(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}

// ABOUTME: Tests for metric instrument creation and recording
// ABOUTME: Uses a manual reader to inspect recorded data points
package observe

import (
	"context"
	"math"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader
// for programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsCreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordPacket(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPacket(ctx, "239.69.11.44:5004", 96)
	m.RecordPacket(ctx, "239.69.11.44:5004", 96)

	rm := collect(t, reader)

	met := findMetric(rm, "sdplay.packets.received")
	if met == nil {
		t.Fatal("packet counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("packet counter is not a sum")
	}
	if got := sum.DataPoints[0].Value; got != 2 {
		t.Errorf("packets = %d, want 2", got)
	}

	met = findMetric(rm, "sdplay.bytes.received")
	if met == nil {
		t.Fatal("byte counter not found")
	}
	sum, ok = met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("byte counter is not a sum")
	}
	if got := sum.DataPoints[0].Value; got != 192 {
		t.Errorf("bytes = %d, want 192", got)
	}

	met = findMetric(rm, "sdplay.payload.size")
	if met == nil {
		t.Fatal("payload histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatal("payload size is not a histogram")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("payload samples = %d, want 2", got)
	}
}

func TestRecordLossAndReordered(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLoss(ctx, "239.69.11.44:5004", 3)
	m.RecordLoss(ctx, "239.69.11.44:5004", 2)
	m.RecordReordered(ctx, "239.69.11.44:5004")

	rm := collect(t, reader)

	met := findMetric(rm, "sdplay.packets.lost")
	if met == nil {
		t.Fatal("loss counter not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if got := sum.DataPoints[0].Value; got != 5 {
		t.Errorf("lost = %d, want 5", got)
	}

	met = findMetric(rm, "sdplay.packets.reordered")
	if met == nil {
		t.Fatal("reorder counter not found")
	}
	sum = met.Data.(metricdata.Sum[int64])
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("reordered = %d, want 1", got)
	}
}

func TestRecordLevelSkipsSilence(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLevel(ctx, "239.69.11.44:5004", math.Inf(-1))
	m.RecordLevel(ctx, "239.69.11.44:5004", math.NaN())

	rm := collect(t, reader)
	if met := findMetric(rm, "sdplay.level.db"); met != nil {
		gauge, ok := met.Data.(metricdata.Gauge[float64])
		if ok && len(gauge.DataPoints) != 0 {
			t.Errorf("silent window recorded: %+v", gauge.DataPoints)
		}
	}

	m.RecordLevel(ctx, "239.69.11.44:5004", -6.02)
	rm = collect(t, reader)

	met := findMetric(rm, "sdplay.level.db")
	if met == nil {
		t.Fatal("level gauge not found")
	}
	gauge, ok := met.Data.(metricdata.Gauge[float64])
	if !ok {
		t.Fatal("level is not a gauge")
	}
	if got := gauge.DataPoints[0].Value; got != -6.02 {
		t.Errorf("level = %v, want -6.02", got)
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionStopped(ctx)

	rm := collect(t, reader)
	met := findMetric(rm, "sdplay.active_sessions")
	if met == nil {
		t.Fatal("session gauge not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("session gauge is not a sum")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetricsReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}

package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: data is %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEntries(ctx, 3)
	m.RecordEdit(ctx, StatusOK)
	m.RecordEdit(ctx, StatusMismatch)
	m.RecordDelete(ctx, StatusPartial)
	m.RecordRollover(ctx, "manual")
	m.RecordRollover(ctx, "manual")

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"kbju.entries.logged", "", "", 3},
		{"kbju.batch.edits", "status", StatusOK, 1},
		{"kbju.batch.edits", "status", StatusMismatch, 1},
		{"kbju.batch.deletes", "status", StatusPartial, 1},
		{"kbju.day.rollovers", "trigger", "manual", 2},
	}
	for _, tc := range tests {
		got := findMetric(rm, tc.name)
		if got == nil {
			t.Fatalf("metric %s not found", tc.name)
		}
		if v := sumFor(t, got, tc.key, tc.value); v != tc.want {
			t.Errorf("%s{%s=%s} = %d, want %d", tc.name, tc.key, tc.value, v, tc.want)
		}
	}
}

func TestRecordProvider(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProvider(ctx, "analyze", time.Now(), nil)
	m.RecordProvider(ctx, "analyze", time.Now(), errors.New("boom"))

	rm := collect(t, reader)

	dur := findMetric(rm, "kbju.provider.duration")
	if dur == nil {
		t.Fatal("duration histogram not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration data is %T", dur.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("histogram points = %+v, want one point with count 2", hist.DataPoints)
	}

	errs := findMetric(rm, "kbju.provider.errors")
	if errs == nil {
		t.Fatal("error counter not found")
	}
	if v := sumFor(t, errs, "kind", "analyze"); v != 1 {
		t.Errorf("provider errors = %d, want 1", v)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}

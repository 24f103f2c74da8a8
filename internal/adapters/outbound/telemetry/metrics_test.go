package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMetricsFromMeter(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsFromMeter failed: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, not an int64 sum", m.Name, m.Data)
	}
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestNewMetrics_GlobalProvider(t *testing.T) {
	m, err := NewMetrics("stl-listing-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The global provider is a no-op until InitMetrics installs one.
	m.RecordValidation(context.Background(), "passed", time.Millisecond)
}

func TestMetrics_RecordValidation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordValidation(ctx, "passed", 5*time.Millisecond)
	m.RecordValidation(ctx, "passed", 7*time.Millisecond)
	m.RecordValidation(ctx, "failed", time.Millisecond)

	metrics := collect(t, reader)

	counter, ok := metrics["listing_validations_total"]
	if !ok {
		t.Fatal("listing_validations_total not recorded")
	}
	if got := sumFor(t, counter, attribute.String("outcome", "passed")); got != 2 {
		t.Errorf("expected 2 passed, got %d", got)
	}
	if got := sumFor(t, counter, attribute.String("outcome", "failed")); got != 1 {
		t.Errorf("expected 1 failed, got %d", got)
	}

	hist, ok := metrics["listing_validation_duration_seconds"]
	if !ok {
		t.Fatal("listing_validation_duration_seconds not recorded")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected histogram type %T", hist.Data)
	}
	var count uint64
	for _, dp := range data.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("expected 3 latency samples, got %d", count)
	}
}

func TestMetrics_RecordDiagnosticAndSubmission(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDiagnostic(ctx, "error", "borrow_cap_without_borrowing")
	m.RecordDiagnostic(ctx, "error", "borrow_cap_without_borrowing")
	m.RecordDiagnostic(ctx, "warning", "shared_price_feed")
	m.RecordSubmission(ctx, "stored")
	m.RecordSubmission(ctx, "existing")

	metrics := collect(t, reader)

	diag := metrics["listing_diagnostics_total"]
	if got := sumFor(t, diag, attribute.String("severity", "error"), attribute.String("code", "borrow_cap_without_borrowing")); got != 2 {
		t.Errorf("expected 2 borrow cap errors, got %d", got)
	}
	if got := sumFor(t, diag, attribute.String("severity", "warning"), attribute.String("code", "shared_price_feed")); got != 1 {
		t.Errorf("expected 1 shared feed warning, got %d", got)
	}

	subs := metrics["listing_submissions_total"]
	if got := sumFor(t, subs, attribute.String("status", "stored")); got != 1 {
		t.Errorf("expected 1 stored, got %d", got)
	}
	if got := sumFor(t, subs, attribute.String("status", "existing")); got != 1 {
		t.Errorf("expected 1 existing, got %d", got)
	}
}

func TestInitMetrics_NoEndpoint(t *testing.T) {
	shutdown, err := InitMetrics(context.Background(), MetricConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

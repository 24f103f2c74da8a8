package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.MetricsRecorder
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	validationLatency metric.Float64Histogram
	validations       metric.Int64Counter
	diagnostics       metric.Int64Counter
	submissions       metric.Int64Counter
}

// NewMetrics creates a recorder on the global meter provider.
// meterName should typically be the service name.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsFromMeter(otel.Meter(meterName))
}

// NewMetricsFromMeter creates a recorder on the given meter.
func NewMetricsFromMeter(meter metric.Meter) (*Metrics, error) {
	latency, err := meter.Float64Histogram(
		"listing_validation_duration_seconds",
		metric.WithDescription("Time taken to validate a listing configuration set"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing_validation_duration_seconds histogram: %w", err)
	}

	validations, err := meter.Int64Counter(
		"listing_validations_total",
		metric.WithDescription("Total number of validation passes by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing_validations_total counter: %w", err)
	}

	diagnostics, err := meter.Int64Counter(
		"listing_diagnostics_total",
		metric.WithDescription("Total number of diagnostics by severity and rule code"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing_diagnostics_total counter: %w", err)
	}

	submissions, err := meter.Int64Counter(
		"listing_submissions_total",
		metric.WithDescription("Total number of submission attempts by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing_submissions_total counter: %w", err)
	}

	return &Metrics{
		validationLatency: latency,
		validations:       validations,
		diagnostics:       diagnostics,
		submissions:       submissions,
	}, nil
}

// RecordValidation records the duration and outcome of one validation pass.
func (m *Metrics) RecordValidation(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.validationLatency.Record(ctx, duration.Seconds(), attrs)
	m.validations.Add(ctx, 1, attrs)
}

// RecordDiagnostic increments the diagnostics counter.
func (m *Metrics) RecordDiagnostic(ctx context.Context, severity, code string) {
	m.diagnostics.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", severity),
		attribute.String("code", code),
	))
}

// RecordSubmission increments the submissions counter.
func (m *Metrics) RecordSubmission(ctx context.Context, status string) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

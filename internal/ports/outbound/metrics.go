// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"
)

// MetricsRecorder provides an interface for recording application metrics.
// This allows the application layer to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordValidation records one validation pass. outcome is "passed" or "failed".
	RecordValidation(ctx context.Context, outcome string, duration time.Duration)

	// RecordDiagnostic counts a single diagnostic by severity and rule code.
	RecordDiagnostic(ctx context.Context, severity, code string)

	// RecordSubmission counts a submission attempt. status is "stored",
	// "existing" or "rejected".
	RecordSubmission(ctx context.Context, status string)
}

package listing_validator

import (
	"context"
	"errors"
	"testing"

	"github.com/archon-research/stl-listing/internal/testutil"
)

func TestService_ValidateRecordsMetrics(t *testing.T) {
	metrics := testutil.NewMockMetricsRecorder()
	svc := NewService(ServiceConfig{Metrics: metrics, Logger: testutil.DiscardLogger()})

	report := svc.Validate(context.Background(), testutil.SampleGroups())

	if !report.HasErrors() {
		t.Fatal("expected errors for the authored sample")
	}
	if got := metrics.Count("validation", OutcomeFailed); got != 1 {
		t.Errorf("expected 1 failed validation, got %d", got)
	}
	if got := metrics.Count("diagnostic", "error/"+string(CodeBorrowCapDisabled)); got != 2 {
		t.Errorf("expected 2 borrow cap diagnostics, got %d", got)
	}
	if got := metrics.Count("diagnostic", "warning/"+string(CodeSharedPriceFeed)); got != 2 {
		t.Errorf("expected 2 shared feed diagnostics, got %d", got)
	}
}

func TestService_Encode(t *testing.T) {
	metrics := testutil.NewMockMetricsRecorder()
	svc := NewService(ServiceConfig{Metrics: metrics, Logger: testutil.DiscardLogger()})

	encoded, err := svc.Encode(context.Background(), testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if encoded.Digest != Digest(encoded.Canonical) {
		t.Error("digest does not match canonical bytes")
	}
	if len(encoded.Report.Warnings) != 2 {
		t.Errorf("expected warnings to be carried on success, got %v", encoded.Report.Warnings)
	}
	if got := metrics.Count("validation", OutcomePassed); got != 1 {
		t.Errorf("expected 1 passed validation, got %d", got)
	}
}

func TestService_EncodeRejects(t *testing.T) {
	svc := NewService(ServiceConfig{Logger: testutil.DiscardLogger()})

	encoded, err := svc.Encode(context.Background(), testutil.SampleGroups())
	if encoded != nil {
		t.Error("expected nil result")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestNewService_NilLogger(t *testing.T) {
	svc := NewService(ServiceConfig{})
	if svc.logger == nil {
		t.Error("expected default logger")
	}
	// No metrics recorder must not panic.
	svc.Validate(context.Background(), testutil.ValidGroups())
}

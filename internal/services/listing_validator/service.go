package listing_validator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Validation outcomes reported to metrics.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
)

// ServiceConfig holds configuration for the listing validator service.
type ServiceConfig struct {
	// Metrics records validation outcomes. Optional.
	Metrics outbound.MetricsRecorder

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Service wraps Validate and Encode with logging and metrics. The checks
// themselves stay pure; the service only observes them.
type Service struct {
	metrics outbound.MetricsRecorder
	logger  *slog.Logger
}

// NewService creates a new listing validator service.
func NewService(config ServiceConfig) *Service {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Service{
		metrics: config.Metrics,
		logger:  config.Logger.With("component", "listing-validator"),
	}
}

// Encoded is a successfully encoded configuration set.
type Encoded struct {
	Submission *entity.CanonicalSubmission
	// Canonical is the canonical byte form of Submission.
	Canonical []byte
	Digest    common.Hash
	// Report holds the warnings raised while validating.
	Report *Report
}

// Validate validates the groups and returns the report.
func (s *Service) Validate(ctx context.Context, groups []entity.MarketGroup) *Report {
	start := time.Now()
	report := Validate(groups)
	s.observe(ctx, report, time.Since(start))
	return report
}

// Encode validates and encodes the groups. On hard errors it returns a
// *ValidationError carrying the report.
func (s *Service) Encode(ctx context.Context, groups []entity.MarketGroup) (*Encoded, error) {
	start := time.Now()
	sub, report, err := EncodeWithReport(groups)
	s.observe(ctx, report, time.Since(start))
	if err != nil {
		return nil, err
	}

	canonical, err := MarshalSubmission(sub)
	if err != nil {
		return nil, err
	}
	digest := Digest(canonical)

	s.logger.Info("encoded submission",
		"digest", digest.Hex(),
		"assets", len(sub.Listings),
		"warnings", len(report.Warnings),
	)

	return &Encoded{
		Submission: sub,
		Canonical:  canonical,
		Digest:     digest,
		Report:     report,
	}, nil
}

func (s *Service) observe(ctx context.Context, report *Report, duration time.Duration) {
	outcome := OutcomePassed
	if report.HasErrors() {
		outcome = OutcomeFailed
	}

	s.logger.Debug("validation complete",
		"outcome", outcome,
		"groups", report.Groups,
		"listings", report.Listings,
		"errors", len(report.Errors),
		"warnings", len(report.Warnings),
		"duration", duration,
	)
	for _, d := range report.Errors {
		s.logger.Debug("validation error", "diagnostic", d.String(), "code", d.Code)
	}

	if s.metrics == nil {
		return
	}
	s.metrics.RecordValidation(ctx, outcome, duration)
	for _, d := range report.Errors {
		s.metrics.RecordDiagnostic(ctx, string(SeverityError), string(d.Code))
	}
	for _, d := range report.Warnings {
		s.metrics.RecordDiagnostic(ctx, string(SeverityWarning), string(d.Code))
	}
}

// String summarizes an encoded submission for logs.
func (e *Encoded) String() string {
	return fmt.Sprintf("submission %s (%d assets)", e.Digest.Hex(), len(e.Submission.Listings))
}

// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/services/listing_validator"
	"github.com/archon-research/stl-listing/internal/services/submission"
)

// ListingService validates and encodes listing configuration sets.
// Inbound adapters (HTTP handlers, CLI) call these methods.
type ListingService interface {
	// Validate returns every error and warning found in the groups.
	Validate(ctx context.Context, groups []entity.MarketGroup) *listing_validator.Report

	// Encode returns the canonical submission, or a *listing_validator.ValidationError.
	Encode(ctx context.Context, groups []entity.MarketGroup) (*listing_validator.Encoded, error)
}

// FeedChecker probes the price feeds of an encoded submission.
type FeedChecker interface {
	// Check returns warnings about unhealthy feeds. It never returns hard errors.
	Check(ctx context.Context, sub *entity.CanonicalSubmission) ([]listing_validator.Diagnostic, error)
}

// SubmissionService stores and looks up immutable submissions.
type SubmissionService interface {
	Submit(ctx context.Context, groups []entity.MarketGroup) (*submission.Receipt, error)
	Get(ctx context.Context, digest common.Hash) (*entity.SubmissionRecord, error)
	History(ctx context.Context, asset common.Address) ([]*entity.SubmissionRecord, error)
}

// HealthChecker defines the interface for services that can report readiness and liveness.
type HealthChecker interface {
	// IsReady returns true when the service is ready to handle traffic,
	// i.e. its backing stores answer.
	IsReady() bool

	// IsHealthy returns true when the process is operating normally.
	IsHealthy() bool
}

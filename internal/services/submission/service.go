// Package submission stores encoded listing configurations as immutable,
// content-addressed submissions.
//
// Submit runs the full collaborator chain:
//
//	encode -> digest -> existing? -> archive (S3) -> store (PostgreSQL) -> announce (SNS)
//
// The repository is the source of truth. Archiving is write-once by digest,
// so a retried Submit never rewrites an artifact. Announcing is best effort:
// a publish failure is logged and counted but does not fail the submission.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/pkg/engineabi"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
	"github.com/archon-research/stl-listing/internal/services/listing_validator"
)

// Submission statuses reported to metrics.
const (
	StatusStored        = "stored"
	StatusExisting      = "existing"
	StatusRejected      = "rejected"
	StatusPublishFailed = "publish_failed"
)

// tracerName is the instrumentation name for this service.
const tracerName = "github.com/archon-research/stl-listing/internal/services/submission"

// ErrNotFound is returned when no submission has the requested digest.
var ErrNotFound = errors.New("submission not found")

// Config holds configuration for the submission service.
type Config struct {
	// Validator encodes configuration sets. Required.
	Validator *listing_validator.Service

	// Repository stores submissions. Required.
	Repository outbound.SubmissionRepository

	// Artifacts archives canonical bytes. Optional.
	Artifacts outbound.ArtifactArchive

	// Events announces stored submissions. Optional.
	Events outbound.EventSink

	// Pool, when set, adds listAssets calldata to receipts.
	Pool *engineabi.PoolContext

	// Metrics records submission outcomes. Optional.
	Metrics outbound.MetricsRecorder

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Receipt describes a stored submission.
type Receipt struct {
	Digest    common.Hash      `json:"digest"`
	Assets    []common.Address `json:"assets"`
	CreatedAt time.Time        `json:"createdAt"`

	// ArtifactKey is the archive key of the canonical bytes, if archived.
	ArtifactKey string `json:"artifactKey,omitempty"`

	// Calldata is the hex listAssets calldata, if a pool context is configured.
	Calldata string `json:"calldata,omitempty"`

	Warnings []listing_validator.Diagnostic `json:"warnings"`

	// AlreadyExisted is true when an identical submission was stored before.
	AlreadyExisted bool `json:"alreadyExisted"`
}

// Service implements the submission use case.
type Service struct {
	validator *listing_validator.Service
	repo      outbound.SubmissionRepository
	artifacts outbound.ArtifactArchive
	events    outbound.EventSink
	pool      *engineabi.PoolContext
	metrics   outbound.MetricsRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new submission service.
func NewService(config Config) (*Service, error) {
	if config.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if config.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Service{
		validator: config.Validator,
		repo:      config.Repository,
		artifacts: config.Artifacts,
		events:    config.Events,
		pool:      config.Pool,
		metrics:   config.Metrics,
		logger:    config.Logger.With("component", "submission-service"),
		now:       time.Now,
	}, nil
}

// Submit encodes the groups and stores the result. Hard validation errors are
// returned as *listing_validator.ValidationError and nothing is stored.
func (s *Service) Submit(ctx context.Context, groups []entity.MarketGroup) (receipt *Receipt, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "submission.submit",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("submission.groups", len(groups))),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission failed")
		}
		span.End()
	}()

	enc, err := s.validator.Encode(ctx, groups)
	if err != nil {
		var verr *listing_validator.ValidationError
		if errors.As(err, &verr) {
			s.record(ctx, StatusRejected)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("submission.digest", enc.Digest.Hex()))

	receipt = &Receipt{
		Digest:   enc.Digest,
		Assets:   enc.Submission.SortedAssets(),
		Warnings: enc.Report.Warnings,
	}
	if s.pool != nil {
		calldata, err := engineabi.PackListAssets(*s.pool, enc.Submission)
		if err != nil {
			return nil, fmt.Errorf("packing listAssets calldata: %w", err)
		}
		receipt.Calldata = hexutil.Encode(calldata)
	}

	existing, err := s.lookup(ctx, enc.Digest)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.existingReceipt(ctx, receipt, existing)
	}

	if receipt.ArtifactKey, err = s.archive(ctx, enc.Digest, enc.Canonical); err != nil {
		return nil, err
	}

	rec := &entity.SubmissionRecord{
		Digest:    enc.Digest,
		Payload:   enc.Canonical,
		Assets:    receipt.Assets,
		Warnings:  len(enc.Report.Warnings),
		CreatedAt: s.now().UTC(),
	}
	stored, err := s.store(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !stored {
		// Lost a race with an identical submission.
		existing, err := s.lookup(ctx, enc.Digest)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("submission %s was neither stored nor found", enc.Digest.Hex())
		}
		return s.existingReceipt(ctx, receipt, existing)
	}
	receipt.CreatedAt = rec.CreatedAt
	s.record(ctx, StatusStored)

	s.logger.Info("stored submission",
		"digest", enc.Digest.Hex(),
		"assets", len(receipt.Assets),
		"warnings", len(receipt.Warnings),
	)

	s.announce(ctx, receipt)
	return receipt, nil
}

func (s *Service) lookup(ctx context.Context, digest common.Hash) (*entity.SubmissionRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "submission.lookup")
	defer span.End()

	rec, err := s.repo.GetSubmission(ctx, digest)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("looking up submission %s: %w", digest.Hex(), err)
	}
	span.SetAttributes(attribute.Bool("submission.exists", rec != nil))
	return rec, nil
}

// archive writes the canonical bytes once per digest and returns their key.
// Without an archive configured it returns an empty key.
func (s *Service) archive(ctx context.Context, digest common.Hash, canonical []byte) (string, error) {
	if s.artifacts == nil {
		return "", nil
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "submission.archive",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	key, written, err := s.artifacts.Archive(ctx, digest, canonical)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive failed")
		return "", fmt.Errorf("archiving submission %s: %w", digest.Hex(), err)
	}
	span.SetAttributes(attribute.String("artifact.key", key), attribute.Bool("artifact.written", written))
	s.logger.Debug("archived submission", "digest", digest.Hex(), "key", key, "new", written)
	return key, nil
}

func (s *Service) store(ctx context.Context, rec *entity.SubmissionRecord) (bool, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "submission.store",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	stored, err := s.repo.SaveSubmission(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return false, fmt.Errorf("storing submission %s: %w", rec.Digest.Hex(), err)
	}
	span.SetAttributes(attribute.Bool("submission.stored", stored))
	return stored, nil
}

// existingReceipt answers a repeated submission. The artifact is archived
// again, which is a no-op when it is already there.
func (s *Service) existingReceipt(ctx context.Context, receipt *Receipt, existing *entity.SubmissionRecord) (*Receipt, error) {
	key, err := s.archive(ctx, existing.Digest, existing.Payload)
	if err != nil {
		return nil, err
	}
	receipt.ArtifactKey = key
	receipt.CreatedAt = existing.CreatedAt
	receipt.AlreadyExisted = true
	s.record(ctx, StatusExisting)
	s.logger.Info("submission already stored", "digest", existing.Digest.Hex(), "createdAt", existing.CreatedAt)
	return receipt, nil
}

func (s *Service) announce(ctx context.Context, receipt *Receipt) {
	if s.events == nil {
		return
	}

	assets := make([]string, len(receipt.Assets))
	for i, a := range receipt.Assets {
		assets[i] = a.Hex()
	}
	event := outbound.SubmissionEncodedEvent{
		Digest:      receipt.Digest.Hex(),
		Assets:      assets,
		ArtifactKey: receipt.ArtifactKey,
		Warnings:    len(receipt.Warnings),
		EncodedAt:   receipt.CreatedAt,
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "submission.announce",
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	if err := s.events.Publish(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		s.record(ctx, StatusPublishFailed)
		s.logger.Error("failed to announce submission", "digest", event.Digest, "error", err)
	}
}

func (s *Service) record(ctx context.Context, status string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(ctx, status)
	}
}

// Get returns the stored submission with the given digest, or ErrNotFound.
func (s *Service) Get(ctx context.Context, digest common.Hash) (*entity.SubmissionRecord, error) {
	rec, err := s.repo.GetSubmission(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("looking up submission %s: %w", digest.Hex(), err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// History lists every stored submission that listed the asset, oldest first.
// Re-listing an asset creates a new submission; earlier ones are never changed.
func (s *Service) History(ctx context.Context, asset common.Address) ([]*entity.SubmissionRecord, error) {
	recs, err := s.repo.ListSubmissionsByAsset(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("listing submissions for %s: %w", asset.Hex(), err)
	}
	return recs, nil
}

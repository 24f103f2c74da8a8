package submission

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/archon-research/stl-listing/internal/adapters/outbound/memory"
	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/pkg/engineabi"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
	"github.com/archon-research/stl-listing/internal/services/listing_validator"
	"github.com/archon-research/stl-listing/internal/testutil"
)

var submitTime = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	repo      *memory.SubmissionRepository
	artifacts *memory.ArtifactStore
	events    *memory.EventSink
	metrics   *testutil.MockMetricsRecorder
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		repo:      memory.NewSubmissionRepository(),
		artifacts: memory.NewArtifactStore(),
		events:    memory.NewEventSink(),
		metrics:   testutil.NewMockMetricsRecorder(),
	}
	cfg := Config{
		Validator:  listing_validator.NewService(listing_validator.ServiceConfig{Logger: testutil.DiscardLogger()}),
		Repository: f.repo,
		Artifacts:  f.artifacts,
		Events:     f.events,
		Metrics:    f.metrics,
		Logger:     testutil.DiscardLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	svc.now = func() time.Time { return submitTime }
	f.svc = svc
	return f
}

func TestNewService_Validation(t *testing.T) {
	validator := listing_validator.NewService(listing_validator.ServiceConfig{})
	repo := memory.NewSubmissionRepository()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing validator", Config{Repository: repo}, "validator is required"},
		{"missing repository", Config{Validator: validator}, "repository is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := NewService(Config{Validator: validator, Repository: repo}); err != nil {
		t.Errorf("expected minimal config to be accepted, got %v", err)
	}
}

func TestSubmit_StoresArchivesAndAnnounces(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	receipt, err := f.svc.Submit(ctx, testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if receipt.AlreadyExisted {
		t.Error("expected a new submission")
	}
	if !receipt.CreatedAt.Equal(submitTime) {
		t.Errorf("expected createdAt %v, got %v", submitTime, receipt.CreatedAt)
	}
	wantAssets := []common.Address{testutil.DAIAddress, testutil.USDTAddress, testutil.WETHAddress, testutil.USDCAddress}
	if len(receipt.Assets) != len(wantAssets) {
		t.Fatalf("expected %d assets, got %d", len(wantAssets), len(receipt.Assets))
	}
	for i, a := range wantAssets {
		if receipt.Assets[i] != a {
			t.Errorf("asset %d: expected %s, got %s", i, a.Hex(), receipt.Assets[i].Hex())
		}
	}
	if len(receipt.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %d", len(receipt.Warnings))
	}
	if receipt.Calldata != "" {
		t.Error("expected no calldata without a pool context")
	}

	// Stored record holds the canonical bytes under their digest.
	rec, err := f.repo.GetSubmission(ctx, receipt.Digest)
	if err != nil || rec == nil {
		t.Fatalf("expected stored record, got %v, %v", rec, err)
	}
	if listing_validator.Digest(rec.Payload) != receipt.Digest {
		t.Error("stored payload does not hash to the digest")
	}
	if rec.Warnings != 2 {
		t.Errorf("expected 2 warnings on record, got %d", rec.Warnings)
	}

	// Artifact is the same canonical bytes.
	if receipt.ArtifactKey != entity.ArtifactKey(receipt.Digest) {
		t.Errorf("unexpected artifact key %s", receipt.ArtifactKey)
	}
	data, ok := f.artifacts.Get(receipt.ArtifactKey)
	if !ok || !bytes.Equal(data, rec.Payload) {
		t.Error("expected archived artifact to equal the stored payload")
	}

	events := f.events.GetSubmissionEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Digest != receipt.Digest.Hex() || events[0].ArtifactKey != receipt.ArtifactKey || len(events[0].Assets) != 4 {
		t.Errorf("unexpected event %+v", events[0])
	}

	if got := f.metrics.Count("submission", StatusStored); got != 1 {
		t.Errorf("expected 1 stored metric, got %d", got)
	}
}

func TestSubmit_PermutedResubmitIsExisting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, testutil.ValidGroups())
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}

	f.svc.now = func() time.Time { return submitTime.Add(time.Hour) }
	groups := testutil.ValidGroups()
	groups[0], groups[1] = groups[1], groups[0]
	second, err := f.svc.Submit(ctx, groups)
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}

	if !second.AlreadyExisted {
		t.Error("expected AlreadyExisted on resubmit")
	}
	if second.Digest != first.Digest {
		t.Error("expected equal digests for permuted input")
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("expected original createdAt %v, got %v", first.CreatedAt, second.CreatedAt)
	}
	if len(f.events.GetEvents()) != 1 {
		t.Errorf("expected a single announcement, got %d", len(f.events.GetEvents()))
	}
	if f.artifacts.Len() != 1 {
		t.Errorf("expected a single artifact, got %d", f.artifacts.Len())
	}
	if got := f.metrics.Count("submission", StatusExisting); got != 1 {
		t.Errorf("expected 1 existing metric, got %d", got)
	}
}

func TestSubmit_ExistingWithoutArtifactIsArchived(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	enc, err := listing_validator.NewService(listing_validator.ServiceConfig{Logger: testutil.DiscardLogger()}).
		Encode(ctx, testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Stored before archiving was configured.
	if _, err := f.repo.SaveSubmission(ctx, &entity.SubmissionRecord{
		Digest:    enc.Digest,
		Payload:   enc.Canonical,
		Assets:    enc.Submission.SortedAssets(),
		CreatedAt: submitTime.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("SaveSubmission failed: %v", err)
	}

	receipt, err := f.svc.Submit(ctx, testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !receipt.AlreadyExisted {
		t.Error("expected AlreadyExisted")
	}
	data, ok := f.artifacts.Get(receipt.ArtifactKey)
	if !ok || !bytes.Equal(data, enc.Canonical) {
		t.Error("expected the stored payload to be archived under the receipt key")
	}
}

func TestSubmit_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	f := newFixture(t, nil)
	receipt, err := f.svc.Submit(context.Background(), testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	spans := make(map[string]sdktrace.ReadOnlySpan)
	for _, span := range recorder.Ended() {
		spans[span.Name()] = span
	}
	root, ok := spans["submission.submit"]
	if !ok {
		t.Fatalf("expected a submission.submit span, got %v", spans)
	}
	for _, name := range []string{"submission.lookup", "submission.archive", "submission.store", "submission.announce"} {
		span, ok := spans[name]
		if !ok {
			t.Errorf("expected a %s span", name)
			continue
		}
		if span.Parent().SpanID() != root.SpanContext().SpanID() {
			t.Errorf("expected %s to be a child of submission.submit", name)
		}
	}

	var digest string
	for _, kv := range root.Attributes() {
		if kv.Key == "submission.digest" {
			digest = kv.Value.AsString()
		}
	}
	if digest != receipt.Digest.Hex() {
		t.Errorf("expected digest attribute %s, got %q", receipt.Digest.Hex(), digest)
	}
}

func TestSubmit_HardErrorsStoreNothing(t *testing.T) {
	f := newFixture(t, nil)

	receipt, err := f.svc.Submit(context.Background(), testutil.SampleGroups())
	if receipt != nil {
		t.Error("expected no receipt")
	}
	var verr *listing_validator.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Report.Errors) != 2 {
		t.Errorf("expected the full report, got %v", verr.Report.Errors)
	}

	if f.artifacts.Len() != 0 || len(f.events.GetEvents()) != 0 {
		t.Error("expected nothing archived or announced")
	}
	if got := f.metrics.Count("submission", StatusRejected); got != 1 {
		t.Errorf("expected 1 rejected metric, got %d", got)
	}
}

func TestSubmit_Calldata(t *testing.T) {
	pool := &engineabi.PoolContext{NetworkName: "Ethereum", NetworkAbbreviation: "Eth"}
	f := newFixture(t, func(c *Config) { c.Pool = pool })

	receipt, err := f.svc.Submit(context.Background(), testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	parsed, err := engineabi.GetConfigEngineABI()
	if err != nil {
		t.Fatalf("GetConfigEngineABI failed: %v", err)
	}
	selector := "0x" + common.Bytes2Hex(parsed.Methods["listAssets"].ID)
	if !strings.HasPrefix(receipt.Calldata, selector) {
		t.Errorf("expected calldata to start with %s, got %.20s", selector, receipt.Calldata)
	}
}

func TestSubmit_OptionalCollaborators(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Artifacts = nil
		c.Events = nil
		c.Metrics = nil
	})

	receipt, err := f.svc.Submit(context.Background(), testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if receipt.ArtifactKey != "" {
		t.Errorf("expected no artifact key, got %s", receipt.ArtifactKey)
	}
}

type failingSink struct{}

func (failingSink) Publish(ctx context.Context, event outbound.Event) error {
	return errors.New("topic does not exist")
}
func (failingSink) Close() error { return nil }

func TestSubmit_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Events = failingSink{} })

	receipt, err := f.svc.Submit(context.Background(), testutil.ValidGroups())
	if err != nil {
		t.Fatalf("expected publish failure to be tolerated, got %v", err)
	}
	if receipt.AlreadyExisted {
		t.Error("expected a new submission")
	}
	if got := f.metrics.Count("submission", StatusPublishFailed); got != 1 {
		t.Errorf("expected 1 publish_failed metric, got %d", got)
	}
}

// racingRepository never reports an existing submission up front, but refuses
// to store, as if another writer got there first.
type racingRepository struct {
	*memory.SubmissionRepository
	gets int
}

func (r *racingRepository) GetSubmission(ctx context.Context, digest common.Hash) (*entity.SubmissionRecord, error) {
	r.gets++
	if r.gets == 1 {
		return nil, nil
	}
	return r.SubmissionRepository.GetSubmission(ctx, digest)
}

func TestSubmit_LostRaceReturnsExisting(t *testing.T) {
	inner := memory.NewSubmissionRepository()
	repo := &racingRepository{SubmissionRepository: inner}
	f := newFixture(t, func(c *Config) { c.Repository = repo })

	// Pre-store the submission the racer will collide with.
	enc, err := listing_validator.NewService(listing_validator.ServiceConfig{}).Encode(context.Background(), testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	earlier := submitTime.Add(-time.Minute)
	_, _ = inner.SaveSubmission(context.Background(), &entity.SubmissionRecord{
		Digest: enc.Digest, Payload: enc.Canonical, Assets: enc.Submission.SortedAssets(), CreatedAt: earlier,
	})

	receipt, err := f.svc.Submit(context.Background(), testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !receipt.AlreadyExisted || !receipt.CreatedAt.Equal(earlier) {
		t.Errorf("expected the earlier submission, got %+v", receipt)
	}
	if len(f.events.GetEvents()) != 0 {
		t.Error("expected no announcement for a lost race")
	}
}

func TestGetAndHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, testutil.ValidGroups())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Re-list USDC with a different reserve factor in a new submission.
	f.svc.now = func() time.Time { return submitTime.Add(24 * time.Hour) }
	relisted := testutil.ValidGroups()
	relisted[0].Listings[0].ReserveFactor = 15_00
	second, err := f.svc.Submit(ctx, relisted)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if second.Digest == first.Digest {
		t.Fatal("expected a new digest for a changed listing")
	}

	got, err := f.svc.Get(ctx, first.Digest)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Digest != first.Digest {
		t.Errorf("unexpected record %s", got.Digest.Hex())
	}

	if _, err := f.svc.Get(ctx, common.Hash{0x01}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	history, err := f.svc.History(ctx, testutil.USDCAddress)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(history))
	}
	if history[0].Digest != first.Digest || history[1].Digest != second.Digest {
		t.Error("expected history oldest first")
	}
}

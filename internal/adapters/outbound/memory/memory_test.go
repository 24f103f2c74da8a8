package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
	"github.com/archon-research/stl-listing/internal/testutil"
)

func record(seed byte, created time.Time, assets ...common.Address) *entity.SubmissionRecord {
	return &entity.SubmissionRecord{
		Digest:    common.BytesToHash([]byte{seed}),
		Payload:   []byte(`{"version":1}`),
		Assets:    assets,
		Warnings:  int(seed),
		CreatedAt: created,
	}
}

func TestSubmissionRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepository()
	rec := record(1, time.Unix(100, 0), testutil.USDCAddress)

	stored, err := repo.SaveSubmission(ctx, rec)
	if err != nil || !stored {
		t.Fatalf("expected stored, got %v, %v", stored, err)
	}

	stored, err = repo.SaveSubmission(ctx, record(1, time.Unix(200, 0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored {
		t.Error("expected duplicate digest to be ignored")
	}

	got, err := repo.GetSubmission(ctx, rec.Digest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || !got.CreatedAt.Equal(time.Unix(100, 0)) {
		t.Fatalf("expected the first record, got %+v", got)
	}

	// Mutating the returned copy must not affect the stored record.
	got.Payload[0] = 'X'
	again, _ := repo.GetSubmission(ctx, rec.Digest)
	if again.Payload[0] != '{' {
		t.Error("stored record was mutated through a returned copy")
	}

	missing, err := repo.GetSubmission(ctx, common.Hash{0xff})
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing digest, got %v, %v", missing, err)
	}
}

func TestSubmissionRepository_ListByAsset(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepository()

	_, _ = repo.SaveSubmission(ctx, record(3, time.Unix(300, 0), testutil.USDCAddress, testutil.WETHAddress))
	_, _ = repo.SaveSubmission(ctx, record(1, time.Unix(100, 0), testutil.USDCAddress))
	_, _ = repo.SaveSubmission(ctx, record(2, time.Unix(200, 0), testutil.DAIAddress))

	got, err := repo.ListSubmissionsByAsset(ctx, testutil.USDCAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(got))
	}
	if got[0].Warnings != 1 || got[1].Warnings != 3 {
		t.Errorf("expected oldest first, got %d then %d", got[0].Warnings, got[1].Warnings)
	}

	none, err := repo.ListSubmissionsByAsset(ctx, testutil.USDTAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no submissions, got %d", len(none))
	}
}

func TestEventSink_PublishAndInspect(t *testing.T) {
	ctx := context.Background()
	sink := NewEventSink()

	var seen int
	sink.SetOnPublish(func(outbound.Event) { seen++ })

	event := outbound.SubmissionEncodedEvent{Digest: "0x01", Assets: []string{"0xa"}}
	if err := sink.Publish(ctx, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seen != 1 {
		t.Errorf("expected callback once, got %d", seen)
	}
	events := sink.GetSubmissionEvents()
	if len(events) != 1 || events[0].Digest != "0x01" {
		t.Errorf("unexpected events %+v", events)
	}

	_ = sink.Close()
	_ = sink.Publish(ctx, event)
	if len(sink.GetEvents()) != 1 {
		t.Error("expected events after close to be dropped")
	}

	sink.Clear()
	if len(sink.GetEvents()) != 0 {
		t.Error("expected Clear to remove events")
	}
}

func TestArtifactStore_WriteOnce(t *testing.T) {
	ctx := context.Background()
	store := NewArtifactStore()
	digest := common.HexToHash("0x01")

	key, written, err := store.Archive(ctx, digest, []byte("first"))
	if err != nil || !written {
		t.Fatalf("expected first write to succeed, got %v, %v", written, err)
	}
	if key != entity.ArtifactKey(digest) {
		t.Errorf("unexpected key %s", key)
	}
	again, written, err := store.Archive(ctx, digest, []byte("second"))
	if err != nil || written {
		t.Fatalf("expected second write to be skipped, got %v, %v", written, err)
	}
	if again != key {
		t.Errorf("expected the same key on repeat, got %s", again)
	}

	data, ok := store.Get(key)
	if !ok || string(data) != "first" {
		t.Errorf("expected first content, got %q", data)
	}
	if _, _, err := store.Archive(ctx, common.HexToHash("0x02"), []byte("other")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 2 {
		t.Errorf("expected one artifact per digest, got %d", store.Len())
	}
}

func TestArtifactStore_CopiesInput(t *testing.T) {
	store := NewArtifactStore()
	payload := []byte("payload")
	key, _, _ := store.Archive(context.Background(), common.HexToHash("0x01"), payload)
	payload[0] = 'X'

	if data, _ := store.Get(key); string(data) != "payload" {
		t.Errorf("expected stored bytes to be independent of the caller, got %q", data)
	}
}

func TestFeedCache_TTL(t *testing.T) {
	ctx := context.Background()
	cache := NewFeedCache(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	status := &outbound.FeedStatus{Feed: testutil.ETHFeedAddress, Decimals: 8, Answer: big.NewInt(42)}
	if err := cache.SetFeedStatus(ctx, status); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := cache.GetFeedStatus(ctx, testutil.ETHFeedAddress)
	if got == nil || got.Answer.Int64() != 42 {
		t.Fatalf("expected cached status, got %+v", got)
	}
	got.Answer.SetInt64(7)
	again, _ := cache.GetFeedStatus(ctx, testutil.ETHFeedAddress)
	if again.Answer.Int64() != 42 {
		t.Error("cached answer was mutated through a returned copy")
	}

	now = now.Add(time.Minute)
	expired, _ := cache.GetFeedStatus(ctx, testutil.ETHFeedAddress)
	if expired != nil {
		t.Error("expected entry to expire")
	}

	miss, _ := cache.GetFeedStatus(ctx, testutil.StableFeedAddress)
	if miss != nil {
		t.Error("expected miss for unknown feed")
	}
}

package usecase

import (
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/rift-backfill/internal/domain/batch"
	"github.com/riskibarqy/rift-backfill/internal/infrastructure/objectstore"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

func TestEnqueue_WritesEnvelope(t *testing.T) {
	store := objectstore.NewMemoryStore()
	uploader, err := NewUploaderService(store, "prod", 1, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}
	t.Cleanup(uploader.Close)
	uploader.now = func() time.Time {
		return time.Date(2026, 3, 7, 12, 30, 45, 0, time.UTC)
	}

	matches := []batch.ProcessedMatch{
		{"metadata": map[string]any{"matchId": "NA1_1"}},
		{"metadata": map[string]any{"matchId": "NA1_2"}},
	}
	handle, err := uploader.Enqueue(matches)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := handle.Join(t.Context()); err != nil {
		t.Fatalf("join: %v", err)
	}

	wantKey := "matches/year=2026/month=03/day=07/batch_1772886645000_2_matches.json"
	if handle.Key() != wantKey {
		t.Fatalf("unexpected key: got=%s want=%s", handle.Key(), wantKey)
	}

	body, err := store.Get(t.Context(), wantKey)
	if err != nil {
		t.Fatalf("read batch object: %v", err)
	}
	var envelope batch.Envelope
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Metadata.MatchCount != 2 || envelope.Metadata.S3Key != wantKey {
		t.Fatalf("unexpected metadata: %+v", envelope.Metadata)
	}
	if envelope.Metadata.BatchID != "20260307_1772886645000" {
		t.Fatalf("unexpected batch id: %s", envelope.Metadata.BatchID)
	}
	if envelope.Metadata.UploadTimestamp != "2026-03-07T12:30:45Z" {
		t.Fatalf("unexpected upload timestamp: %s", envelope.Metadata.UploadTimestamp)
	}
	if len(envelope.Matches) != 2 {
		t.Fatalf("unexpected match count in body: %d", len(envelope.Matches))
	}
}

func TestEnqueue_TestSourceUsesTestPrefix(t *testing.T) {
	store := objectstore.NewMemoryStore()
	uploader := newTestUploader(t, store, batch.SourceTest)

	handle, err := uploader.Enqueue([]batch.ProcessedMatch{{"metadata": map[string]any{}}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := handle.Join(t.Context()); err != nil {
		t.Fatalf("join: %v", err)
	}

	keys, err := store.List(t.Context(), "test/matches/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected the batch under test/matches/, got %v", keys)
	}
}

func TestEnqueue_EmptyBatch(t *testing.T) {
	store := objectstore.NewMemoryStore()
	uploader := newTestUploader(t, store, "prod")

	handle, err := uploader.Enqueue(nil)
	if err != nil {
		t.Fatalf("enqueue empty batch: %v", err)
	}
	if handle != nil {
		t.Fatalf("empty batch should return a nil handle")
	}
	// A nil handle joins immediately, alone or in a drain.
	if err := handle.Join(t.Context()); err != nil {
		t.Fatalf("join nil handle: %v", err)
	}
	if err := JoinAll(t.Context(), []*UploadHandle{nil, nil}); err != nil {
		t.Fatalf("join all nil handles: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("empty batch must not upload anything")
	}
}

func TestEnqueue_CopiesBatchBeforeReturning(t *testing.T) {
	store := objectstore.NewMemoryStore()
	uploader := newTestUploader(t, store, "prod")

	matches := []batch.ProcessedMatch{
		{"metadata": map[string]any{"matchId": "NA1_1"}},
	}
	handle, err := uploader.Enqueue(matches)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// The processing loop resets and refills its accumulator right after
	// enqueueing; the upload must not observe that.
	matches[0] = batch.ProcessedMatch{"metadata": map[string]any{"matchId": "CLOBBERED"}}

	if err := handle.Join(t.Context()); err != nil {
		t.Fatalf("join: %v", err)
	}
	body, err := store.Get(t.Context(), handle.Key())
	if err != nil {
		t.Fatalf("read batch object: %v", err)
	}
	var envelope batch.Envelope
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	metadata, _ := envelope.Matches[0]["metadata"].(map[string]any)
	if metadata["matchId"] != "NA1_1" {
		t.Fatalf("upload observed caller mutation: %v", metadata)
	}
}

func TestEnqueue_UploadErrorSurfacesOnJoin(t *testing.T) {
	store := &failPutStore{Store: objectstore.NewMemoryStore(), failPrefix: "matches/"}
	uploader := newTestUploader(t, store, "prod")

	first, err := uploader.Enqueue([]batch.ProcessedMatch{{"a": "1"}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := uploader.Enqueue([]batch.ProcessedMatch{{"b": "2"}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := first.Join(t.Context()); err == nil {
		t.Fatalf("expected upload error on join")
	}
	if err := JoinAll(t.Context(), []*UploadHandle{first, second}); err == nil {
		t.Fatalf("expected drain to surface the upload error")
	}
}

func TestEnqueue_AfterCloseFails(t *testing.T) {
	store := objectstore.NewMemoryStore()
	uploader := newTestUploader(t, store, "prod")
	uploader.Close()

	if _, err := uploader.Enqueue([]batch.ProcessedMatch{{"a": "1"}}); err == nil {
		t.Fatalf("expected enqueue to fail after close")
	}
}

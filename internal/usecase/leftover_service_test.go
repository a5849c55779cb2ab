package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/rift-backfill/internal/domain/roster"
	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/infrastructure/objectstore"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

func newLeftoverService(t *testing.T, store window.Store, provider MatchProvider, cfg ProcessConfig) *LeftoverService {
	t.Helper()
	return NewLeftoverService(provider, store, newTestUploader(t, store, cfg.Source), nil, logging.NewNop(), cfg)
}

func seedLeftover(t *testing.T, store window.Store, startEpoch, endEpoch int64, ids ...string) string {
	t.Helper()

	body, err := sonic.Marshal(window.Document{
		Ranks:     roster.RankMap{"player-1": {Tier: "MASTER"}},
		MatchList: ids,
	})
	if err != nil {
		t.Fatalf("encode leftover: %v", err)
	}
	key := window.LeftoverKey(startEpoch, endEpoch)
	if err := store.Put(context.Background(), key, body); err != nil {
		t.Fatalf("seed leftover %s: %v", key, err)
	}
	return key
}

func TestLeftoverRun_NoLeftovers(t *testing.T) {
	store := objectstore.NewMemoryStore()
	service := newLeftoverService(t, store, &fakeMatchProvider{}, fastProcessConfig(0))

	report, err := service.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.State != StateCompleted {
		t.Fatalf("unexpected state: %s", report.State)
	}
	if report.Attempted != 0 || report.Batches != 0 {
		t.Fatalf("unexpected counters: %+v", report)
	}
}

func TestLeftoverRun_DrainsAndCleans(t *testing.T) {
	store := objectstore.NewMemoryStore()
	leftoverKey := seedLeftover(t, store, 100, 200, "NA1_0001", "NA1_0002")
	matchlistKey := window.MatchlistKey(100, 200)
	if err := store.Put(t.Context(), matchlistKey, []byte(`{}`)); err != nil {
		t.Fatalf("seed matchlist: %v", err)
	}

	provider := &fakeMatchProvider{}
	service := newLeftoverService(t, store, provider, fastProcessConfig(0))

	report, err := service.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.State != StateCompleted {
		t.Fatalf("unexpected state: %s", report.State)
	}
	if report.Attempted != 2 || report.Uploaded != 2 || report.Batches != 1 {
		t.Fatalf("unexpected counters: %+v", report)
	}

	if _, err := store.Get(t.Context(), leftoverKey); !errors.Is(err, window.ErrNotFound) {
		t.Fatalf("drained leftover must be deleted, got %v", err)
	}
	if _, err := store.Get(t.Context(), matchlistKey); !errors.Is(err, window.ErrNotFound) {
		t.Fatalf("originating window object must be deleted, got %v", err)
	}

	batches, err := store.List(t.Context(), "matches/")
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("unexpected batch objects: %v", batches)
	}
}

func TestLeftoverRun_SkipsMalformedKey(t *testing.T) {
	store := objectstore.NewMemoryStore()
	badKey := window.LeftoverPrefix + "garbage.json"
	if err := store.Put(t.Context(), badKey, []byte(`{}`)); err != nil {
		t.Fatalf("seed malformed leftover: %v", err)
	}
	goodKey := seedLeftover(t, store, 100, 200, "NA1_0001")

	service := newLeftoverService(t, store, &fakeMatchProvider{}, fastProcessConfig(0))

	report, err := service.Run(t.Context())
	if err == nil {
		t.Fatalf("expected error for the malformed leftover")
	}
	if !strings.Contains(err.Error(), "garbage") {
		t.Fatalf("error should name the malformed key: %v", err)
	}

	// One bad object must not block the rest of the sweep.
	if report.State != StateErrorCheckpointed {
		t.Fatalf("unexpected state: %s", report.State)
	}
	if report.Attempted != 1 || report.Batches != 1 {
		t.Fatalf("unexpected counters: %+v", report)
	}
	if _, err := store.Get(t.Context(), goodKey); !errors.Is(err, window.ErrNotFound) {
		t.Fatalf("good leftover must still be drained, got %v", err)
	}
	if _, err := store.Get(t.Context(), badKey); err != nil {
		t.Fatalf("malformed object must be left behind for inspection: %v", err)
	}
}

func TestLeftoverRun_ExpiredStopsSweep(t *testing.T) {
	store := objectstore.NewMemoryStore()
	first := seedLeftover(t, store, 100, 200, "NA1_0001")
	second := seedLeftover(t, store, 300, 400, "NA1_0002")

	provider := &fakeMatchProvider{}
	cfg := fastProcessConfig(0)
	cfg.KeyExpiresAt = time.Now().Add(-time.Hour)
	service := newLeftoverService(t, store, provider, cfg)

	report, err := service.Run(t.Context())
	if err != nil {
		t.Fatalf("expiry is an expected stop, got error: %v", err)
	}

	if report.State != StateExpiredCheckpointed {
		t.Fatalf("unexpected state: %s", report.State)
	}
	if report.LeftoverKey != first {
		t.Fatalf("sweep must stop at the first expired window: %s", report.LeftoverKey)
	}
	if provider.callCount() != 0 {
		t.Fatalf("expired sweep must not fetch: %d calls", provider.callCount())
	}
	for _, key := range []string{first, second} {
		if _, err := store.Get(t.Context(), key); err != nil {
			t.Fatalf("leftover %s must survive an expired sweep: %v", key, err)
		}
	}
}

func TestLeftoverRun_CheckpointFailureStopsSweep(t *testing.T) {
	memory := objectstore.NewMemoryStore()
	seedLeftover(t, memory, 100, 200, "NA1_A1")
	seedLeftover(t, memory, 300, 400, "NA1_B1")
	store := &failPutStore{Store: memory, failPrefix: window.LeftoverPrefix}

	provider := &fakeMatchProvider{fetch: func(matchID string) (map[string]any, error) {
		if matchID == "NA1_A1" {
			return nil, errors.New("connection reset")
		}
		return matchDoc(matchID), nil
	}}
	service := newLeftoverService(t, store, provider, fastProcessConfig(0))

	_, err := service.Run(t.Context())
	if !errors.Is(err, ErrCheckpointPersist) {
		t.Fatalf("expected ErrCheckpointPersist, got %v", err)
	}

	// Losing a checkpoint once means every remaining window is at the same
	// risk, so the second leftover is never touched.
	if provider.callCount() != 1 || provider.calls[0] != "NA1_A1" {
		t.Fatalf("unexpected fetches: %v", provider.calls)
	}
}

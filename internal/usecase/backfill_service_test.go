package usecase

import (
	"errors"
	"fmt"
	"testing"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/rift-backfill/internal/domain/batch"
	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/infrastructure/objectstore"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

func newBackfillService(t *testing.T, ladder *fakeLadderProvider, history *fakeHistoryProvider, matches *fakeMatchProvider, store window.Store) *BackfillService {
	t.Helper()
	return NewBackfillService(
		NewRosterService(ladder, 0, logging.NewNop()),
		NewCollectorService(history, nil, logging.NewNop()),
		matches,
		store,
		newTestUploader(t, store, "prod"),
		nil,
		logging.NewNop(),
		BackfillConfig{
			Source:     "prod",
			StartEpoch: 1754006400,
			EndEpoch:   1754092800,
			Process:    fastProcessConfig(3),
		},
	)
}

func masterLadder() *fakeLadderProvider {
	return &fakeLadderProvider{
		apex: map[string][]ExternalLeagueEntry{
			"master": {{PUUID: "player-1", Tier: "MASTER", LeaguePoints: 500}},
		},
	}
}

func TestRun_EmptyWindowCompletes(t *testing.T) {
	store := objectstore.NewMemoryStore()
	matches := &fakeMatchProvider{}
	service := newBackfillService(t, masterLadder(), &fakeHistoryProvider{}, matches, store)

	report, err := service.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.State != StateCompleted {
		t.Fatalf("unexpected state: %s", report.State)
	}
	if matches.callCount() != 0 {
		t.Fatalf("nothing should be fetched for an empty window: %d calls", matches.callCount())
	}
	if store.Len() != 0 {
		t.Fatalf("an empty window must not be persisted: %d objects", store.Len())
	}
}

func TestRun_CompletedWindowCleansMatchlist(t *testing.T) {
	store := objectstore.NewMemoryStore()
	history := &fakeHistoryProvider{
		ids: map[string][]string{"player-1": {"NA1_0002", "NA1_0001"}},
	}
	matches := &fakeMatchProvider{}
	service := newBackfillService(t, masterLadder(), history, matches, store)

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
	if len(matches.calls) != 2 || matches.calls[0] != "NA1_0001" {
		t.Fatalf("matches must be fetched in sorted order: %v", matches.calls)
	}

	matchlists, err := store.List(t.Context(), window.MatchlistPrefix)
	if err != nil {
		t.Fatalf("list matchlists: %v", err)
	}
	if len(matchlists) != 0 {
		t.Fatalf("completed run must clean up its window object: %v", matchlists)
	}

	keys, err := store.List(t.Context(), "matches/")
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("unexpected batch objects: %v", keys)
	}

	body, err := store.Get(t.Context(), keys[0])
	if err != nil {
		t.Fatalf("read batch: %v", err)
	}
	var envelope batch.Envelope
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(envelope.Matches) != 2 {
		t.Fatalf("unexpected batch size: %d", len(envelope.Matches))
	}

	first := envelope.Matches[0]
	if first["source"] != "prod" {
		t.Fatalf("match not stamped with its source: %v", first["source"])
	}
	info, _ := first["info"].(map[string]any)
	participants, _ := info["participants"].([]any)
	if len(participants) != 1 {
		t.Fatalf("unexpected participants: %v", info)
	}
	participant, _ := participants[0].(map[string]any)
	if participant["tier"] != "MASTER" {
		t.Fatalf("participant missing rank enrichment: %v", participant)
	}
	if lp, ok := participant["lp"].(float64); !ok || lp != 500 {
		t.Fatalf("unexpected league points: %v", participant["lp"])
	}
}

func TestRun_FetchFailureKeepsWindowAndCheckpoints(t *testing.T) {
	store := objectstore.NewMemoryStore()
	history := &fakeHistoryProvider{
		ids: map[string][]string{"player-1": {"NA1_0001", "NA1_0002"}},
	}
	matches := &fakeMatchProvider{fetch: func(matchID string) (map[string]any, error) {
		if matchID == "NA1_0002" {
			return nil, fmt.Errorf("connection reset")
		}
		return matchDoc(matchID), nil
	}}
	service := newBackfillService(t, masterLadder(), history, matches, store)

	report, err := service.Run(t.Context())
	if err == nil {
		t.Fatalf("expected error after fetch failure")
	}
	if errors.Is(err, ErrCheckpointPersist) {
		t.Fatalf("fetch failure must not look like a checkpoint failure: %v", err)
	}

	if report.State != StateErrorCheckpointed {
		t.Fatalf("unexpected state: %s", report.State)
	}
	if report.Attempted != 1 || report.Uploaded != 1 || report.Batches != 1 {
		t.Fatalf("unexpected counters: %+v", report)
	}

	// The window object stays behind so a re-drive can find it.
	if _, err := store.Get(t.Context(), window.MatchlistKey(1754006400, 1754092800)); err != nil {
		t.Fatalf("matchlist object must survive a failed run: %v", err)
	}

	doc := readLeftover(t, store, window.LeftoverKey(1754006400, 1754092800))
	if len(doc.MatchList) != 1 || doc.MatchList[0] != "NA1_0002" {
		t.Fatalf("unexpected remainder: %v", doc.MatchList)
	}
	if doc.Ranks["player-1"].Tier != "MASTER" {
		t.Fatalf("checkpoint lost the rank map: %+v", doc.Ranks)
	}
}

func TestRun_RosterFailureStopsBeforeCollection(t *testing.T) {
	store := objectstore.NewMemoryStore()
	ladder := &fakeLadderProvider{apexErr: errors.New("503 from upstream")}
	history := &fakeHistoryProvider{}
	service := newBackfillService(t, ladder, history, &fakeMatchProvider{}, store)

	report, err := service.Run(t.Context())
	if err == nil {
		t.Fatalf("expected error when the roster build fails")
	}
	if report.State != StateCollecting {
		t.Fatalf("unexpected state: %s", report.State)
	}
	if len(history.calls) != 0 {
		t.Fatalf("collection must not start without a roster: %v", history.calls)
	}
	if store.Len() != 0 {
		t.Fatalf("nothing should be persisted: %d objects", store.Len())
	}
}

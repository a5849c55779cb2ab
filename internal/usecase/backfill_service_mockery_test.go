package usecase

import (
	"errors"
	"strings"
	"testing"

	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	windowmock "github.com/riskibarqy/rift-backfill/internal/mocks/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

func newMockedBackfillService(t *testing.T, store *windowmock.Store, matches *fakeMatchProvider) *BackfillService {
	t.Helper()
	history := &fakeHistoryProvider{
		ids: map[string][]string{"player-1": {"NA1_0001"}},
	}
	return NewBackfillService(
		NewRosterService(masterLadder(), 0, logging.NewNop()),
		NewCollectorService(history, nil, logging.NewNop()),
		matches,
		store,
		newTestUploader(t, store, "prod"),
		nil,
		logging.NewNop(),
		BackfillConfig{
			Source:     "prod",
			StartEpoch: 100,
			EndEpoch:   200,
			Process:    fastProcessConfig(0),
		},
	)
}

func TestBackfillService_Run_WindowPersistFailureUsingMockery(t *testing.T) {
	t.Parallel()

	store := windowmock.NewStore(t)
	matches := &fakeMatchProvider{}
	service := newMockedBackfillService(t, store, matches)

	store.
		On("Put", mock.Anything, window.MatchlistKey(100, 200), mock.MatchedBy(func(body []byte) bool { return len(body) > 0 })).
		Return(errors.New("object store unavailable")).
		Once()

	report, err := service.Run(t.Context())
	if !errors.Is(err, ErrCheckpointPersist) {
		t.Fatalf("expected ErrCheckpointPersist, got %v", err)
	}
	if report.State != StateCollecting {
		t.Fatalf("unexpected state: %s", report.State)
	}
	if matches.callCount() != 0 {
		t.Fatalf("no match may be fetched without a persisted window: %d calls", matches.callCount())
	}
}

func TestBackfillService_Run_CleanupFailureToleratedUsingMockery(t *testing.T) {
	t.Parallel()

	store := windowmock.NewStore(t)
	matches := &fakeMatchProvider{}
	service := newMockedBackfillService(t, store, matches)

	windowKey := window.MatchlistKey(100, 200)
	store.
		On("Put", mock.Anything, windowKey, mock.Anything).
		Return(nil).
		Once()
	store.
		On("Put", mock.Anything, mock.MatchedBy(func(key string) bool { return strings.HasPrefix(key, "matches/") }), mock.Anything).
		Return(nil).
		Once()
	store.
		On("Delete", mock.Anything, windowKey).
		Return(errors.New("object store unavailable")).
		Once()

	report, err := service.Run(t.Context())
	if err != nil {
		t.Fatalf("stale window cleanup is best effort, got error: %v", err)
	}
	if report.State != StateCompleted {
		t.Fatalf("unexpected state: %s", report.State)
	}
	if report.Uploaded != 1 || report.Batches != 1 {
		t.Fatalf("unexpected counters: %+v", report)
	}
}

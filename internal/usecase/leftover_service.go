package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

// LeftoverService re-drives checkpointed windows. Each leftover document is
// processed exactly like a fresh window, with the leftover object itself as
// the checkpoint target, so the remainder only ever shrinks in place.
type LeftoverService struct {
	store    window.Store
	proc     *processor
	progress *Progress
	logger   *logging.Logger
}

func NewLeftoverService(
	matches MatchProvider,
	store window.Store,
	uploader *UploaderService,
	progress *Progress,
	logger *logging.Logger,
	cfg ProcessConfig,
) *LeftoverService {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeftoverService{
		store:    store,
		proc:     newProcessor(matches, store, uploader, progress, logger, cfg),
		progress: progress,
		logger:   logger,
	}
}

// Run sweeps every leftover object in key order. Malformed documents are
// skipped, a processing error moves on to the next leftover, and an expired
// credential stops the sweep entirely. The report aggregates all windows.
func (s *LeftoverService) Run(ctx context.Context) (RunReport, error) {
	ctx, span := startUsecaseSpan(ctx, "LeftoverService.Run")
	defer span.End()

	started := time.Now()
	s.progress.SetState(StateProcessing)

	keys, err := s.store.List(ctx, window.LeftoverPrefix)
	if err != nil {
		return RunReport{}, fmt.Errorf("%w: list leftovers: %v", ErrDependencyUnavailable, err)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		s.progress.SetState(StateCompleted)
		s.logger.InfoContext(ctx, "no leftovers to process")
		return RunReport{State: StateCompleted}, nil
	}
	s.logger.InfoContext(ctx, "leftover sweep starting", "leftovers", len(keys))

	total := RunReport{State: StateCompleted}
	var firstErr error
	for idx, key := range keys {
		report, err := s.processLeftover(ctx, key)
		total.Attempted += report.Attempted
		total.Uploaded += report.Uploaded
		total.NoData += report.NoData
		total.Batches += report.Batches

		if err != nil {
			s.logger.ErrorContext(ctx, "leftover processing failed", "key", key, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("leftover %s: %w", key, err)
			}
			if total.State == StateCompleted {
				total.State = StateErrorCheckpointed
			}
			if stderrors.Is(err, ErrCheckpointPersist) {
				// A checkpoint that cannot be written means continuing
				// would risk the same loss on every remaining window.
				break
			}
			continue
		}

		if report.State == StateExpiredCheckpointed {
			total.State = StateExpiredCheckpointed
			total.LeftoverKey = key
			s.logger.WarnContext(ctx, "credential window expired, sweep stopped",
				"key", key,
				"skipped", len(keys)-idx-1,
			)
			break
		}
	}

	s.progress.SetState(total.State)
	s.logger.InfoContext(ctx, "leftover sweep finished",
		"state", total.State,
		"attempted", total.Attempted,
		"uploaded", total.Uploaded,
		"no_data", total.NoData,
		"batches", total.Batches,
		"took", time.Since(started).String(),
	)
	return total, firstErr
}

func (s *LeftoverService) processLeftover(ctx context.Context, key string) (RunReport, error) {
	body, err := s.store.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, window.ErrNotFound) {
			// Raced with a concurrent sweep; nothing left to do here.
			s.logger.WarnContext(ctx, "leftover vanished before read", "key", key)
			return RunReport{State: StateCompleted}, nil
		}
		return RunReport{}, fmt.Errorf("%w: read leftover: %v", ErrDependencyUnavailable, err)
	}

	var doc window.Document
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return RunReport{}, fmt.Errorf("decode leftover: %w", err)
	}

	startEpoch, endEpoch, err := window.ParseLeftoverKey(key)
	if err != nil {
		return RunReport{}, err
	}
	win := window.FromDocument(doc, startEpoch, endEpoch)
	s.logger.InfoContext(ctx, "processing leftover", "key", key, "match_ids", len(win.MatchIDs))

	report, err := s.proc.processMatchList(ctx, win, key)
	if err != nil {
		return report, err
	}

	if report.State == StateCompleted {
		s.cleanup(ctx, key, window.MatchlistKey(startEpoch, endEpoch))
	}
	return report, nil
}

// cleanup removes a drained leftover and its originating window object.
// Either may already be gone; anything else is logged and left behind.
func (s *LeftoverService) cleanup(ctx context.Context, leftoverKey, windowKey string) {
	for _, key := range []string{leftoverKey, windowKey} {
		if err := s.store.Delete(ctx, key); err != nil && !stderrors.Is(err, window.ErrNotFound) {
			s.logger.WarnContext(ctx, "leftover cleanup failed", "key", key, "error", err)
		}
	}
}

package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

// BackfillConfig describes one backfill window run.
type BackfillConfig struct {
	Source     string
	StartEpoch int64
	EndEpoch   int64
	Process    ProcessConfig
}

// BackfillService drives a full window: build the ranked roster, collect the
// match-id window, persist it, then process it into enriched batches. Every
// phase transition is observable through the shared Progress.
type BackfillService struct {
	roster    *RosterService
	collector *CollectorService
	store     window.Store
	proc      *processor
	progress  *Progress
	logger    *logging.Logger
	cfg       BackfillConfig
}

func NewBackfillService(
	roster *RosterService,
	collector *CollectorService,
	matches MatchProvider,
	store window.Store,
	uploader *UploaderService,
	progress *Progress,
	logger *logging.Logger,
	cfg BackfillConfig,
) *BackfillService {
	if logger == nil {
		logger = logging.Default()
	}
	cfg.Process.Source = cfg.Source
	return &BackfillService{
		roster:    roster,
		collector: collector,
		store:     store,
		proc:      newProcessor(matches, store, uploader, progress, logger, cfg.Process),
		progress:  progress,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run executes the window end to end and reports how it ended. The returned
// error is nil only for COMPLETED and EXPIRED_CHECKPOINTED outcomes; an
// expired credential is an expected stop, not a failure.
func (s *BackfillService) Run(ctx context.Context) (RunReport, error) {
	ctx, span := startUsecaseSpan(ctx, "BackfillService.Run")
	defer span.End()

	started := time.Now()
	s.progress.SetState(StateCollecting)
	s.logger.InfoContext(ctx, "backfill run starting",
		"source", s.cfg.Source,
		"start_epoch", s.cfg.StartEpoch,
		"end_epoch", s.cfg.EndEpoch,
	)

	ros, err := s.roster.Build(ctx)
	if err != nil {
		return RunReport{State: StateCollecting}, fmt.Errorf("build roster: %w", err)
	}

	win, err := s.collector.Collect(ctx, ros, s.cfg.StartEpoch, s.cfg.EndEpoch)
	if err != nil {
		return RunReport{State: StateCollecting}, fmt.Errorf("collect window: %w", err)
	}

	if win.Empty() {
		s.progress.SetState(StateCompleted)
		s.logger.InfoContext(ctx, "window empty, nothing to process",
			"start_epoch", s.cfg.StartEpoch,
			"end_epoch", s.cfg.EndEpoch,
		)
		return RunReport{State: StateCompleted}, nil
	}

	windowKey := window.MatchlistKey(s.cfg.StartEpoch, s.cfg.EndEpoch)
	if err := s.proc.persistDocument(ctx, windowKey, win.Document()); err != nil {
		// Losing the window here would discard the whole collection phase,
		// so this failure carries the data-loss error class.
		return RunReport{State: StateCollecting}, fmt.Errorf("%w: persist window %s: %v", ErrCheckpointPersist, windowKey, err)
	}
	s.progress.SetState(StatePersistedWindow)
	s.logger.InfoContext(ctx, "window persisted", "key", windowKey, "match_ids", len(win.MatchIDs))

	report, err := s.proc.processMatchList(ctx, win, window.LeftoverKey(s.cfg.StartEpoch, s.cfg.EndEpoch))
	if err != nil {
		s.logger.ErrorContext(ctx, "backfill run stopped",
			"state", report.State,
			"attempted", report.Attempted,
			"leftover_key", report.LeftoverKey,
			"error", err,
		)
		return report, err
	}

	if report.State == StateCompleted {
		// Best effort: the batches are durable, a stale window object is
		// only clutter for the leftover sweeper to skip.
		if err := s.store.Delete(ctx, windowKey); err != nil && !stderrors.Is(err, window.ErrNotFound) {
			s.logger.WarnContext(ctx, "window object cleanup failed", "key", windowKey, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "backfill run finished",
		"state", report.State,
		"attempted", report.Attempted,
		"uploaded", report.Uploaded,
		"no_data", report.NoData,
		"batches", report.Batches,
		"took", time.Since(started).String(),
	)
	return report, nil
}

package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/rift-backfill/internal/domain/batch"
	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

// Run states. A window always ends in COMPLETED, EXPIRED_CHECKPOINTED or
// ERROR_CHECKPOINTED; the other states are passed through on the way.
const (
	StateCollecting          = "COLLECTING"
	StatePersistedWindow     = "PERSISTED_WINDOW"
	StateProcessing          = "PROCESSING"
	StateCompleted           = "COMPLETED"
	StateExpiredCheckpointed = "EXPIRED_CHECKPOINTED"
	StateErrorCheckpointed   = "ERROR_CHECKPOINTED"
)

type MatchProvider interface {
	FetchMatch(ctx context.Context, matchID string) (map[string]any, error)
}

// RunReport summarizes one window run. Attempted counts ids that are durably
// accounted for (uploaded or no-data); anything else is in the leftover.
type RunReport struct {
	State       string
	Attempted   int
	Uploaded    int
	NoData      int
	Batches     int
	LeftoverKey string
}

// ProcessConfig tunes the shared processing loop.
type ProcessConfig struct {
	Source         string
	KeyExpiresAt   time.Time
	FlushThreshold int
	PutRetries     int
	PutDelay       time.Duration
}

func (c ProcessConfig) withDefaults() ProcessConfig {
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 500
	}
	if c.PutRetries <= 0 {
		c.PutRetries = 3
	}
	if c.PutDelay <= 0 {
		c.PutDelay = 30 * time.Second
	}
	return c
}

// processor walks a persisted match-id list in order, enriches and batches
// the fetched documents, and checkpoints the positional remainder whenever
// the walk cannot finish. It is shared by the backfill and leftover
// pipelines.
type processor struct {
	provider MatchProvider
	store    window.Store
	uploader *UploaderService
	progress *Progress
	logger   *logging.Logger
	cfg      ProcessConfig
	now      func() time.Time
}

func newProcessor(provider MatchProvider, store window.Store, uploader *UploaderService, progress *Progress, logger *logging.Logger, cfg ProcessConfig) *processor {
	if logger == nil {
		logger = logging.Default()
	}
	return &processor{
		provider: provider,
		store:    store,
		uploader: uploader,
		progress: progress,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

func (p *processor) processMatchList(ctx context.Context, win window.MatchWindow, checkpointKey string) (RunReport, error) {
	report := RunReport{State: StateProcessing}
	p.progress.SetState(StateProcessing)

	total := len(win.MatchIDs)
	handles := make([]*UploadHandle, 0, total/p.cfg.FlushThreshold+1)
	accumulator := make([]batch.ProcessedMatch, 0, p.cfg.FlushThreshold)

	// accumStart is the window position where the current accumulation began;
	// everything before it is covered by an enqueued batch or was no-data.
	accumStart := 0
	stop := total
	state := StateCompleted
	var cause error

	for i, matchID := range win.MatchIDs {
		if p.expired() {
			state = StateExpiredCheckpointed
			stop = i
			p.logger.WarnContext(ctx, "credential window expired, stopping", "processed", i, "remaining", total-i)
			break
		}

		doc, err := p.provider.FetchMatch(ctx, matchID)
		if err != nil {
			if stderrors.Is(err, ErrNoData) {
				report.NoData++
				report.Attempted++
				p.progress.IncrNoData()
				p.progress.IncrAttempted()
				p.logger.DebugContext(ctx, "match unavailable upstream", "match_id", matchID, "error", err)
				continue
			}
			state = StateErrorCheckpointed
			stop = i
			cause = fmt.Errorf("fetch match %s: %w", matchID, err)
			p.logger.ErrorContext(ctx, "match fetch failed, stopping", "match_id", matchID, "error", err)
			break
		}

		enriched := batch.ProcessedMatch(doc)
		batch.Enrich(enriched, win.Ranks, p.cfg.Source)
		accumulator = append(accumulator, enriched)
		report.Attempted++
		p.progress.IncrAttempted()

		if report.Attempted%100 == 0 {
			p.logger.InfoContext(ctx, "processing progress",
				"attempted", report.Attempted,
				"total", total,
				"no_data", report.NoData,
				"batches", report.Batches,
			)
		}

		if len(accumulator) >= p.cfg.FlushThreshold {
			handle, err := p.uploader.Enqueue(accumulator)
			if err != nil {
				state = StateErrorCheckpointed
				stop = accumStart
				cause = fmt.Errorf("enqueue batch: %w", err)
				accumulator = accumulator[:0]
				break
			}
			handles = append(handles, handle)
			report.Batches++
			report.Uploaded += len(accumulator)
			accumulator = accumulator[:0]
			accumStart = i + 1
		}
	}

	// Ship whatever the loop accumulated before it stopped. If even the
	// enqueue fails, those ids fall back into the checkpoint.
	if len(accumulator) > 0 {
		handle, err := p.uploader.Enqueue(accumulator)
		if err != nil {
			state = StateErrorCheckpointed
			if accumStart < stop {
				stop = accumStart
			}
			if cause == nil {
				cause = fmt.Errorf("enqueue final batch: %w", err)
			}
		} else {
			handles = append(handles, handle)
			report.Batches++
			report.Uploaded += len(accumulator)
		}
	}
	if report.Attempted > stop {
		report.Attempted = stop
	}

	// Checkpoint before draining uploads: an interrupt while joining must
	// not be able to lose the remainder.
	if stop < total {
		report.LeftoverKey = checkpointKey
		if err := p.persistDocument(ctx, checkpointKey, win.Remainder(stop).Document()); err != nil {
			cause = fmt.Errorf("%w: persist checkpoint %s: %v", ErrCheckpointPersist, checkpointKey, err)
		} else {
			p.logger.InfoContext(ctx, "checkpoint persisted", "key", checkpointKey, "remaining", total-stop)
		}
	}

	// Drain on a fresh context: queued uploads always finish before the run
	// reports anything.
	if err := JoinAll(context.Background(), handles); err != nil {
		if cause == nil {
			cause = fmt.Errorf("join batch uploads: %w", err)
		}
		if state == StateCompleted {
			// A clean sweep whose uploads failed is a run failure, but not a
			// checkpointing one: the window object itself is still durable.
			state = StateProcessing
		}
		p.logger.ErrorContext(ctx, "batch upload failed", "error", err)
	}

	report.State = state
	p.progress.SetState(state)
	return report, cause
}

func (p *processor) expired() bool {
	if p.cfg.KeyExpiresAt.IsZero() {
		return false
	}
	return !p.now().Before(p.cfg.KeyExpiresAt)
}

// persistDocument writes a window or leftover document with bounded retries.
// These writes guard against data loss, so exhaustion is escalated by the
// callers rather than swallowed.
func (p *processor) persistDocument(ctx context.Context, key string, doc window.Document) error {
	body, err := sonic.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}

	var lastErr error
	for attempt := 0; attempt < p.cfg.PutRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.cfg.PutDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = p.store.Put(ctx, key, body); lastErr == nil {
			return nil
		}
		p.logger.WarnContext(ctx, "document put failed", "key", key, "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

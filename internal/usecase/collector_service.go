package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/riskibarqy/rift-backfill/internal/domain/roster"
	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

type MatchHistoryProvider interface {
	FetchMatchIDs(ctx context.Context, puuid string, startEpoch, endEpoch int64) ([]string, error)
}

// CollectorService turns a roster into the deduplicated, deterministically
// ordered match-id list of one time window.
type CollectorService struct {
	provider MatchHistoryProvider
	progress *Progress
	logger   *logging.Logger
}

func NewCollectorService(provider MatchHistoryProvider, progress *Progress, logger *logging.Logger) *CollectorService {
	if logger == nil {
		logger = logging.Default()
	}
	return &CollectorService{
		provider: provider,
		progress: progress,
		logger:   logger,
	}
}

// Collect fetches every rostered player's match ids for [startEpoch,
// endEpoch). Players the upstream rejects are skipped and logged; a context
// cancellation aborts the whole collection so no partial window is ever
// produced. The returned ids are sorted ascending, which fixes the
// processing and checkpoint order for the rest of the window's life.
func (s *CollectorService) Collect(ctx context.Context, ros roster.Roster, startEpoch, endEpoch int64) (window.MatchWindow, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.collector.collect")
	defer span.End()

	if s.provider == nil {
		return window.MatchWindow{}, fmt.Errorf("%w: match history provider is not configured", ErrDependencyUnavailable)
	}
	if startEpoch >= endEpoch {
		return window.MatchWindow{}, fmt.Errorf("%w: start epoch %d is not before end epoch %d", ErrInvalidInput, startEpoch, endEpoch)
	}

	unique := make(map[string]struct{}, 8192)
	processed := 0
	for _, player := range ros.Players {
		if err := ctx.Err(); err != nil {
			return window.MatchWindow{}, err
		}
		if strings.TrimSpace(player.PUUID) == "" {
			continue
		}

		ids, err := s.provider.FetchMatchIDs(ctx, player.PUUID, startEpoch, endEpoch)
		if err != nil {
			if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
				return window.MatchWindow{}, err
			}
			s.logger.WarnContext(ctx, "match id fetch failed, skipping player",
				"puuid", shortID(player.PUUID),
				"tier", player.Tier,
				"error", err,
			)
		} else {
			for _, id := range ids {
				if id != "" {
					unique[id] = struct{}{}
				}
			}
		}

		processed++
		s.progress.AddPlayers(1)
		if processed%1000 == 0 {
			s.logger.InfoContext(ctx, "collection progress", "players", processed, "unique_match_ids", len(unique))
		}
	}

	ids := make([]string, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.progress.AddMatchIDs(int64(len(ids)))
	s.logger.InfoContext(ctx, "collection finished",
		"players", processed,
		"unique_match_ids", len(ids),
		"start_epoch", startEpoch,
		"end_epoch", endEpoch,
	)

	return window.MatchWindow{
		StartEpoch: startEpoch,
		EndEpoch:   endEpoch,
		Ranks:      ros.Ranks,
		MatchIDs:   ids,
	}, nil
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}

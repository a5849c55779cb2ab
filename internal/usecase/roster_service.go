package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/riskibarqy/rift-backfill/internal/domain/roster"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

// ExternalLeagueEntry is one ladder entry as served by the ranked ladder
// provider, before normalization.
type ExternalLeagueEntry struct {
	PUUID        string
	Tier         string
	Division     string
	LeaguePoints int
}

type RankedLadderProvider interface {
	FetchApexLeague(ctx context.Context, tier string) ([]ExternalLeagueEntry, error)
	FetchLeagueEntries(ctx context.Context, tier, division string, page int) ([]ExternalLeagueEntry, error)
}

// RosterService sweeps the ranked ladders top-down and produces the player
// roster for one backfill window. Any ladder fetch failure fails the whole
// build: a partial roster would silently bias the harvested sample.
type RosterService struct {
	provider   RankedLadderProvider
	maxPlayers int
	logger     *logging.Logger
}

func NewRosterService(provider RankedLadderProvider, maxPlayers int, logger *logging.Logger) *RosterService {
	if logger == nil {
		logger = logging.Default()
	}
	if maxPlayers <= 0 {
		maxPlayers = 100000
	}
	return &RosterService{
		provider:   provider,
		maxPlayers: maxPlayers,
		logger:     logger,
	}
}

func (s *RosterService) Build(ctx context.Context) (roster.Roster, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.roster.build")
	defer span.End()

	if s.provider == nil {
		return roster.Roster{}, fmt.Errorf("%w: ranked ladder provider is not configured", ErrDependencyUnavailable)
	}

	players := make([]roster.RankedPlayer, 0, 2048)
	seen := make(map[string]struct{}, 2048)
	appendPlayer := func(p roster.RankedPlayer) {
		if strings.TrimSpace(p.PUUID) == "" {
			return
		}
		if _, dup := seen[p.PUUID]; dup {
			return
		}
		seen[p.PUUID] = struct{}{}
		players = append(players, p)
	}

	for _, tier := range roster.ApexTiers {
		if len(players) >= s.maxPlayers {
			break
		}
		entries, err := s.provider.FetchApexLeague(ctx, tier)
		if err != nil {
			return roster.Roster{}, fmt.Errorf("fetch apex ladder tier=%s: %w", tier, err)
		}
		for _, entry := range entries {
			appendPlayer(roster.RankedPlayer{
				PUUID:        entry.PUUID,
				Tier:         strings.ToUpper(entry.Tier),
				LeaguePoints: entry.LeaguePoints,
			})
		}
		s.logger.InfoContext(ctx, "apex ladder swept", "tier", tier, "entries", len(entries), "players", len(players))
	}

	for _, division := range roster.DiamondDivisions {
		if len(players) >= s.maxPlayers {
			break
		}
		for page := 1; ; page++ {
			entries, err := s.provider.FetchLeagueEntries(ctx, roster.TierDiamond, division, page)
			if err != nil {
				return roster.Roster{}, fmt.Errorf("fetch ladder entries tier=%s division=%s page=%d: %w", roster.TierDiamond, division, page, err)
			}
			if len(entries) == 0 {
				break
			}
			for _, entry := range entries {
				appendPlayer(roster.RankedPlayer{
					PUUID:        entry.PUUID,
					Tier:         strings.ToUpper(entry.Tier),
					Division:     entry.Division,
					LeaguePoints: entry.LeaguePoints,
				})
			}
			if len(players) >= s.maxPlayers {
				break
			}
		}
		s.logger.InfoContext(ctx, "ladder division swept", "tier", roster.TierDiamond, "division", division, "players", len(players))
	}

	// Rank metadata is kept for every player seen, including the overflow the
	// cap trims below: match participants can be anyone the ladders know.
	ranks := make(roster.RankMap, len(players))
	for _, p := range players {
		ranks[p.PUUID] = roster.Summarize(p)
	}

	if len(players) > s.maxPlayers {
		players = players[:s.maxPlayers]
	}

	s.logger.InfoContext(ctx, "roster built", "players", len(players), "ranked", len(ranks), "cap", s.maxPlayers)
	return roster.Roster{Players: players, Ranks: ranks}, nil
}

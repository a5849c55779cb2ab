package roster

import "strings"

const (
	// QueueRankedSolo is the only queue the backfill harvests.
	QueueRankedSolo = "RANKED_SOLO_5x5"

	TierDiamond = "DIAMOND"

	// TierUnknown marks participants whose puuid was never seen while the
	// roster was built for the window.
	TierUnknown = "UNKNOWN"
)

// ApexTiers lists the apex ladders in harvest order. The order matters: once
// the roster cap is reached the later tiers are never queried.
var ApexTiers = []string{"master", "grandmaster", "challenger"}

// DiamondDivisions in descending skill order, queried after the apex tiers.
var DiamondDivisions = []string{"I", "II", "III", "IV"}

// RankedPlayer is one ladder entry after normalization. Apex players carry an
// empty Division.
type RankedPlayer struct {
	PUUID        string
	Tier         string
	Division     string
	LeaguePoints int
}

// RankSummary is the rank metadata captured per player at collection time. It
// is embedded verbatim in the persisted window document, hence the JSON names.
type RankSummary struct {
	Tier         string  `json:"tier"`
	Division     *string `json:"rank"`
	LeaguePoints *int    `json:"lp"`
}

// RankMap indexes rank summaries by puuid.
type RankMap map[string]RankSummary

// Summarize converts a normalized player into the summary stored in the rank
// map. Apex players have no division, so the rank field stays null.
func Summarize(p RankedPlayer) RankSummary {
	s := RankSummary{Tier: strings.ToUpper(p.Tier)}
	if p.Division != "" {
		division := p.Division
		s.Division = &division
	}
	lp := p.LeaguePoints
	s.LeaguePoints = &lp
	return s
}

// Unknown is the summary applied to participants absent from the rank map.
func Unknown() RankSummary {
	return RankSummary{Tier: TierUnknown}
}

// Roster is the output of one ladder sweep: the capped player list to collect
// match ids for, plus the rank map over every player seen before the cap was
// applied.
type Roster struct {
	Players []RankedPlayer
	Ranks   RankMap
}

// Lookup returns the summary for puuid, or the Unknown summary when the
// player was never rostered.
func (m RankMap) Lookup(puuid string) (RankSummary, bool) {
	if s, ok := m[puuid]; ok {
		return s, true
	}
	return Unknown(), false
}

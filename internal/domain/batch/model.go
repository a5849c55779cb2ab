package batch

import (
	"fmt"
	"time"

	"github.com/riskibarqy/rift-backfill/internal/domain/roster"
)

// SourceTest routes batches into the test/ prefix so experimental runs never
// pollute the production partition.
const SourceTest = "test"

// ProcessedMatch is a raw match document after rank enrichment. The upstream
// shape is not pinned down beyond "decoded JSON object", so it stays a map.
type ProcessedMatch map[string]any

// Metadata describes one uploaded batch object. It is written into the
// envelope and validated again by the warehouse loader before rows are built.
type Metadata struct {
	UploadTimestamp string `json:"upload_timestamp" validate:"required"`
	MatchCount      int    `json:"match_count" validate:"gte=0"`
	BatchID         string `json:"batch_id" validate:"required"`
	S3Key           string `json:"s3_key" validate:"required"`
}

// Envelope is the wire shape of a batch object.
type Envelope struct {
	Metadata Metadata         `json:"metadata"`
	Matches  []ProcessedMatch `json:"matches"`
}

// Key builds the date-partitioned object key for a batch of count matches.
func Key(now time.Time, count int, source string) string {
	now = now.UTC()
	key := fmt.Sprintf("matches/year=%04d/month=%02d/day=%02d/batch_%d_%d_matches.json",
		now.Year(), int(now.Month()), now.Day(), now.UnixMilli(), count)
	if source == SourceTest {
		return "test/" + key
	}
	return key
}

// Prefix is the partition root the warehouse loader sweeps for batch objects.
func Prefix(source string) string {
	if source == SourceTest {
		return "test/matches/"
	}
	return "matches/"
}

// ID builds the batch identifier recorded in the envelope metadata.
func ID(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s_%d", now.Format("20060102"), now.UnixMilli())
}

// Enrich stamps every participant of the match document with the rank
// metadata captured at collection time and marks the document with its
// source. Participants whose puuid was never rostered get the UNKNOWN tier
// with null rank and league points.
func Enrich(doc ProcessedMatch, ranks roster.RankMap, source string) {
	if doc == nil {
		return
	}
	if info, ok := doc["info"].(map[string]any); ok {
		if participants, ok := info["participants"].([]any); ok {
			for _, raw := range participants {
				participant, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				puuid, _ := participant["puuid"].(string)
				summary, _ := ranks.Lookup(puuid)
				applySummary(participant, summary)
			}
		}
	}
	doc["source"] = source
}

func applySummary(participant map[string]any, summary roster.RankSummary) {
	participant["tier"] = summary.Tier
	if summary.Division != nil {
		participant["rank"] = *summary.Division
	} else {
		participant["rank"] = nil
	}
	if summary.LeaguePoints != nil {
		participant["lp"] = *summary.LeaguePoints
	} else {
		participant["lp"] = nil
	}
}

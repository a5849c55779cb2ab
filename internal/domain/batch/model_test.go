package batch

import (
	"testing"
	"time"

	"github.com/riskibarqy/rift-backfill/internal/domain/roster"
)

func TestKey(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 30, 45, 0, time.UTC)

	t.Run("production partition", func(t *testing.T) {
		got := Key(now, 500, "prod")
		want := "matches/year=2026/month=03/day=07/batch_1772886645000_500_matches.json"
		if got != want {
			t.Fatalf("unexpected key: got=%s want=%s", got, want)
		}
	})

	t.Run("test partition", func(t *testing.T) {
		got := Key(now, 3, SourceTest)
		want := "test/matches/year=2026/month=03/day=07/batch_1772886645000_3_matches.json"
		if got != want {
			t.Fatalf("unexpected key: got=%s want=%s", got, want)
		}
	})

	t.Run("partition follows utc day", func(t *testing.T) {
		// 01:30 on the 8th in UTC+7 is still the 7th in UTC.
		local := time.Date(2026, 3, 8, 1, 30, 0, 0, time.FixedZone("WIB", 7*3600))
		got := Key(local, 1, "prod")
		want := "matches/year=2026/month=03/day=07/batch_1772908200000_1_matches.json"
		if got != want {
			t.Fatalf("unexpected key: got=%s want=%s", got, want)
		}
	})
}

func TestPrefix(t *testing.T) {
	if got := Prefix("prod"); got != "matches/" {
		t.Fatalf("unexpected prefix: %s", got)
	}
	if got := Prefix(SourceTest); got != "test/matches/" {
		t.Fatalf("unexpected test prefix: %s", got)
	}
}

func TestID(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 30, 45, 0, time.UTC)
	if got := ID(now); got != "20260307_1772886645000" {
		t.Fatalf("unexpected batch id: %s", got)
	}
}

func TestEnrich(t *testing.T) {
	division := "II"
	lp := 75
	ranks := roster.RankMap{
		"known-puuid": {Tier: "DIAMOND", Division: &division, LeaguePoints: &lp},
	}

	doc := ProcessedMatch{
		"info": map[string]any{
			"participants": []any{
				map[string]any{"puuid": "known-puuid"},
				map[string]any{"puuid": "stranger-puuid"},
				"not-an-object",
			},
		},
	}
	Enrich(doc, ranks, "prod")

	if doc["source"] != "prod" {
		t.Fatalf("source not stamped: %v", doc["source"])
	}

	participants := doc["info"].(map[string]any)["participants"].([]any)
	known := participants[0].(map[string]any)
	if known["tier"] != "DIAMOND" || known["rank"] != "II" || known["lp"] != 75 {
		t.Fatalf("unexpected known participant enrichment: %+v", known)
	}

	stranger := participants[1].(map[string]any)
	if stranger["tier"] != roster.TierUnknown {
		t.Fatalf("unexpected stranger tier: %v", stranger["tier"])
	}
	if stranger["rank"] != nil || stranger["lp"] != nil {
		t.Fatalf("stranger rank fields should be null: rank=%v lp=%v", stranger["rank"], stranger["lp"])
	}
}

func TestEnrich_DocumentWithoutParticipants(t *testing.T) {
	doc := ProcessedMatch{"metadata": map[string]any{"matchId": "M1"}}
	Enrich(doc, roster.RankMap{}, SourceTest)
	if doc["source"] != SourceTest {
		t.Fatalf("source not stamped: %v", doc["source"])
	}

	// A nil document is silently ignored.
	Enrich(nil, roster.RankMap{}, SourceTest)
}

func TestEnrich_ApexPlayerKeepsNullDivision(t *testing.T) {
	ranks := roster.RankMap{
		"apex-puuid": roster.Summarize(roster.RankedPlayer{PUUID: "apex-puuid", Tier: "challenger", LeaguePoints: 1200}),
	}
	doc := ProcessedMatch{
		"info": map[string]any{
			"participants": []any{map[string]any{"puuid": "apex-puuid"}},
		},
	}
	Enrich(doc, ranks, "prod")

	participant := doc["info"].(map[string]any)["participants"].([]any)[0].(map[string]any)
	if participant["tier"] != "CHALLENGER" {
		t.Fatalf("unexpected tier: %v", participant["tier"])
	}
	if participant["rank"] != nil {
		t.Fatalf("apex rank should be null, got %v", participant["rank"])
	}
	if participant["lp"] != 1200 {
		t.Fatalf("unexpected lp: %v", participant["lp"])
	}
}

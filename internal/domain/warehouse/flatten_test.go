package warehouse

import (
	"testing"
)

func matchDocument() map[string]any {
	return map[string]any{
		"metadata": map[string]any{
			"matchId":     "NA1_5001",
			"dataVersion": "2",
		},
		"info": map[string]any{
			"gameCreation": int64(1772841600000),
			"gameDuration": int64(1845),
			"gameVersion":  "16.4.660",
			"mapId":        int64(11),
			"participants": []any{
				map[string]any{
					"puuid":      "puuid-1",
					"championId": int64(157),
					"win":        true,
					"challenges": map[string]any{
						"kda":               3.5,
						"perfectGame":       int64(0),
						"legendaryItemUsed": []any{int64(3031)},
					},
					"items": []any{int64(3031), int64(3006)},
					"tier":  "DIAMOND",
				},
				"not-an-object",
			},
		},
		"source": "prod",
	}
}

func TestFlatten(t *testing.T) {
	rows, err := Flatten(matchDocument())
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("unexpected row count: got=%d want=1", len(rows))
	}
	row := rows[0]

	if row["match_id"] != "NA1_5001" {
		t.Fatalf("unexpected match_id: %v", row["match_id"])
	}
	if row["data_version"] != "2" {
		t.Fatalf("unexpected data_version: %v", row["data_version"])
	}
	if row["game_creation"] != int64(1772841600000) {
		t.Fatalf("unexpected game_creation: %v", row["game_creation"])
	}
	if row["game_duration"] != int64(1845) || row["game_version"] != "16.4.660" || row["map_id"] != int64(11) {
		t.Fatalf("unexpected match identity columns: %+v", row)
	}
	if row["source"] != "prod" {
		t.Fatalf("unexpected source: %v", row["source"])
	}

	if row["puuid"] != "puuid-1" || row["championId"] != int64(157) || row["win"] != true {
		t.Fatalf("unexpected participant scalars: %+v", row)
	}
	if row["challenges_kda"] != 3.5 {
		t.Fatalf("nested key not flattened: %v", row["challenges_kda"])
	}
	if row["challenges_perfectGame"] != int64(0) {
		t.Fatalf("nested key not flattened: %v", row["challenges_perfectGame"])
	}

	items, ok := row["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("array value should survive as-is: %v", row["items"])
	}

	if _, present := row["challenges_legendaryItemUsed"]; present {
		t.Fatalf("skip fragment leaked into row")
	}
	if _, present := row["challenges"]; present {
		t.Fatalf("nested object itself should not be a column")
	}
}

func TestFlatten_SkipFragments(t *testing.T) {
	doc := map[string]any{
		"metadata": map[string]any{"matchId": "NA1_5002", "dataVersion": "2"},
		"info": map[string]any{
			"participants": []any{
				map[string]any{
					"puuid":                 "puuid-1",
					"playerAugment1":        int64(21),
					"SWARM_killCount":       int64(4),
					"missions_PlayerScore0": int64(9),
					"playerScore":           int64(1),
					"totalDamageDealt":      int64(18250),
				},
			},
		},
	}

	rows, err := Flatten(doc)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	row := rows[0]
	for _, dropped := range []string{"playerAugment1", "SWARM_killCount", "missions_PlayerScore0"} {
		if _, present := row[dropped]; present {
			t.Fatalf("expected %s to be skipped", dropped)
		}
	}
	// Case matters: playerScore does not match the PlayerScore fragment.
	if row["playerScore"] != int64(1) {
		t.Fatalf("playerScore should survive: %v", row["playerScore"])
	}
	if row["totalDamageDealt"] != int64(18250) {
		t.Fatalf("regular column lost: %v", row["totalDamageDealt"])
	}
}

func TestFlatten_MalformedDocuments(t *testing.T) {
	t.Run("missing info", func(t *testing.T) {
		if _, err := Flatten(map[string]any{"metadata": map[string]any{"matchId": "M"}}); err == nil {
			t.Fatalf("expected error for document without info")
		}
	})

	t.Run("missing metadata", func(t *testing.T) {
		if _, err := Flatten(map[string]any{"info": map[string]any{}}); err == nil {
			t.Fatalf("expected error for document without metadata")
		}
	})

	t.Run("missing match id", func(t *testing.T) {
		doc := map[string]any{"metadata": map[string]any{}, "info": map[string]any{}}
		if _, err := Flatten(doc); err == nil {
			t.Fatalf("expected error for document without matchId")
		}
	})
}

func TestFlatten_NoParticipants(t *testing.T) {
	doc := map[string]any{
		"metadata": map[string]any{"matchId": "NA1_5003"},
		"info":     map[string]any{"gameCreation": int64(1)},
	}
	rows, err := Flatten(doc)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("unexpected rows for participant-free document: %d", len(rows))
	}
}

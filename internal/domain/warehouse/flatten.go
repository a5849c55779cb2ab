package warehouse

import (
	"fmt"
	"strings"
)

// Key fragments excluded from warehouse rows. These families are huge,
// sparsely populated and unused downstream.
var skipKeyFragments = []string{
	"legendaryItemUsed",
	"SWARM",
	"playerAugment",
	"PlayerScore",
}

// Flatten explodes one enriched match document into participant-level rows.
// Each participant becomes a row of its flattened fields plus the shared
// match identity columns injected under fixed names.
func Flatten(doc map[string]any) ([]Row, error) {
	metadata, _ := doc["metadata"].(map[string]any)
	info, _ := doc["info"].(map[string]any)
	if metadata == nil || info == nil {
		return nil, fmt.Errorf("match document missing metadata or info")
	}
	matchID, _ := metadata["matchId"].(string)
	if matchID == "" {
		return nil, fmt.Errorf("match document missing matchId")
	}

	participants, _ := info["participants"].([]any)
	rows := make([]Row, 0, len(participants))
	for _, raw := range participants {
		participant, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		row := flattenMap(participant)
		row["match_id"] = matchID
		row["data_version"] = metadata["dataVersion"]
		row["game_creation"] = info["gameCreation"]
		row["game_duration"] = info["gameDuration"]
		row["game_version"] = info["gameVersion"]
		row["map_id"] = info["mapId"]
		row["source"] = doc["source"]
		rows = append(rows, row)
	}
	return rows, nil
}

// flattenMap walks nested objects breadth-first, joining path segments with
// underscores. Arrays and scalars stay as values; only objects expand.
func flattenMap(root map[string]any) Row {
	type frame struct {
		prefix string
		value  map[string]any
	}

	row := make(Row, len(root)*2)
	queue := []frame{{value: root}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for key, value := range current.value {
			name := key
			if current.prefix != "" {
				name = current.prefix + "_" + key
			}
			if skipKey(name) {
				continue
			}
			if nested, ok := value.(map[string]any); ok {
				queue = append(queue, frame{prefix: name, value: nested})
				continue
			}
			row[name] = value
		}
	}
	return row
}

func skipKey(key string) bool {
	for _, fragment := range skipKeyFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

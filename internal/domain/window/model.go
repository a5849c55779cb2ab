package window

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/riskibarqy/rift-backfill/internal/domain/roster"
)

const (
	// MatchlistPrefix holds the durable window documents written before any
	// match is fetched.
	MatchlistPrefix = "backfill/matchlists/"

	// LeftoverPrefix holds checkpoint documents for interrupted windows.
	LeftoverPrefix = "backfill/leftovers/"
)

// MatchWindow is the collection artifact for one time window: the
// deduplicated match ids in their persisted (sorted) order plus the rank
// metadata captured while the roster was built. The epochs live in the object
// key, not in the document body.
type MatchWindow struct {
	StartEpoch int64
	EndEpoch   int64
	Ranks      roster.RankMap
	MatchIDs   []string
}

// Document is the wire shape of a window or leftover object.
type Document struct {
	Ranks     roster.RankMap `json:"ranked_map"`
	MatchList []string       `json:"matchlist"`
}

func (w MatchWindow) Empty() bool {
	return len(w.MatchIDs) == 0
}

func (w MatchWindow) Document() Document {
	return Document{Ranks: w.Ranks, MatchList: w.MatchIDs}
}

// Remainder returns the window that is still owed after the first attempted
// ids have been accounted for. Slicing by position keeps the persisted order
// intact, which is what makes checkpoints resumable.
func (w MatchWindow) Remainder(attempted int) MatchWindow {
	if attempted < 0 {
		attempted = 0
	}
	if attempted > len(w.MatchIDs) {
		attempted = len(w.MatchIDs)
	}
	rest := make([]string, len(w.MatchIDs)-attempted)
	copy(rest, w.MatchIDs[attempted:])
	return MatchWindow{
		StartEpoch: w.StartEpoch,
		EndEpoch:   w.EndEpoch,
		Ranks:      w.Ranks,
		MatchIDs:   rest,
	}
}

// FromDocument rebuilds a window from a stored document and the epochs parsed
// from its key.
func FromDocument(doc Document, startEpoch, endEpoch int64) MatchWindow {
	return MatchWindow{
		StartEpoch: startEpoch,
		EndEpoch:   endEpoch,
		Ranks:      doc.Ranks,
		MatchIDs:   doc.MatchList,
	}
}

// MatchlistKey is where the window document for [startEpoch, endEpoch) lives.
func MatchlistKey(startEpoch, endEpoch int64) string {
	return fmt.Sprintf("%smatch_ids_%d_%d_.json", MatchlistPrefix, startEpoch, endEpoch)
}

// LeftoverKey is where the checkpoint for an interrupted window lives.
func LeftoverKey(startEpoch, endEpoch int64) string {
	return fmt.Sprintf("%sleftovers_%d_%d_.json", LeftoverPrefix, startEpoch, endEpoch)
}

// ParseLeftoverKey recovers the window epochs from a leftover key so the
// re-drive can address the matching matchlist object.
func ParseLeftoverKey(key string) (int64, int64, error) {
	name := strings.TrimPrefix(key, LeftoverPrefix)
	name = strings.TrimPrefix(name, "leftovers_")
	name = strings.TrimSuffix(name, "_.json")
	parts := strings.Split(name, "_")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("leftover key %q does not match leftovers_{start}_{end}_.json", key)
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse start epoch from leftover key %q: %w", key, err)
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse end epoch from leftover key %q: %w", key, err)
	}
	return start, end, nil
}

package warehouse

import "time"

// Load audit outcomes.
const (
	LoadStatusLoaded = "loaded"
	LoadStatusFailed = "failed"
)

// Row is one flattened participant-level record destined for the warehouse.
// Column names are dynamic: they follow the keys of the source document.
type Row map[string]any

// LoadAudit records the outcome of loading one batch object, success or not.
type LoadAudit struct {
	ObjectKey  string
	BatchID    string
	MatchCount int
	RowCount   int
	Status     string
	Error      string
	LoadedAt   time.Time
}

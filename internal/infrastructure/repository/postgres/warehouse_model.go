package postgres

import "time"

type loadAuditInsertModel struct {
	ObjectKey  string    `db:"object_key"`
	BatchID    *string   `db:"batch_id"`
	MatchCount int       `db:"match_count"`
	RowCount   int       `db:"row_count"`
	Status     string    `db:"status"`
	Error      *string   `db:"error"`
	LoadedAt   time.Time `db:"loaded_at"`
}

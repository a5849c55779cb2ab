package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/riskibarqy/rift-backfill/internal/domain/warehouse"
	"github.com/riskibarqy/rift-backfill/internal/platform/cache"
	qb "github.com/riskibarqy/rift-backfill/internal/platform/querybuilder"
)

// insertChunkSize bounds placeholders per statement; match rows carry a few
// hundred columns, so larger chunks would brush the Postgres 65535 limit.
const insertChunkSize = 200

// columnCacheTTL bounds how long a cached column set can drift from schema
// changes made outside this process.
const columnCacheTTL = time.Minute

type WarehouseRepository struct {
	db      *sqlx.DB
	columns *cache.Store
}

func NewWarehouseRepository(db *sqlx.DB) *WarehouseRepository {
	return &WarehouseRepository{
		db:      db,
		columns: cache.NewStore(columnCacheTTL),
	}
}

// InsertRows lands flattened participant rows. Columns are dynamic: the set
// is the union over the batch, missing columns are added to the table first,
// and re-delivered rows are dropped by the (match_id, puuid) conflict target.
func (r *WarehouseRepository) InsertRows(ctx context.Context, table string, rows []warehouse.Row) error {
	if len(rows) == 0 {
		return nil
	}

	columns, types := collectColumns(rows)
	if len(columns) == 0 {
		return fmt.Errorf("rows have no columns")
	}

	known, err := r.knownColumns(ctx, table)
	if err != nil {
		return err
	}
	missing := make([]string, 0)
	for _, name := range columns {
		if _, ok := known[name]; !ok {
			missing = append(missing, name)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx insert match rows: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := addColumns(ctx, tx, table, missing, types); err != nil {
		return err
	}

	for start := 0; start < len(rows); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := insertChunk(ctx, tx, table, columns, rows[start:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert match rows tx: %w", err)
	}
	if len(missing) > 0 {
		// Drop the stale set rather than patching it; the next insert reloads
		// the authoritative schema.
		r.columns.Delete(ctx, table)
	}
	return nil
}

// knownColumns returns the table's current column set. Concurrent loader
// workers share one information_schema lookup through the cache's
// single-flight loader.
func (r *WarehouseRepository) knownColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	value, err := r.columns.GetOrLoad(ctx, table, func(ctx context.Context) (any, error) {
		var names []string
		query := `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`
		if err := r.db.SelectContext(ctx, &names, query, table); err != nil {
			return nil, fmt.Errorf("list columns of %s: %w", table, err)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("table %s does not exist", table)
		}
		known := make(map[string]struct{}, len(names))
		for _, name := range names {
			known[name] = struct{}{}
		}
		return known, nil
	})
	if err != nil {
		return nil, err
	}
	known, ok := value.(map[string]struct{})
	if !ok {
		return nil, fmt.Errorf("unexpected cached column set type %T", value)
	}
	return known, nil
}

func (r *WarehouseRepository) RecordAudit(ctx context.Context, audit warehouse.LoadAudit) error {
	insertModel := loadAuditInsertModel{
		ObjectKey:  audit.ObjectKey,
		BatchID:    nullableString(audit.BatchID),
		MatchCount: audit.MatchCount,
		RowCount:   audit.RowCount,
		Status:     audit.Status,
		Error:      nullableString(audit.Error),
		LoadedAt:   audit.LoadedAt,
	}

	query, args, err := qb.InsertModel("load_audit", insertModel, "")
	if err != nil {
		return fmt.Errorf("build load audit query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isBindParameterMismatch(err) || isUnnamedPreparedStatementMissing(err) {
			// Pooled connections drop cached statements; one retry gets a fresh one.
			if _, retryErr := r.db.ExecContext(ctx, query, args...); retryErr == nil {
				return nil
			}
		}
		return fmt.Errorf("insert load audit %s: %w", audit.ObjectKey, err)
	}
	return nil
}

// collectColumns returns the sorted union of column names across rows and a
// SQL type per column, inferred from the first non-nil value seen.
func collectColumns(rows []warehouse.Row) ([]string, map[string]string) {
	types := make(map[string]string)
	for _, row := range rows {
		for name, value := range row {
			if types[name] != "" {
				continue
			}
			types[name] = columnType(value)
		}
	}

	columns := make([]string, 0, len(types))
	for name, sqlType := range types {
		if sqlType == "" {
			// Every value was null; TEXT accepts whatever shows up later.
			types[name] = "TEXT"
		}
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns, types
}

func columnType(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case json.Number:
		if _, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return "BIGINT"
		}
		return "DOUBLE PRECISION"
	case string:
		return "TEXT"
	case bool:
		return "BOOLEAN"
	default:
		return "JSONB"
	}
}

// addColumns widens the table for columns first seen in this batch. IF NOT
// EXISTS keeps concurrent widening by other workers benign.
func addColumns(ctx context.Context, tx *sqlx.Tx, table string, missing []string, types map[string]string) error {
	for _, name := range missing {
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", pq.QuoteIdentifier(table), pq.QuoteIdentifier(name), types[name])
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("add column %s to %s: %w", name, table, err)
		}
	}
	return nil
}

func insertChunk(ctx context.Context, tx *sqlx.Tx, table string, columns []string, rows []warehouse.Row) error {
	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = pq.QuoteIdentifier(name)
	}

	builder := qb.InsertInto(pq.QuoteIdentifier(table)).Columns(quoted...)
	for _, row := range rows {
		values := make([]any, len(columns))
		for i, name := range columns {
			value, err := sqlValue(row[name])
			if err != nil {
				return fmt.Errorf("encode column %s: %w", name, err)
			}
			values[i] = value
		}
		builder = builder.Values(values...)
	}

	query, args, err := builder.Suffix("ON CONFLICT (match_id, puuid) DO NOTHING").ToSQL()
	if err != nil {
		return fmt.Errorf("build match rows query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert match rows chunk: %w", err)
	}
	return nil
}

// sqlValue converts a decoded document value into a driver-friendly one.
// json.Number keeps integer precision; composite values travel as JSON text
// and land in JSONB columns.
func sqlValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if i, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", v.String(), err)
		}
		return f, nil
	case string, bool:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	}
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

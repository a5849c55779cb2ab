package warehouse

import "context"

type Repository interface {
	InsertRows(ctx context.Context, table string, rows []Row) error
	RecordAudit(ctx context.Context, audit LoadAudit) error
}

package usecase

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/riskibarqy/rift-backfill/internal/domain/batch"
	"github.com/riskibarqy/rift-backfill/internal/domain/warehouse"
	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
	"github.com/sourcegraph/conc/pool"
)

const (
	defaultLoaderWorkers = 4
	defaultLoaderTable   = "matches"

	batchObjectSuffix = "_matches.json"
)

// LoadReport aggregates a warehouse load across one or more batch objects.
type LoadReport struct {
	Objects int
	Failed  int
	Matches int
	Rows    int
}

func (r *LoadReport) merge(other LoadReport) {
	r.Objects += other.Objects
	r.Failed += other.Failed
	r.Matches += other.Matches
	r.Rows += other.Rows
}

// LoaderService moves uploaded batch objects into the Postgres warehouse.
// Documents are flattened to participant rows; numbers survive as
// json.Number so the repository can type columns without float damage.
type LoaderService struct {
	store    window.Store
	repo     warehouse.Repository
	validate *validator.Validate
	logger   *logging.Logger
	json     jsoniter.API
	table    string
	workers  int
}

func NewLoaderService(store window.Store, repo warehouse.Repository, logger *logging.Logger, table string, workers int) *LoaderService {
	if logger == nil {
		logger = logging.Default()
	}
	if table == "" {
		table = defaultLoaderTable
	}
	if workers <= 0 {
		workers = defaultLoaderWorkers
	}
	return &LoaderService{
		store:    store,
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
		json:     jsoniter.ConfigCompatibleWithStandardLibrary,
		table:    table,
		workers:  workers,
	}
}

// LoadPrefix loads every batch object under the given key prefix. Objects
// load independently: one bad object is audited and skipped, not fatal for
// the rest. The returned error joins all per-object failures.
func (s *LoaderService) LoadPrefix(ctx context.Context, prefix string) (LoadReport, error) {
	ctx, span := startUsecaseSpan(ctx, "LoaderService.LoadPrefix")
	defer span.End()

	started := time.Now()
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return LoadReport{}, fmt.Errorf("%w: list batch objects: %v", ErrDependencyUnavailable, err)
	}
	sort.Strings(keys)

	candidates := keys[:0]
	for _, key := range keys {
		if strings.HasSuffix(key, batchObjectSuffix) {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		s.logger.InfoContext(ctx, "no batch objects under prefix", "prefix", prefix)
		return LoadReport{}, nil
	}
	s.logger.InfoContext(ctx, "warehouse load starting", "prefix", prefix, "objects", len(candidates), "workers", s.workers)

	var mu sync.Mutex
	total := LoadReport{}
	workers := pool.New().WithErrors().WithMaxGoroutines(s.workers)
	for _, key := range candidates {
		workers.Go(func() error {
			report, err := s.LoadObject(ctx, key)
			mu.Lock()
			total.merge(report)
			if err != nil {
				total.Failed++
			}
			mu.Unlock()
			if err != nil {
				s.logger.ErrorContext(ctx, "batch object load failed", "key", key, "error", err)
				return fmt.Errorf("load %s: %w", key, err)
			}
			return nil
		})
	}
	err = workers.Wait()

	s.logger.InfoContext(ctx, "warehouse load finished",
		"objects", total.Objects,
		"failed", total.Failed,
		"matches", total.Matches,
		"rows", total.Rows,
		"took", time.Since(started).String(),
	)
	return total, err
}

// LoadObject loads a single batch object into the warehouse, recording a
// load audit row for both outcomes.
func (s *LoaderService) LoadObject(ctx context.Context, key string) (LoadReport, error) {
	ctx, span := startUsecaseSpan(ctx, "LoaderService.LoadObject")
	defer span.End()

	body, err := s.store.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, window.ErrNotFound) {
			return LoadReport{}, fmt.Errorf("%w: batch object %s", ErrNoData, key)
		}
		return LoadReport{}, fmt.Errorf("%w: read batch object: %v", ErrDependencyUnavailable, err)
	}

	decoder := s.json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var envelope batch.Envelope
	if err := decoder.Decode(&envelope); err != nil {
		decodeErr := fmt.Errorf("%w: decode batch object: %v", ErrInvalidInput, err)
		s.audit(ctx, key, "", 0, 0, decodeErr)
		return LoadReport{}, decodeErr
	}
	if err := s.validate.StructCtx(ctx, envelope.Metadata); err != nil {
		validateErr := fmt.Errorf("%w: batch metadata validation failed: %v", ErrInvalidInput, err)
		s.audit(ctx, key, envelope.Metadata.BatchID, envelope.Metadata.MatchCount, 0, validateErr)
		return LoadReport{}, validateErr
	}

	rows := make([]warehouse.Row, 0, len(envelope.Matches)*10)
	for _, match := range envelope.Matches {
		flattened, err := warehouse.Flatten(match)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping malformed match document", "key", key, "error", err)
			continue
		}
		rows = append(rows, flattened...)
	}

	if err := s.repo.InsertRows(ctx, s.table, rows); err != nil {
		insertErr := fmt.Errorf("insert rows: %w", err)
		s.audit(ctx, key, envelope.Metadata.BatchID, len(envelope.Matches), len(rows), insertErr)
		return LoadReport{}, insertErr
	}
	s.audit(ctx, key, envelope.Metadata.BatchID, len(envelope.Matches), len(rows), nil)

	s.logger.InfoContext(ctx, "batch object loaded", "key", key, "matches", len(envelope.Matches), "rows", len(rows))
	return LoadReport{Objects: 1, Matches: len(envelope.Matches), Rows: len(rows)}, nil
}

// audit is best effort: a lost audit row never fails the load itself.
func (s *LoaderService) audit(ctx context.Context, key, batchID string, matches, rows int, cause error) {
	record := warehouse.LoadAudit{
		ObjectKey:  key,
		BatchID:    batchID,
		MatchCount: matches,
		RowCount:   rows,
		Status:     warehouse.LoadStatusLoaded,
		LoadedAt:   time.Now().UTC(),
	}
	if cause != nil {
		record.Status = warehouse.LoadStatusFailed
		record.Error = cause.Error()
	}
	if err := s.repo.RecordAudit(ctx, record); err != nil {
		s.logger.WarnContext(ctx, "load audit write failed", "key", key, "error", err)
	}
}

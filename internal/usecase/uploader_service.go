package usecase

import (
	"context"
	"fmt"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/rift-backfill/internal/domain/batch"
	"github.com/riskibarqy/rift-backfill/internal/domain/window"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
)

const defaultUploadWorkers = 4

// UploadHandle tracks one in-flight batch upload.
type UploadHandle struct {
	key  string
	done chan struct{}
	err  error
}

func (h *UploadHandle) Key() string {
	if h == nil {
		return ""
	}
	return h.key
}

// Join blocks until the upload finishes and returns its error. A nil handle
// joins immediately: an empty batch was nothing to upload.
func (h *UploadHandle) Join(ctx context.Context) error {
	if h == nil {
		return nil
	}
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JoinAll drains every handle and returns the first upload error. It is the
// barrier the pipeline passes before reporting a window complete.
func JoinAll(ctx context.Context, handles []*UploadHandle) error {
	var firstErr error
	for _, handle := range handles {
		if err := handle.Join(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UploaderService serializes match batches and writes them to object storage
// through a bounded worker pool, so a slow store backs the pipeline up
// instead of spawning unbounded concurrent uploads.
type UploaderService struct {
	store    window.Store
	source   string
	pool     *ants.Pool
	progress *Progress
	logger   *logging.Logger
	now      func() time.Time
}

func NewUploaderService(store window.Store, source string, workers int, progress *Progress, logger *logging.Logger) (*UploaderService, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if workers <= 0 {
		workers = defaultUploadWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create upload worker pool: %w", err)
	}
	return &UploaderService{
		store:    store,
		source:   source,
		pool:     pool,
		progress: progress,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *UploaderService) Close() {
	if s != nil && s.pool != nil {
		s.pool.Release()
	}
}

// Enqueue hands a batch to the pool and returns immediately. The slice is
// copied before this returns, so the caller may reset and reuse its
// accumulator. An empty batch returns a nil handle and no error.
func (s *UploaderService) Enqueue(matches []batch.ProcessedMatch) (*UploadHandle, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	copied := make([]batch.ProcessedMatch, len(matches))
	copy(copied, matches)

	now := s.now().UTC()
	key := batch.Key(now, len(copied), s.source)
	envelope := batch.Envelope{
		Metadata: batch.Metadata{
			UploadTimestamp: now.Format(time.RFC3339),
			MatchCount:      len(copied),
			BatchID:         batch.ID(now),
			S3Key:           key,
		},
		Matches: copied,
	}

	handle := &UploadHandle{key: key, done: make(chan struct{})}
	if err := s.pool.Submit(func() {
		defer close(handle.done)
		// Uploads deliberately outlive run cancellation; JoinAll is the only
		// drain barrier.
		handle.err = s.upload(context.Background(), key, envelope)
	}); err != nil {
		return nil, fmt.Errorf("submit batch to upload pool: %w", err)
	}
	return handle, nil
}

func (s *UploaderService) upload(ctx context.Context, key string, envelope batch.Envelope) error {
	body, err := sonic.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", key, err)
	}
	if err := s.store.Put(ctx, key, body); err != nil {
		return fmt.Errorf("upload batch %s: %w", key, err)
	}
	s.progress.IncrUploadedBatch()
	s.logger.Info("batch uploaded", "key", key, "matches", envelope.Metadata.MatchCount, "bytes", len(body))
	return nil
}

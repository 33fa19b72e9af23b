package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jordanmatta/recollect/internal/embedding"
	"github.com/jordanmatta/recollect/internal/storage"
)

// Worker drains the pending raw queue in the background. One record failing
// never aborts the batch or the loop; transient failures are retried until
// the ceiling, then marked terminally failed with their last error.
type Worker struct {
	store        storage.Store
	deriver      *Deriver
	batchSize    int
	idleInterval time.Duration
	maxRetries   int
	logger       *slog.Logger
}

// WorkerConfig tunes the poll loop.
type WorkerConfig struct {
	BatchSize    int
	IdleInterval time.Duration
	MaxRetries   int
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:    5,
		IdleInterval: 5 * time.Second,
		MaxRetries:   3,
	}
}

func NewWorker(store storage.Store, deriver *Deriver, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:        store,
		deriver:      deriver,
		batchSize:    cfg.BatchSize,
		idleInterval: cfg.IdleInterval,
		maxRetries:   cfg.MaxRetries,
		logger:       logger,
	}
}

// Run polls until ctx is cancelled. An empty poll sleeps the idle interval;
// a non-empty poll yields straight into the next one.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"batch_size", w.batchSize, "idle_interval", w.idleInterval, "max_retries", w.maxRetries)

	for {
		processed, err := w.ProcessBatch(ctx)
		if err != nil {
			w.logger.Error("batch poll failed", "error", err)
		}

		var wait time.Duration
		if processed == 0 {
			wait = w.idleInterval
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ProcessBatch derives one batch of pending records, oldest first. Returns
// how many records it attempted.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	pending, err := w.store.PendingRaw(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	for i := range pending {
		raw := &pending[i]
		if _, err := w.deriver.DeriveOne(ctx, raw); err != nil {
			w.handleFailure(ctx, raw.ID, err)
		}
	}
	return len(pending), nil
}

func (w *Worker) handleFailure(ctx context.Context, id string, derr error) {
	reason := derr.Error()

	// A derived record that already exists means the raw row just missed its
	// processed stamp; repair instead of retrying.
	if errors.Is(derr, storage.ErrAlreadyDerived) {
		if err := w.store.MarkRawProcessed(ctx, id, nil); err != nil {
			w.logger.Error("failed to repair processed stamp", "id", id, "error", err)
		}
		return
	}

	// Permanent failures go terminal immediately, but the attempt still
	// counts so the audit trail shows how often the record was tried.
	if !embedding.Retryable(derr) {
		w.logger.Warn("derivation failed permanently", "id", id, "error", derr)
		if _, err := w.store.RecordRawFailure(ctx, id, reason); err != nil {
			w.logger.Error("failed to record failure", "id", id, "error", err)
		}
		if err := w.store.MarkRawProcessed(ctx, id, &reason); err != nil {
			w.logger.Error("failed to mark terminal failure", "id", id, "error", err)
		}
		return
	}

	count, err := w.store.RecordRawFailure(ctx, id, reason)
	if err != nil {
		w.logger.Error("failed to record failure", "id", id, "error", err)
		return
	}

	if count >= w.maxRetries {
		w.logger.Warn("derivation gave up", "id", id, "retries", count, "error", derr)
		if err := w.store.MarkRawProcessed(ctx, id, &reason); err != nil {
			w.logger.Error("failed to mark terminal failure", "id", id, "error", err)
		}
		return
	}

	w.logger.Debug("derivation will retry", "id", id, "attempt", count, "error", derr)
}

package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gymcore/access-service/internal/observability"
	"github.com/gymcore/access-service/internal/repository"
)

// PruneWorker deletes access log entries older than the retention period.
// Pruned nonces cannot be replayed since their credentials are long expired.
type PruneWorker struct {
	records   repository.AccessRecordRepository
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewPruneWorker builds the worker.
func NewPruneWorker(records repository.AccessRecordRepository, retention, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *PruneWorker {
	return &PruneWorker{
		records:   records,
		retention: retention,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run prunes once immediately and then on every tick until ctx is cancelled.
func (w *PruneWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.PruneOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("access log prune failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PruneOnce removes records attempted before now minus retention.
func (w *PruneWorker) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := w.now().UTC().Add(-w.retention)
	n, err := w.records.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	w.metrics.RecordPruned(n)
	if n > 0 {
		w.logger.Info("access log pruned", zap.Int64("records", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

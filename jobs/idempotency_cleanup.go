package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vendai/vendai-jobs/internal/jobs"
)

// KeyCleaner prunes processed event keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob deletes event keys past their retention.
type IdempotencyCleanupJob struct {
	Store   KeyCleaner
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires the cleanup handler.
func NewIdempotencyCleanupJob(store KeyCleaner, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskIdempotencyCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskIdempotencyCleanup).With(slog.Duration("retention", retention))

	resultErr = runExclusive(ctx, j.Locker, metrics, TaskIdempotencyCleanup, logger, func(ctx context.Context) error {
		removed, err := j.Store.Cleanup(ctx, retention)
		if err != nil {
			logger.Error("cleanup idempotency keys", slog.Any("error", err))
			return err
		}
		metrics.AddSideEffects(TaskIdempotencyCleanup, "key_deleted", int(removed))
		logger.Info("completed idempotency cleanup", slog.Int64("removed", removed))
		return nil
	})
	return resultErr
}

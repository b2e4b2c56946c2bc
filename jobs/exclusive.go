package jobs

import (
	"context"
	"errors"
	"log/slog"

	jobmetrics "github.com/vendai/vendai-jobs/internal/jobs"
	"github.com/vendai/vendai-jobs/internal/platform/cache"
	"github.com/vendai/vendai-jobs/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Locker guards a batch job against overlapping runs.
type Locker interface {
	Do(ctx context.Context, key string, fn func(context.Context) error) error
}

// runExclusive runs fn while holding the lock of job. A run that finds the lock
// held elsewhere is recorded and treated as a no-op.
func runExclusive(ctx context.Context, locker Locker, metrics *jobmetrics.Metrics, job string, logger *slog.Logger, fn func(context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	err := locker.Do(ctx, shared.JobLockKey(job), fn)
	if errors.Is(err, cache.ErrLocked) {
		metrics.SkipRun(job)
		logger.Info("job already running on another worker, skipping")
		return nil
	}
	return err
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger != nil {
		return logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vendai/vendai-jobs/internal/jobs"
	"github.com/vendai/vendai-jobs/internal/replenishment"
)

// ReplenishmentGenerator runs one replenishment check.
type ReplenishmentGenerator interface {
	Run(ctx context.Context, triggeredBy string) (replenishment.Summary, error)
}

// ReplenishmentJob proposes purchase quantities for low-stock products.
type ReplenishmentJob struct {
	Replenishment ReplenishmentGenerator
	Locker        Locker
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

// NewReplenishmentJob wires the daily replenishment handler.
func NewReplenishmentJob(svc ReplenishmentGenerator, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReplenishmentJob {
	return &ReplenishmentJob{Replenishment: svc, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskReplenishmentDailyCheck tasks.
func (j *ReplenishmentJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Replenishment == nil {
		return errors.New("replenishment: handler not configured")
	}
	var payload BatchPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	triggeredBy := replenishment.TriggerCron
	if payload.TriggeredBy == TriggerManual {
		triggeredBy = replenishment.TriggerManual
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskReplenishmentDailyCheck)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskReplenishmentDailyCheck).With(slog.String("triggered_by", triggeredBy))
	logger.Info("starting replenishment check")

	resultErr = runExclusive(ctx, j.Locker, metrics, TaskReplenishmentDailyCheck, logger, func(ctx context.Context) error {
		summary, err := j.Replenishment.Run(ctx, triggeredBy)
		metrics.AddEntities(TaskReplenishmentDailyCheck, jobmetrics.OutcomeProcessed, summary.ProcessedOrgs)
		metrics.AddEntities(TaskReplenishmentDailyCheck, jobmetrics.OutcomeFailed, len(summary.Errors))
		metrics.AddSideEffects(TaskReplenishmentDailyCheck, "suggestion", summary.TotalSuggestions)
		if err != nil {
			logger.Error("replenishment check", slog.Any("error", err))
			return err
		}
		logger.Info("completed replenishment check",
			slog.String("run_id", summary.RunID.String()),
			slog.Int("organizations", summary.ProcessedOrgs),
			slog.Int("suggestions", summary.TotalSuggestions),
			slog.Int("errors", len(summary.Errors)),
			slog.Duration("duration", summary.Duration),
		)
		return nil
	})
	return resultErr
}

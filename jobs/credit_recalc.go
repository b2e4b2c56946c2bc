package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vendai/vendai-jobs/internal/credit"
	jobmetrics "github.com/vendai/vendai-jobs/internal/jobs"
	"github.com/vendai/vendai-jobs/internal/shared"
)

const idempotencyModule = "credit"

// CreditRecalculator is the credit service surface used by the jobs.
type CreditRecalculator interface {
	Recalculate(ctx context.Context, retailerID string, reason credit.Reason, triggerID string) (*credit.Result, error)
	RecalculateActive(ctx context.Context) (credit.BatchSummary, error)
}

// IdempotencyStore records processed event keys.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CreditRecalculateAllJob recalculates every active retailer.
type CreditRecalculateAllJob struct {
	Credit  CreditRecalculator
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCreditRecalculateAllJob wires the scheduled recalculation handler.
func NewCreditRecalculateAllJob(svc CreditRecalculator, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *CreditRecalculateAllJob {
	return &CreditRecalculateAllJob{Credit: svc, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskCreditRecalculateAll tasks.
func (j *CreditRecalculateAllJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Credit == nil {
		return errors.New("credit recalculation: handler not configured")
	}
	var payload BatchPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskCreditRecalculateAll)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskCreditRecalculateAll).With(slog.String("triggered_by", payload.TriggeredBy))
	logger.Info("starting credit recalculation")

	resultErr = runExclusive(ctx, j.Locker, metrics, TaskCreditRecalculateAll, logger, func(ctx context.Context) error {
		summary, err := j.Credit.RecalculateActive(ctx)
		metrics.AddEntities(TaskCreditRecalculateAll, jobmetrics.OutcomeProcessed, summary.Processed)
		metrics.AddEntities(TaskCreditRecalculateAll, jobmetrics.OutcomeSkipped, summary.Skipped)
		metrics.AddEntities(TaskCreditRecalculateAll, jobmetrics.OutcomeFailed, summary.Failures)
		if err != nil {
			logger.Error("credit recalculation", slog.Any("error", err))
			return err
		}
		logger.Info("completed credit recalculation",
			slog.Int("processed", summary.Processed),
			slog.Int("skipped", summary.Skipped),
			slog.Int("failures", summary.Failures),
			slog.Duration("duration", summary.Duration),
		)
		return nil
	})
	return resultErr
}

// CreditRecalculateJob recalculates one retailer after an event or a manual
// request. Each event is processed at most once.
type CreditRecalculateJob struct {
	Credit      CreditRecalculator
	Idempotency IdempotencyStore
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewCreditRecalculateJob wires the single retailer recalculation handler.
func NewCreditRecalculateJob(svc CreditRecalculator, store IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *CreditRecalculateJob {
	return &CreditRecalculateJob{
		Credit:      svc,
		Idempotency: store,
		Logger:      logger,
		Metrics:     metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskCreditRecalculate tasks.
func (j *CreditRecalculateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Credit == nil {
		return errors.New("credit recalculate: handler not configured")
	}
	var payload RecalculatePayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskCreditRecalculate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskCreditRecalculate).With(
		slog.String("retailer_id", payload.RetailerID),
		slog.String("reason", string(payload.Reason)),
		slog.String("trigger_id", payload.TriggerID),
		slog.String("event_id", payload.EventID),
	)

	key := ""
	if payload.TriggerID != "" && j.Idempotency != nil {
		key = payload.eventKey()
		err := j.Idempotency.CheckAndInsert(ctx, key, idempotencyModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			metrics.AddEntities(TaskCreditRecalculate, jobmetrics.OutcomeSkipped, 1)
			logger.Info("event already processed")
			return resultErr
		}
		if err != nil {
			resultErr = err
			logger.Error("record event key", slog.Any("error", err))
			return resultErr
		}
	}

	start := j.now()
	result, err := j.Credit.Recalculate(ctx, payload.RetailerID, payload.Reason, payload.TriggerID)
	if err != nil {
		resultErr = err
		metrics.AddEntities(TaskCreditRecalculate, jobmetrics.OutcomeFailed, 1)
		logger.Error("recalculate credit", slog.Any("error", err))
		if key != "" {
			if delErr := j.Idempotency.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				logger.Warn("release event key", slog.Any("error", delErr))
			}
		}
		return resultErr
	}
	if result == nil {
		metrics.AddEntities(TaskCreditRecalculate, jobmetrics.OutcomeSkipped, 1)
		return resultErr
	}
	metrics.AddEntities(TaskCreditRecalculate, jobmetrics.OutcomeProcessed, 1)
	if result.Watchlist.Status == credit.WatchlistWatching {
		metrics.AddSideEffects(TaskCreditRecalculate, "watchlist", 1)
	}
	logger.Info("credit recalculated",
		slog.Float64("score", result.Assessment.Score),
		slog.Float64("recommended_limit", result.Assessment.RecommendedLimit),
		slog.String("tier", result.Assessment.Tier.ID),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *CreditRecalculateJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vendai/vendai-jobs/internal/comms"
	jobmetrics "github.com/vendai/vendai-jobs/internal/jobs"
)

// DefaultStaleAfter is how long a claimed communication job may stay in
// processing before it is handed out again.
const DefaultStaleAfter = 30 * time.Minute

// MessageDeliverer drains pending communication jobs.
type MessageDeliverer interface {
	Deliver(ctx context.Context) (comms.DeliverySummary, error)
}

// StaleReleaser returns abandoned claims to the pending state.
type StaleReleaser interface {
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// CommsDeliverJob sends queued email communication jobs.
type CommsDeliverJob struct {
	Deliverer  MessageDeliverer
	Stale      StaleReleaser
	StaleAfter time.Duration
	Locker     Locker
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewCommsDeliverJob wires the delivery handler.
func NewCommsDeliverJob(deliverer MessageDeliverer, stale StaleReleaser, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *CommsDeliverJob {
	return &CommsDeliverJob{
		Deliverer:  deliverer,
		Stale:      stale,
		StaleAfter: DefaultStaleAfter,
		Locker:     locker,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskCommsDeliver tasks.
func (j *CommsDeliverJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Deliverer == nil {
		return errors.New("comms deliver: handler not configured")
	}
	var payload BatchPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskCommsDeliver)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskCommsDeliver).With(slog.String("triggered_by", payload.TriggeredBy))

	resultErr = runExclusive(ctx, j.Locker, metrics, TaskCommsDeliver, logger, func(ctx context.Context) error {
		if j.Stale != nil {
			staleAfter := j.StaleAfter
			if staleAfter <= 0 {
				staleAfter = DefaultStaleAfter
			}
			released, err := j.Stale.ReleaseStale(ctx, j.now().Add(-staleAfter))
			if err != nil {
				logger.Warn("release stale communication jobs", slog.Any("error", err))
			} else if released > 0 {
				logger.Info("released stale communication jobs", slog.Int64("released", released))
			}
		}
		summary, err := j.Deliverer.Deliver(ctx)
		metrics.AddEntities(TaskCommsDeliver, jobmetrics.OutcomeProcessed, summary.Sent)
		metrics.AddEntities(TaskCommsDeliver, jobmetrics.OutcomeSkipped, summary.Retried)
		metrics.AddEntities(TaskCommsDeliver, jobmetrics.OutcomeFailed, summary.Failed)
		metrics.AddSideEffects(TaskCommsDeliver, "email_sent", summary.Sent)
		if err != nil {
			logger.Error("deliver communication jobs", slog.Any("error", err))
			return err
		}
		if summary.Claimed > 0 {
			logger.Info("delivered communication jobs",
				slog.Int("claimed", summary.Claimed),
				slog.Int("sent", summary.Sent),
				slog.Int("retried", summary.Retried),
				slog.Int("failed", summary.Failed),
				slog.Duration("duration", summary.Duration),
			)
		}
		return nil
	})
	return resultErr
}

func (j *CommsDeliverJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

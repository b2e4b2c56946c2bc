package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vendai/vendai-jobs/internal/jobs"
	"github.com/vendai/vendai-jobs/internal/reminders"
)

// ReminderDispatcher runs one overdue reminder pass.
type ReminderDispatcher interface {
	Run(ctx context.Context) (reminders.Summary, error)
}

// OverdueRemindersJob notifies retailers about overdue invoices.
type OverdueRemindersJob struct {
	Reminders ReminderDispatcher
	Locker    Locker
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewOverdueRemindersJob wires the overdue reminder handler.
func NewOverdueRemindersJob(svc ReminderDispatcher, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueRemindersJob {
	return &OverdueRemindersJob{Reminders: svc, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskRemindersOverdue tasks.
func (j *OverdueRemindersJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reminders == nil {
		return errors.New("overdue reminders: handler not configured")
	}
	var payload BatchPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskRemindersOverdue)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskRemindersOverdue).With(slog.String("triggered_by", payload.TriggeredBy))
	logger.Info("starting overdue reminders")

	resultErr = runExclusive(ctx, j.Locker, metrics, TaskRemindersOverdue, logger, func(ctx context.Context) error {
		summary, err := j.Reminders.Run(ctx)
		metrics.AddEntities(TaskRemindersOverdue, jobmetrics.OutcomeProcessed, summary.NotificationsSent)
		metrics.AddEntities(TaskRemindersOverdue, jobmetrics.OutcomeSkipped, summary.Skipped)
		metrics.AddEntities(TaskRemindersOverdue, jobmetrics.OutcomeFailed, summary.Failures)
		metrics.AddSideEffects(TaskRemindersOverdue, "notification", summary.NotificationsSent)
		metrics.AddSideEffects(TaskRemindersOverdue, "email", summary.EmailsQueued)
		metrics.AddSideEffects(TaskRemindersOverdue, "sms", summary.SMSQueued)
		if err != nil {
			logger.Error("overdue reminders", slog.Any("error", err))
			return err
		}
		logger.Info("completed overdue reminders",
			slog.Int("notifications", summary.NotificationsSent),
			slog.Int("emails", summary.EmailsQueued),
			slog.Int("sms", summary.SMSQueued),
			slog.Int("skipped", summary.Skipped),
			slog.Int("failures", summary.Failures),
			slog.Duration("duration", summary.Duration),
		)
		return nil
	})
	return resultErr
}

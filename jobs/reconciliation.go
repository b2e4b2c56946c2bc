package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vendai/vendai-jobs/internal/jobs"
	"github.com/vendai/vendai-jobs/internal/reconciliation"
)

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context) (reconciliation.Summary, error)
}

// ReconciliationJob reconciles delivered purchase orders against invoices and
// payments.
type ReconciliationJob struct {
	Reconciler Reconciler
	Locker     Locker
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewReconciliationJob wires the reconciliation handler.
func NewReconciliationJob(svc Reconciler, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconciliationJob {
	return &ReconciliationJob{Reconciler: svc, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskReconciliationRun tasks.
func (j *ReconciliationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconciliation: handler not configured")
	}
	var payload BatchPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskReconciliationRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskReconciliationRun).With(slog.String("triggered_by", payload.TriggeredBy))
	logger.Info("starting reconciliation")

	resultErr = runExclusive(ctx, j.Locker, metrics, TaskReconciliationRun, logger, func(ctx context.Context) error {
		summary, err := j.Reconciler.Run(ctx)
		metrics.AddEntities(TaskReconciliationRun, jobmetrics.OutcomeProcessed, summary.Processed)
		metrics.AddEntities(TaskReconciliationRun, jobmetrics.OutcomeMismatch, summary.Mismatches)
		metrics.AddEntities(TaskReconciliationRun, jobmetrics.OutcomeFailed, summary.Failures)
		metrics.AddSideEffects(TaskReconciliationRun, "ledger_entry", summary.Backfilled)
		metrics.AddSideEffects(TaskReconciliationRun, "issue_resolved", summary.IssuesResolved)
		if err != nil {
			logger.Error("reconciliation", slog.Any("error", err))
			return err
		}
		logger.Info("completed reconciliation",
			slog.Int("processed", summary.Processed),
			slog.Int("mismatches", summary.Mismatches),
			slog.Int("backfilled", summary.Backfilled),
			slog.Int("issues_resolved", summary.IssuesResolved),
			slog.Int("failures", summary.Failures),
			slog.Duration("duration", summary.Duration),
		)
		return nil
	})
	return resultErr
}

package comms

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StorePort abstracts the job store used by Deliverer.
type StorePort interface {
	ClaimPending(ctx context.Context, ch Channel, limit int, now time.Time) ([]Job, error)
	MarkSent(ctx context.Context, job Job, at time.Time) error
	MarkRetry(ctx context.Context, job Job, reason string, next, at time.Time) error
	MarkFailed(ctx context.Context, job Job, reason string, at time.Time) error
}

// Delivery defaults.
const (
	DefaultBatchSize   = 50
	DefaultMaxAttempts = 5
	retryBackoff       = 5 * time.Minute
)

// DeliveryConfig tunes Deliverer.
type DeliveryConfig struct {
	BatchSize   int
	MaxAttempts int
}

// Deliverer drains pending email jobs.
type Deliverer struct {
	store    StorePort
	renderer *Renderer
	mailer   Mailer
	cfg      DeliveryConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewDeliverer constructs Deliverer.
func NewDeliverer(store StorePort, renderer *Renderer, mailer Mailer, cfg DeliveryConfig, logger *slog.Logger) *Deliverer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		store:    store,
		renderer: renderer,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "comms")),
		now:      time.Now,
	}
}

// Deliver claims one batch of due email jobs and sends them in priority order.
func (d *Deliverer) Deliver(ctx context.Context) (DeliverySummary, error) {
	start := d.now()
	jobs, err := d.store.ClaimPending(ctx, ChannelEmail, d.cfg.BatchSize, start.UTC())
	if err != nil {
		return DeliverySummary{}, fmt.Errorf("comms: claim jobs: %w", err)
	}
	summary := DeliverySummary{Claimed: len(jobs)}
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		switch outcome, err := d.deliver(ctx, job); {
		case err != nil:
			d.logger.Error("update communication job", slog.String("job_id", job.ID.String()), slog.Any("error", err))
		case outcome == StatusSent:
			summary.Sent++
		case outcome == StatusPending:
			summary.Retried++
		default:
			summary.Failed++
		}
	}
	summary.Duration = d.now().Sub(start)
	d.logger.Info("communication delivery completed",
		slog.Int("claimed", summary.Claimed),
		slog.Int("sent", summary.Sent),
		slog.Int("retried", summary.Retried),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration),
	)
	return summary, ctx.Err()
}

func (d *Deliverer) deliver(ctx context.Context, job Job) (Status, error) {
	msg, err := d.renderer.Render(job)
	if err != nil {
		d.logger.Warn("communication job cannot be rendered", slog.String("job_id", job.ID.String()), slog.Any("error", err))
		return StatusFailed, d.store.MarkFailed(ctx, job, err.Error(), d.now().UTC())
	}
	sendErr := d.mailer.Send(ctx, msg)
	at := d.now().UTC()
	if sendErr == nil {
		return StatusSent, d.store.MarkSent(ctx, job, at)
	}
	d.logger.Warn("send communication job",
		slog.String("job_id", job.ID.String()),
		slog.Int("attempts", job.Attempts),
		slog.Any("error", sendErr),
	)
	if job.Attempts >= d.cfg.MaxAttempts {
		return StatusFailed, d.store.MarkFailed(ctx, job, sendErr.Error(), at)
	}
	next := at.Add(time.Duration(job.Attempts) * retryBackoff)
	return StatusPending, d.store.MarkRetry(ctx, job, sendErr.Error(), next, at)
}

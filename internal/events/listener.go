package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendai/vendai-jobs/internal/credit"
	"github.com/vendai/vendai-jobs/internal/shared"
)

// Enqueuer schedules a credit recalculation.
type Enqueuer interface {
	EnqueueRecalculate(ctx context.Context, retailerID string, reason credit.Reason, triggerID, eventID string) error
}

// Listener consumes store notifications on a dedicated connection.
type Listener struct {
	pool    *pgxpool.Pool
	enq     Enqueuer
	logger  *slog.Logger
	backoff time.Duration
}

// NewListener constructs Listener.
func NewListener(pool *pgxpool.Pool, enq Enqueuer, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{pool: pool, enq: enq, logger: logger.With(slog.String("component", "events")), backoff: 5 * time.Second}
}

// Run listens until ctx is cancelled, reconnecting after connection failures.
func (l *Listener) Run(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return errors.New("events: listener not configured")
	}
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("event listener disconnected", slog.Any("error", err), slog.Duration("retry_in", l.backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	pgConn := conn.Hijack()
	defer func() { _ = pgConn.Close(context.WithoutCancel(ctx)) }()

	if _, err := pgConn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("listening for store events", slog.String("channel", Channel))
	for {
		n, err := pgConn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if err := l.Dispatch(ctx, []byte(n.Payload)); err != nil {
			l.logger.Error("dispatch store event", slog.String("payload", n.Payload), slog.Any("error", err))
		}
	}
}

// Dispatch routes one notification payload. Events that need no work and
// events without a retailer are logged and dropped.
func (l *Listener) Dispatch(ctx context.Context, payload []byte) error {
	ev, err := Decode(payload)
	if err != nil {
		return err
	}
	trigger, ok, err := Route(ev)
	if errors.Is(err, shared.ErrMissingRetailer) {
		l.logger.Warn("event without retailer id", slog.String("kind", string(ev.Kind)), slog.String("id", ev.ID))
		return nil
	}
	if err != nil || !ok {
		return err
	}
	if err := l.enq.EnqueueRecalculate(ctx, trigger.RetailerID, trigger.Reason, trigger.TriggerID, trigger.EventID); err != nil {
		return fmt.Errorf("events: enqueue %s for %s: %w", trigger.Reason, trigger.RetailerID, err)
	}
	l.logger.Debug("credit recalculation enqueued",
		slog.String("retailer_id", trigger.RetailerID),
		slog.String("reason", string(trigger.Reason)),
		slog.String("trigger_id", trigger.TriggerID),
		slog.String("event_id", trigger.EventID),
	)
	return nil
}

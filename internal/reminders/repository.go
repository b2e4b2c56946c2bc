package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendai/vendai-jobs/internal/comms"
	"github.com/vendai/vendai-jobs/internal/platform/db"
	"github.com/vendai/vendai-jobs/internal/records"
)

// Repository persists reminder data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	txs  db.TxBeginner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, txs: pool}
}

// TxRepository exposes the writes performed atomically per reminded invoice.
type TxRepository interface {
	InsertNotification(ctx context.Context, n Notification) error
	EnqueueCommunication(ctx context.Context, job comms.Job) (bool, error)
	MarkReminded(ctx context.Context, invoiceID string, channels Channels, at time.Time) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.txs, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ListUnpaidInvoices returns invoices in the given payment statuses. Due
// dates are stored in several shapes and are filtered by the caller.
func (r *Repository) ListUnpaidInvoices(ctx context.Context, statuses []string) ([]records.Invoice, error) {
	const query = `SELECT id, doc FROM invoices WHERE doc->>'paymentStatus' = ANY($1) ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, statuses)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.Invoice](rows)
}

// GetUser loads a user document.
func (r *Repository) GetUser(ctx context.Context, id string) (records.User, bool, error) {
	user, err := records.ScanRow[records.User](r.pool.QueryRow(ctx, `SELECT id, doc FROM users WHERE id = $1`, id))
	if errors.Is(err, records.ErrNotFound) {
		return records.User{}, false, nil
	}
	if err != nil {
		return records.User{}, false, err
	}
	return user, true, nil
}

func (t *txRepo) InsertNotification(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return err
	}
	const query = `INSERT INTO notifications (id, type, user_id, organization_id, title, message, data, read, created_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, FALSE, $8)`
	_, err = t.tx.Exec(ctx, query, n.ID, n.Type, n.UserID, n.OrganizationID, n.Title, n.Message, data, n.CreatedAt)
	return err
}

func (t *txRepo) EnqueueCommunication(ctx context.Context, job comms.Job) (bool, error) {
	return comms.Enqueue(ctx, t.tx, job)
}

func (t *txRepo) MarkReminded(ctx context.Context, invoiceID string, channels Channels, at time.Time) error {
	encoded, err := json.Marshal(channels)
	if err != nil {
		return err
	}
	const query = `UPDATE invoices
SET doc = doc || jsonb_build_object(
        'lastReminderSent', to_jsonb($2::timestamptz),
        'reminderCount', CASE WHEN jsonb_typeof(doc->'reminderCount') = 'number'
                              THEN (doc->>'reminderCount')::numeric ELSE 0 END + 1,
        'lastReminderChannels', $3::jsonb),
    updated_at = $2
WHERE id = $1`
	_, err = t.tx.Exec(ctx, query, invoiceID, at, encoded)
	return err
}

package comms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer is satisfied by pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Enqueue inserts job unless a job with the same unique key exists. It
// reports whether a row was written.
func Enqueue(ctx context.Context, exec Execer, job Job) (bool, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return false, fmt.Errorf("comms: encode payload: %w", err)
	}
	const query = `INSERT INTO communication_jobs (
    id, unique_key, channel, status, priority, recipient, template, invoice_id, retailer_id, message, payload,
    scheduled_for, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, $13)
ON CONFLICT DO NOTHING`
	tag, err := exec.Exec(ctx, query, job.ID, job.UniqueKey, string(job.Channel), string(job.Status), string(job.Priority),
		job.Recipient, job.Template, job.InvoiceID, job.RetailerID, job.Message, payload, job.ScheduledFor, job.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Store reads and updates communication jobs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Enqueue inserts job outside of any transaction.
func (s *Store) Enqueue(ctx context.Context, job Job) (bool, error) {
	return Enqueue(ctx, s.pool, job)
}

// ClaimPending moves up to limit due jobs of a channel to processing and
// returns them. Rows locked by another claimer are skipped.
func (s *Store) ClaimPending(ctx context.Context, ch Channel, limit int, now time.Time) ([]Job, error) {
	const query = `UPDATE communication_jobs
SET status = 'processing', attempts = attempts + 1, updated_at = $3
WHERE id IN (
    SELECT id FROM communication_jobs
    WHERE channel = $1 AND status = 'pending' AND scheduled_for <= $3
    ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 ELSE 2 END, scheduled_for
    LIMIT $2
    FOR UPDATE SKIP LOCKED)
RETURNING id, unique_key, channel, status, priority, recipient, template, invoice_id,
    retailer_id, message, payload, attempts, last_error, scheduled_for, created_at`
	rows, err := s.pool.Query(ctx, query, string(ch), limit, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Job, error) {
		var (
			job                                                 Job
			channel, status, priority                           string
			template, invoiceID, retailerID, message, lastError pgtype.Text
			payload                                             []byte
		)
		err := row.Scan(&job.ID, &job.UniqueKey, &channel, &status, &priority, &job.Recipient, &template,
			&invoiceID, &retailerID, &message, &payload, &job.Attempts, &lastError, &job.ScheduledFor, &job.CreatedAt)
		if err != nil {
			return Job{}, err
		}
		job.Channel, job.Status, job.Priority = Channel(channel), Status(status), Priority(priority)
		job.Template, job.InvoiceID, job.RetailerID = template.String, invoiceID.String, retailerID.String
		job.Message, job.LastError = message.String, lastError.String
		job.Payload = map[string]any{}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &job.Payload)
		}
		return job, nil
	})
}

// MarkSent records a successful delivery.
func (s *Store) MarkSent(ctx context.Context, job Job, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE communication_jobs
SET status = 'sent', sent_at = $2, last_error = NULL, updated_at = $2 WHERE id = $1`, job.ID, at)
	return err
}

// MarkRetry returns a job to pending, due at next.
func (s *Store) MarkRetry(ctx context.Context, job Job, reason string, next, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE communication_jobs
SET status = 'pending', last_error = $2, scheduled_for = $3, updated_at = $4 WHERE id = $1`, job.ID, reason, next, at)
	return err
}

// MarkFailed parks a job permanently.
func (s *Store) MarkFailed(ctx context.Context, job Job, reason string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE communication_jobs
SET status = 'failed', last_error = $2, updated_at = $3 WHERE id = $1`, job.ID, reason, at)
	return err
}

// ReleaseStale returns jobs stuck in processing since before cutoff to pending.
func (s *Store) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE communication_jobs
SET status = 'pending', updated_at = NOW() WHERE status = 'processing' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

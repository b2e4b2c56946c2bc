package credit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendai/vendai-jobs/internal/credit/scoring"
	"github.com/vendai/vendai-jobs/internal/platform/db"
	"github.com/vendai/vendai-jobs/internal/records"
)

var outstandingInvoiceStatuses = []string{"pending", "partial", "overdue"}

// Repository persists credit data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	txs  db.TxBeginner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, txs: pool}
}

// TxRepository exposes the writes performed atomically per recalculation.
type TxRepository interface {
	MergeProfile(ctx context.Context, retailerID string, metrics ProfileMetrics, assessment scoring.Assessment, at time.Time) error
	AppendHistory(ctx context.Context, record HistoryRecord) error
	UpsertWatchlist(ctx context.Context, entry WatchlistEntry, at time.Time) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type txRepo struct {
	tx execer
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.txs, pgx.RepeatableRead, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetProfile loads the credit profile of a retailer.
func (r *Repository) GetProfile(ctx context.Context, retailerID string) (Profile, error) {
	const query = `SELECT retailer_id, metrics, last_assessment, created_at, updated_at
FROM credit_profiles WHERE retailer_id = $1`
	var (
		p              Profile
		metrics        []byte
		lastAssessment []byte
	)
	err := r.pool.QueryRow(ctx, query, retailerID).Scan(&p.RetailerID, &metrics, &lastAssessment, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	if err := records.Decode(metrics, &p.Metrics); err != nil {
		return Profile{}, fmt.Errorf("decode metrics: %w", err)
	}
	if len(lastAssessment) > 0 {
		var a scoring.Assessment
		if err := json.Unmarshal(lastAssessment, &a); err == nil {
			p.LastAssessment = &a
		}
	}
	return p, nil
}

// GetUser loads a users document.
func (r *Repository) GetUser(ctx context.Context, userID string) (records.User, bool, error) {
	user, err := records.ScanRow[records.User](r.pool.QueryRow(ctx, `SELECT id, doc FROM users WHERE id = $1`, userID))
	if errors.Is(err, records.ErrNotFound) {
		return records.User{}, false, nil
	}
	if err != nil {
		return records.User{}, false, err
	}
	return user, true, nil
}

// ListPaymentsSince returns the newest payments of a retailer stored since the cutoff.
func (r *Repository) ListPaymentsSince(ctx context.Context, retailerID string, since time.Time, limit int) ([]records.Payment, error) {
	const query = `SELECT id, doc FROM payments
WHERE doc->>'retailerId' = $1 AND created_at >= $2
ORDER BY created_at DESC
LIMIT $3`
	rows, err := r.pool.Query(ctx, query, retailerID, since, limit)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.Payment](rows)
}

// ListPurchaseOrdersSince returns the purchase orders of a retailer created since the cutoff.
func (r *Repository) ListPurchaseOrdersSince(ctx context.Context, retailerID string, since time.Time) ([]records.PurchaseOrder, error) {
	const query = `SELECT id, doc FROM purchase_orders
WHERE doc->>'retailerId' = $1 AND created_at >= $2
ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, retailerID, since)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.PurchaseOrder](rows)
}

// ListOutstandingInvoices returns the unpaid invoices of a retailer.
func (r *Repository) ListOutstandingInvoices(ctx context.Context, retailerID string) ([]records.Invoice, error) {
	const query = `SELECT id, doc FROM invoices
WHERE doc->>'retailerId' = $1 AND doc->>'paymentStatus' = ANY($2)`
	rows, err := r.pool.Query(ctx, query, retailerID, outstandingInvoiceStatuses)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.Invoice](rows)
}

// CountDisputesSince counts disputes raised since the cutoff.
func (r *Repository) CountDisputesSince(ctx context.Context, retailerID string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM disputes WHERE doc->>'retailerId' = $1 AND created_at >= $2`, retailerID, since).Scan(&n)
	return n, err
}

// CountActiveDisputes counts disputes still being worked.
func (r *Repository) CountActiveDisputes(ctx context.Context, retailerID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM disputes WHERE doc->>'retailerId' = $1 AND doc->>'status' = ANY($2)`,
		retailerID, records.ActiveDisputeStatuses).Scan(&n)
	return n, err
}

// GetInvoices loads invoices by id. Missing ids are skipped.
func (r *Repository) GetInvoices(ctx context.Context, ids []string) ([]records.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, doc FROM invoices WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.Invoice](rows)
}

// ListActiveRetailers returns ids of users with role retailer and status active.
func (r *Repository) ListActiveRetailers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE doc->>'role' = 'retailer' AND doc->>'status' = 'active' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListLatestAssessments returns the last assessment stored on every profile.
func (r *Repository) ListLatestAssessments(ctx context.Context) ([]scoring.Assessment, error) {
	rows, err := r.pool.Query(ctx, `SELECT last_assessment FROM credit_profiles WHERE last_assessment IS NOT NULL ORDER BY retailer_id`)
	if err != nil {
		return nil, err
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}
	out := make([]scoring.Assessment, 0, len(raws))
	for _, raw := range raws {
		var a scoring.Assessment
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (t *txRepo) MergeProfile(ctx context.Context, retailerID string, metrics ProfileMetrics, assessment scoring.Assessment, at time.Time) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	assessmentJSON, err := json.Marshal(assessment)
	if err != nil {
		return err
	}
	const query = `INSERT INTO credit_profiles (retailer_id, metrics, last_assessment, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (retailer_id) DO UPDATE SET
    metrics = credit_profiles.metrics || EXCLUDED.metrics,
    last_assessment = EXCLUDED.last_assessment,
    updated_at = EXCLUDED.updated_at`
	_, err = t.tx.Exec(ctx, query, retailerID, metricsJSON, assessmentJSON, at)
	return err
}

func (t *txRepo) AppendHistory(ctx context.Context, rec HistoryRecord) error {
	assessmentJSON, err := json.Marshal(rec.Assessment)
	if err != nil {
		return err
	}
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return err
	}
	metricsJSON, err := json.Marshal(rec.Metrics)
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(rec.Stats)
	if err != nil {
		return err
	}
	var triggerID *string
	if rec.TriggerID != "" {
		triggerID = &rec.TriggerID
	}
	const query = `INSERT INTO credit_history (id, retailer_id, reason, trigger_id, score, tier, assessment, input, metrics, stats, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = t.tx.Exec(ctx, query, rec.ID, rec.RetailerID, string(rec.Reason), triggerID,
		rec.Assessment.Score, rec.Assessment.Tier.ID, assessmentJSON, inputJSON, metricsJSON, statsJSON, rec.CreatedAt)
	return err
}

func (t *txRepo) UpsertWatchlist(ctx context.Context, entry WatchlistEntry, at time.Time) error {
	if entry.Status == WatchlistCleared {
		const query = `INSERT INTO watchlist (retailer_id, status, cleared_at, updated_at)
VALUES ($1, 'cleared', $2, $2)
ON CONFLICT (retailer_id) DO UPDATE SET
    status = 'cleared',
    cleared_at = EXCLUDED.cleared_at,
    updated_at = EXCLUDED.updated_at`
		_, err := t.tx.Exec(ctx, query, entry.RetailerID, at)
		return err
	}
	const query = `INSERT INTO watchlist (retailer_id, status, score, tier, dispute_rate, active_disputes, credit_utilization, reason, updated_at)
VALUES ($1, 'watching', $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (retailer_id) DO UPDATE SET
    status = 'watching',
    score = EXCLUDED.score,
    tier = EXCLUDED.tier,
    dispute_rate = EXCLUDED.dispute_rate,
    active_disputes = EXCLUDED.active_disputes,
    credit_utilization = EXCLUDED.credit_utilization,
    reason = EXCLUDED.reason,
    updated_at = EXCLUDED.updated_at`
	_, err := t.tx.Exec(ctx, query, entry.RetailerID, entry.Score, entry.Tier, entry.DisputeRate,
		entry.ActiveDisputes, entry.CreditUtilization, string(entry.Reason), at)
	return err
}

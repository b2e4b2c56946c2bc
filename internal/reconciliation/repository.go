package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendai/vendai-jobs/internal/platform/db"
	"github.com/vendai/vendai-jobs/internal/records"
)

// Repository persists reconciliation data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	txs  db.TxBeginner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, txs: pool}
}

// TxRepository exposes the writes performed atomically per ledger backfill.
type TxRepository interface {
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (bool, error)
	InsertEvent(ctx context.Context, event Event) error
	ResolveOpenIssues(ctx context.Context, invoiceID, resolution string, at time.Time) (int, error)
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

// ListPurchaseOrdersSince returns purchase orders created since the cutoff in the given statuses.
func (r *Repository) ListPurchaseOrdersSince(ctx context.Context, since time.Time, statuses []string) ([]records.PurchaseOrder, error) {
	const query = `SELECT id, doc FROM purchase_orders
WHERE created_at >= $1 AND doc->>'status' = ANY($2)
ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, since, statuses)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.PurchaseOrder](rows)
}

// FindInvoiceByPurchaseOrder returns the first invoice raised for a purchase order.
func (r *Repository) FindInvoiceByPurchaseOrder(ctx context.Context, purchaseOrderID string) (records.Invoice, bool, error) {
	const query = `SELECT id, doc FROM invoices WHERE doc->>'purchaseOrderId' = $1 ORDER BY created_at LIMIT 1`
	inv, err := records.ScanRow[records.Invoice](r.pool.QueryRow(ctx, query, purchaseOrderID))
	if errors.Is(err, records.ErrNotFound) {
		return records.Invoice{}, false, nil
	}
	if err != nil {
		return records.Invoice{}, false, err
	}
	return inv, true, nil
}

// ListSettledPayments returns payments against an invoice that represent money received.
func (r *Repository) ListSettledPayments(ctx context.Context, invoiceID string) ([]records.Payment, error) {
	const query = `SELECT id, doc FROM payments
WHERE doc->>'invoiceId' = $1 AND doc->>'status' = ANY($2)
ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, invoiceID, records.SettledPaymentStatuses)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.Payment](rows)
}

// LedgerEntryExists reports whether an invoice already has a ledger entry.
func (r *Repository) LedgerEntryExists(ctx context.Context, invoiceID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE invoice_id = $1)`, invoiceID).Scan(&exists)
	return exists, err
}

// InsertIssue records an open issue unless an identical one is already open.
func (r *Repository) InsertIssue(ctx context.Context, issue Issue) error {
	details, err := json.Marshal(issue.Details)
	if err != nil {
		return err
	}
	const query = `INSERT INTO reconciliation_issues (id, type, purchase_order_id, invoice_id, description, details, status, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, 'open', $7)
ON CONFLICT DO NOTHING`
	_, err = r.pool.Exec(ctx, query, issue.ID, string(issue.Type), issue.PurchaseOrderID, issue.InvoiceID,
		issue.Description, details, issue.CreatedAt)
	return err
}

func (t *txRepo) InsertLedgerEntry(ctx context.Context, e LedgerEntry) (bool, error) {
	const query = `INSERT INTO ledger_entries (
    id, invoice_id, purchase_order_id, payment_id, retailer_org_id, supplier_org_id, supplier_id, supplier_name,
    retailer_id, retailer_name, gross_amount, vendai_commission_amount, processor_fee_amount, tax_amount,
    net_payout_amount, currency, reconciliation_status, payout_status, notes, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
    NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
ON CONFLICT (invoice_id) DO NOTHING`
	tag, err := t.tx.Exec(ctx, query,
		e.ID, e.InvoiceID, e.PurchaseOrderID, e.PaymentID, e.RetailerOrgID, e.SupplierOrgID, e.SupplierID, e.SupplierName,
		e.RetailerID, e.RetailerName, e.GrossAmount, e.VendaiCommission, e.ProcessorFee, e.TaxAmount,
		e.NetPayoutAmount, e.Currency, e.ReconciliationStatus, e.PayoutStatus, e.Notes, e.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) InsertEvent(ctx context.Context, ev Event) error {
	const query = `INSERT INTO reconciliation_events (id, type, invoice_id, purchase_order_id, ledger_entry_id, difference, auto_resolved, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := t.tx.Exec(ctx, query, ev.ID, ev.Type, ev.InvoiceID, ev.PurchaseOrderID, ev.LedgerEntryID,
		ev.Difference, ev.AutoResolved, ev.CreatedAt)
	return err
}

func (t *txRepo) ResolveOpenIssues(ctx context.Context, invoiceID, resolution string, at time.Time) (int, error) {
	const query = `UPDATE reconciliation_issues
SET status = 'resolved', resolved_at = $3, resolution = $2
WHERE invoice_id = $1 AND status = 'open'`
	tag, err := t.tx.Exec(ctx, query, invoiceID, resolution, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

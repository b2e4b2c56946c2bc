package replenishment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendai/vendai-jobs/internal/records"
)

// Repository persists replenishment data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOrganizations returns every organization.
func (r *Repository) ListOrganizations(ctx context.Context) ([]records.Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, doc FROM organizations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.Organization](rows)
}

// ListInventory returns the inventory records of an organization.
func (r *Repository) ListInventory(ctx context.Context, orgID string) ([]records.InventoryItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, doc FROM inventory WHERE doc->>'orgId' = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.InventoryItem](rows)
}

// ListProducts returns the product catalog of an organization.
func (r *Repository) ListProducts(ctx context.Context, orgID string) ([]records.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, doc FROM pos_products WHERE doc->>'orgId' = $1`, orgID)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.Product](rows)
}

// ListSupplierSKUs returns the supplier offers for a product.
func (r *Repository) ListSupplierSKUs(ctx context.Context, orgID, productID string) ([]records.SupplierSKU, error) {
	const query = `SELECT id, doc FROM supplier_skus WHERE doc->>'orgId' = $1 AND doc->>'productId' = $2`
	rows, err := r.pool.Query(ctx, query, orgID, productID)
	if err != nil {
		return nil, err
	}
	return records.CollectRows[records.SupplierSKU](rows)
}

// GetSupplier loads a supplier document.
func (r *Repository) GetSupplier(ctx context.Context, id string) (records.Supplier, bool, error) {
	supplier, err := records.ScanRow[records.Supplier](r.pool.QueryRow(ctx, `SELECT id, doc FROM suppliers WHERE id = $1`, id))
	if errors.Is(err, records.ErrNotFound) {
		return records.Supplier{}, false, nil
	}
	if err != nil {
		return records.Supplier{}, false, err
	}
	return supplier, true, nil
}

// InsertSuggestion writes s unless an open suggestion exists for the product.
func (r *Repository) InsertSuggestion(ctx context.Context, s Suggestion) (bool, error) {
	const query = `INSERT INTO replenishment_suggestions (
    id, org_id, product_id, product_name, current_stock, reorder_point, suggested_qty, preferred_supplier_id,
    preferred_supplier_name, supplier_lead_time, unit_cost, total_cost, status, reason, priority, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
ON CONFLICT DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, s.ID, s.OrgID, s.ProductID, s.ProductName, s.CurrentStock, s.ReorderPoint,
		s.SuggestedQty, s.PreferredSupplierID, s.PreferredSupplierName, s.SupplierLeadTime, s.UnitCost, s.TotalCost,
		s.Status, s.Reason, string(s.Priority), s.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// StartRun records a running job.
func (r *Repository) StartRun(ctx context.Context, run JobRun) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO replenishment_jobs (id, type, status, triggered_by, started_at)
VALUES ($1, $2, $3, $4, $5)`, run.ID, run.Type, run.Status, run.TriggeredBy, run.StartedAt)
	return err
}

// FinishRun stores the outcome of a job.
func (r *Repository) FinishRun(ctx context.Context, run JobRun) error {
	var errs []byte
	if len(run.Errors) > 0 {
		encoded, err := json.Marshal(run.Errors)
		if err != nil {
			return err
		}
		errs = encoded
	}
	_, err := r.pool.Exec(ctx, `UPDATE replenishment_jobs
SET status = $2, processed_orgs = $3, total_suggestions = $4, errors = $5, completed_at = $6
WHERE id = $1`, run.ID, run.Status, run.ProcessedOrgs, run.TotalSuggestions, errs, run.CompletedAt)
	return err
}

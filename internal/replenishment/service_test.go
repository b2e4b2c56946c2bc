package replenishment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendai/vendai-jobs/internal/records"
)

type memoryRepo struct {
	mu          sync.Mutex
	orgs        []records.Organization
	inventory   map[string][]records.InventoryItem
	invErrs     map[string]error
	products    map[string][]records.Product
	skus        map[string][]records.SupplierSKU
	suppliers   map[string]records.Supplier
	suggestions []Suggestion
	started     []JobRun
	finished    []JobRun
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		inventory: map[string][]records.InventoryItem{},
		invErrs:   map[string]error{},
		products:  map[string][]records.Product{},
		skus:      map[string][]records.SupplierSKU{},
		suppliers: map[string]records.Supplier{},
	}
}

func (r *memoryRepo) ListOrganizations(context.Context) ([]records.Organization, error) {
	return r.orgs, nil
}

func (r *memoryRepo) ListInventory(_ context.Context, orgID string) ([]records.InventoryItem, error) {
	if err := r.invErrs[orgID]; err != nil {
		return nil, err
	}
	return r.inventory[orgID], nil
}

func (r *memoryRepo) ListProducts(_ context.Context, orgID string) ([]records.Product, error) {
	return r.products[orgID], nil
}

func (r *memoryRepo) ListSupplierSKUs(_ context.Context, orgID, productID string) ([]records.SupplierSKU, error) {
	return r.skus[orgID+"/"+productID], nil
}

func (r *memoryRepo) GetSupplier(_ context.Context, id string) (records.Supplier, bool, error) {
	s, ok := r.suppliers[id]
	return s, ok, nil
}

func (r *memoryRepo) InsertSuggestion(_ context.Context, s Suggestion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.suggestions {
		if existing.OrgID == s.OrgID && existing.ProductID == s.ProductID &&
			(existing.Status == "pending" || existing.Status == "approved") {
			return false, nil
		}
	}
	r.suggestions = append(r.suggestions, s)
	return true, nil
}

func (r *memoryRepo) StartRun(_ context.Context, run JobRun) error {
	r.started = append(r.started, run)
	return nil
}

func (r *memoryRepo) FinishRun(_ context.Context, run JobRun) error {
	r.finished = append(r.finished, run)
	return nil
}

func (r *memoryRepo) suggestion(productID string) (Suggestion, bool) {
	for _, s := range r.suggestions {
		if s.ProductID == productID && s.Status == "pending" && s.Reason != "seeded" {
			return s, true
		}
	}
	return Suggestion{}, false
}

func item(productID string, base, units, loose float64) records.InventoryItem {
	return records.InventoryItem{
		ProductID:    records.Str(productID),
		QtyBase:      records.Num(base),
		UnitsPerBase: records.Num(units),
		QtyLoose:     records.Num(loose),
	}
}

func product(id string, reorderPoint float64) records.Product {
	return records.Product{ID: id, Name: records.Str("Product " + id), ReorderPoint: records.Num(reorderPoint)}
}

func sku(supplierID string, lead, cost float64) records.SupplierSKU {
	return records.SupplierSKU{SupplierID: records.Str(supplierID), LeadTimeDays: records.Num(lead), CostPrice: records.Num(cost)}
}

func seed(repo *memoryRepo) {
	repo.orgs = []records.Organization{{ID: "org-1"}, {ID: "org-2"}}
	repo.invErrs["org-2"] = errors.New("permission denied")

	sugar := product("p1", 100)
	sugar.Name = records.Str("Sugar 1kg")
	sugar.ReorderQty = records.Num(40)
	unnamed := records.Product{ID: "p2", ReorderPoint: records.Num(10)}
	repo.products["org-1"] = []records.Product{
		sugar, unnamed, product("p3", 0), product("p5", 20), product("p6", 5), product("p7", 10), product("p8", 8),
	}
	repo.inventory["org-1"] = []records.InventoryItem{
		item("p1", 2, 10, 3),
		item("p2", 0, 0, 6),
		item("p3", 0, 0, 0),
		item("p4", 0, 0, 0),
		item("p5", 0, 0, 0),
		item("p6", 0, 0, 10),
		item("p7", 0, 0, 1),
		item("p8", 0, 0, 4),
	}
	repo.skus["org-1/p1"] = []records.SupplierSKU{sku("sup-a", 5, 90), sku("sup-b", 3, 120), sku("sup-c", 3, 100)}
	repo.skus["org-1/p2"] = []records.SupplierSKU{{SupplierID: records.Str("sup-a"), CostPrice: records.Num(45.5)}}
	repo.skus["org-1/p7"] = []records.SupplierSKU{sku("sup-ghost", 1, 10)}
	repo.skus["org-1/p8"] = []records.SupplierSKU{sku("sup-a", 2, 10)}
	repo.suppliers["sup-a"] = records.Supplier{ID: "sup-a"}
	repo.suppliers["sup-b"] = records.Supplier{ID: "sup-b", Name: records.Str("Bidco")}
	repo.suppliers["sup-c"] = records.Supplier{ID: "sup-c", Name: records.Str("Coast Traders")}
	repo.suggestions = []Suggestion{{OrgID: "org-1", ProductID: "p8", Status: "approved", Reason: "seeded"}}
}

var runAt = time.Date(2025, 6, 1, 20, 30, 0, 0, time.UTC)

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, 2, nil)
	svc.now = func() time.Time { return runAt }
	return svc
}

func TestRunGeneratesSuggestions(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo)
	svc := newTestService(repo)

	summary, err := svc.Run(context.Background(), TriggerCron)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProcessedOrgs)
	assert.Equal(t, 2, summary.TotalSuggestions)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "org-2", summary.Errors[0].OrgID)
	assert.Contains(t, summary.Errors[0].Error, "permission denied")

	sugar, ok := repo.suggestion("p1")
	require.True(t, ok)
	assert.Equal(t, "Sugar 1kg", sugar.ProductName)
	assert.Equal(t, 23.0, sugar.CurrentStock)
	assert.Equal(t, 60, sugar.SuggestedQty)
	assert.Equal(t, "sup-c", sugar.PreferredSupplierID)
	assert.Equal(t, "Coast Traders", sugar.PreferredSupplierName)
	assert.Equal(t, 3.0, sugar.SupplierLeadTime)
	assert.True(t, sugar.UnitCost.Equal(decimal.NewFromInt(100)))
	assert.True(t, sugar.TotalCost.Equal(decimal.NewFromInt(6000)))
	assert.Equal(t, PriorityCritical, sugar.Priority)
	assert.Equal(t, "Critical: Only 23% of reorder point remaining", sugar.Reason)
	assert.Equal(t, "pending", sugar.Status)

	unnamed, ok := repo.suggestion("p2")
	require.True(t, ok)
	assert.Equal(t, "Unknown Product", unnamed.ProductName)
	assert.Equal(t, "Unknown Supplier", unnamed.PreferredSupplierName)
	assert.Equal(t, 15, unnamed.SuggestedQty)
	assert.Equal(t, DefaultLeadTimeDays, unnamed.SupplierLeadTime)
	assert.True(t, unnamed.TotalCost.Equal(decimal.RequireFromString("682.5")))
	assert.Equal(t, PriorityMedium, unnamed.Priority)
	assert.Equal(t, "Below reorder point (60% remaining)", unnamed.Reason)

	for _, skipped := range []string{"p3", "p4", "p5", "p6", "p7", "p8"} {
		_, ok := repo.suggestion(skipped)
		assert.False(t, ok, skipped)
	}

	require.Len(t, repo.started, 1)
	assert.Equal(t, RunRunning, repo.started[0].Status)
	assert.Equal(t, TriggerCron, repo.started[0].TriggeredBy)
	assert.Equal(t, JobTypeDailyCheck, repo.started[0].Type)
	require.Len(t, repo.finished, 1)
	finished := repo.finished[0]
	assert.Equal(t, RunCompleted, finished.Status)
	assert.Equal(t, summary.RunID, finished.ID)
	assert.Equal(t, 1, finished.ProcessedOrgs)
	assert.Equal(t, 2, finished.TotalSuggestions)
	assert.Len(t, finished.Errors, 1)
}

func TestRunKeepsOneOpenSuggestionPerProduct(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo)
	svc := newTestService(repo)

	_, err := svc.Run(context.Background(), TriggerCron)
	require.NoError(t, err)
	summary, err := svc.Run(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalSuggestions)
	assert.Len(t, repo.suggestions, 3)
}

func TestPriorityFor(t *testing.T) {
	cases := []struct {
		pct  float64
		want Priority
	}{
		{-5, PriorityCritical},
		{0, PriorityCritical},
		{25, PriorityCritical},
		{25.1, PriorityHigh},
		{50, PriorityHigh},
		{75, PriorityMedium},
		{76, PriorityLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PriorityFor(tc.pct), tc.pct)
	}
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, "Out of stock - urgent replenishment required", ReasonFor(0, 0))
	assert.Equal(t, "Critical: Only 13% of reorder point remaining", ReasonFor(1, 12.5))
	assert.Equal(t, "Below reorder point (60% remaining)", ReasonFor(6, 60))
}

func TestBestSKUPrefersLeadTimeThenCost(t *testing.T) {
	best, ok := BestSKU([]records.SupplierSKU{
		{SupplierID: records.Str("no-lead"), CostPrice: records.Num(1)},
		sku("slow", 9, 1),
		sku("fast-dear", 2, 50),
		sku("fast-cheap", 2, 20),
		{LeadTimeDays: records.Num(1), CostPrice: records.Num(1)},
	})
	require.True(t, ok)
	assert.Equal(t, "fast-cheap", best.SupplierID.Value)

	_, ok = BestSKU(nil)
	assert.False(t, ok)
}

func TestNeedsUsesLooseUnits(t *testing.T) {
	total, low := Needs(item("p", 1, 0, 2), product("p", 5))
	assert.Equal(t, 3.0, total)
	assert.True(t, low)

	_, low = Needs(item("p", 0, 0, 0), product("p", 0))
	assert.False(t, low)
}

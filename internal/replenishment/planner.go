package replenishment

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendai/vendai-jobs/internal/records"
)

// PriorityFor maps the stock level, as a percentage of the reorder point, to a priority.
func PriorityFor(stockPercentage float64) Priority {
	switch {
	case stockPercentage <= 25:
		return PriorityCritical
	case stockPercentage <= 50:
		return PriorityHigh
	case stockPercentage <= 75:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ReasonFor explains a suggestion to the operator.
func ReasonFor(totalStock, stockPercentage float64) string {
	pct := int(math.Floor(stockPercentage + 0.5))
	switch {
	case totalStock <= 0:
		return reasonOutOfStock
	case stockPercentage <= 25:
		return fmt.Sprintf(reasonCriticalFmt, pct)
	default:
		return fmt.Sprintf(reasonBelowFmt, pct)
	}
}

// SuggestedQty pads the reorder quantity, defaulting to the reorder point.
func SuggestedQty(product records.Product) int {
	reorderPoint := product.ReorderPoint.Or(0)
	qty := product.ReorderQty.Or(0)
	if qty == 0 {
		qty = reorderPoint
	}
	return int(math.Ceil(qty * QtyMultiplier))
}

// BestSKU picks the supplier offer with the shortest lead time, then the
// lowest cost. Offers without a supplier are ignored and offers without a
// lead time rank last.
func BestSKU(skus []records.SupplierSKU) (records.SupplierSKU, bool) {
	candidates := make([]records.SupplierSKU, 0, len(skus))
	for _, sku := range skus {
		if sku.SupplierID.Or("") != "" {
			candidates = append(candidates, sku)
		}
	}
	if len(candidates) == 0 {
		return records.SupplierSKU{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.LeadTimeDays.Valid != b.LeadTimeDays.Valid {
			return a.LeadTimeDays.Valid
		}
		if a.LeadTimeDays.Value != b.LeadTimeDays.Value {
			return a.LeadTimeDays.Value < b.LeadTimeDays.Value
		}
		return a.CostPrice.Or(math.Inf(1)) < b.CostPrice.Or(math.Inf(1))
	})
	return candidates[0], true
}

// Needs reports the stock on hand and whether it is below the product's
// reorder point. Products without a positive reorder point never need stock.
func Needs(item records.InventoryItem, product records.Product) (float64, bool) {
	reorderPoint := product.ReorderPoint.Or(0)
	if reorderPoint <= 0 {
		return 0, false
	}
	total := item.TotalStock()
	return total, total < reorderPoint
}

// BuildSuggestion assembles a pending suggestion for a low-stock product.
func BuildSuggestion(orgID string, product records.Product, totalStock float64, sku records.SupplierSKU, supplier records.Supplier, now time.Time) Suggestion {
	reorderPoint := product.ReorderPoint.Or(0)
	pct := totalStock / reorderPoint * 100
	qty := SuggestedQty(product)
	lead := sku.LeadTimeDays.Or(0)
	if lead == 0 {
		lead = DefaultLeadTimeDays
	}
	unitCost := decimal.NewFromFloat(sku.CostPrice.Or(0))
	return Suggestion{
		ID:                    uuid.New(),
		OrgID:                 orgID,
		ProductID:             product.ID,
		ProductName:           product.Name.Or(unknownProduct),
		CurrentStock:          totalStock,
		ReorderPoint:          reorderPoint,
		SuggestedQty:          qty,
		PreferredSupplierID:   sku.SupplierID.Value,
		PreferredSupplierName: supplier.Name.Or(unknownSupplier),
		SupplierLeadTime:      lead,
		UnitCost:              unitCost,
		TotalCost:             unitCost.Mul(decimal.NewFromInt(int64(qty))),
		Status:                statusPending,
		Reason:                ReasonFor(totalStock, pct),
		Priority:              PriorityFor(pct),
		CreatedAt:             now,
	}
}

// Package reconciliation cross-checks recent purchase orders against their
// invoices and payments and backfills missing ledger entries.
package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IssueType classifies a reconciliation issue.
type IssueType string

// Issue types.
const (
	IssueMissingInvoice  IssueType = "missing_invoice"
	IssueAmountMismatch  IssueType = "amount_mismatch"
	IssuePaymentMismatch IssueType = "payment_mismatch"
)

// Ledger reconciliation states.
const (
	StatusMatched = "matched"
	StatusPartial = "partial"
)

const (
	// Window is how far back purchase orders are scanned.
	Window = 30 * 24 * time.Hour
	// DefaultCurrency applies when the invoice carries none.
	DefaultCurrency = "KES"

	ledgerNote      = "Auto-generated by reconciliation worker"
	resolutionNote  = "Ledger entry auto-generated by reconciliation worker"
	eventBackfilled = "ledger_backfill"
)

// ReconcilableStatuses are the purchase order states worth reconciling.
var ReconcilableStatuses = []string{"approved", "fulfilled"}

// Tolerance is the largest difference treated as a match.
var Tolerance = decimal.NewFromInt(1)

// Issue is an open discrepancy for operators to review.
type Issue struct {
	ID              uuid.UUID
	Type            IssueType
	PurchaseOrderID string
	InvoiceID       string
	Description     string
	Details         map[string]any
	CreatedAt       time.Time
}

// LedgerEntry is the synthesized payout record of a paid invoice.
type LedgerEntry struct {
	ID                   uuid.UUID
	InvoiceID            string
	PurchaseOrderID      string
	PaymentID            string
	RetailerOrgID        string
	SupplierOrgID        string
	SupplierID           string
	SupplierName         string
	RetailerID           string
	RetailerName         string
	GrossAmount          decimal.Decimal
	VendaiCommission     decimal.Decimal
	ProcessorFee         decimal.Decimal
	TaxAmount            decimal.Decimal
	NetPayoutAmount      decimal.Decimal
	Currency             string
	ReconciliationStatus string
	PayoutStatus         string
	Notes                string
	CreatedAt            time.Time
}

// Event is appended for every ledger backfill.
type Event struct {
	ID              uuid.UUID
	Type            string
	InvoiceID       string
	PurchaseOrderID string
	LedgerEntryID   uuid.UUID
	Difference      decimal.Decimal
	AutoResolved    bool
	CreatedAt       time.Time
}

// Summary reports one reconciliation run.
type Summary struct {
	Processed      int           `json:"processed"`
	Mismatches     int           `json:"mismatches"`
	Backfilled     int           `json:"backfilled"`
	IssuesResolved int           `json:"issuesResolved"`
	Failures       int           `json:"failures"`
	Duration       time.Duration `json:"duration"`
}

package reconciliation

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

type memoryIssue struct {
	Issue
	status     string
	resolution string
}

type memoryRepo struct {
	mu         sync.Mutex
	orders     []records.PurchaseOrder
	invoices   map[string]records.Invoice
	payments   map[string][]records.Payment
	findErrs   map[string]error
	issues     []*memoryIssue
	ledger     map[string]LedgerEntry
	events     []Event
	sinceCalls []time.Time
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices: map[string]records.Invoice{},
		payments: map[string][]records.Payment{},
		findErrs: map[string]error{},
		ledger:   map[string]LedgerEntry{},
	}
}

func (r *memoryRepo) ListPurchaseOrdersSince(_ context.Context, since time.Time, _ []string) ([]records.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinceCalls = append(r.sinceCalls, since)
	return r.orders, nil
}

func (r *memoryRepo) FindInvoiceByPurchaseOrder(_ context.Context, purchaseOrderID string) (records.Invoice, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.findErrs[purchaseOrderID]; err != nil {
		return records.Invoice{}, false, err
	}
	for _, inv := range r.invoices {
		if inv.PurchaseOrderID.Value == purchaseOrderID {
			return inv, true, nil
		}
	}
	return records.Invoice{}, false, nil
}

func (r *memoryRepo) ListSettledPayments(_ context.Context, invoiceID string) ([]records.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []records.Payment
	for _, p := range r.payments[invoiceID] {
		if p.Settled() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) LedgerEntryExists(_ context.Context, invoiceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ledger[invoiceID]
	return ok, nil
}

func (r *memoryRepo) InsertIssue(_ context.Context, issue Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.issues {
		if existing.status == "open" && existing.Type == issue.Type &&
			existing.PurchaseOrderID == issue.PurchaseOrderID && existing.InvoiceID == issue.InvoiceID {
			return nil
		}
	}
	r.issues = append(r.issues, &memoryIssue{Issue: issue, status: "open"})
	return nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (t *memoryTx) InsertLedgerEntry(_ context.Context, entry LedgerEntry) (bool, error) {
	if _, ok := t.repo.ledger[entry.InvoiceID]; ok {
		return false, nil
	}
	t.repo.ledger[entry.InvoiceID] = entry
	return true, nil
}

func (t *memoryTx) InsertEvent(_ context.Context, ev Event) error {
	t.repo.events = append(t.repo.events, ev)
	return nil
}

func (t *memoryTx) ResolveOpenIssues(_ context.Context, invoiceID, resolution string, _ time.Time) (int, error) {
	n := 0
	for _, issue := range t.repo.issues {
		if issue.InvoiceID == invoiceID && issue.status == "open" {
			issue.status = "resolved"
			issue.resolution = resolution
			n++
		}
	}
	return n, nil
}

func amount(total float64) records.Amount {
	return records.Amount{Total: records.Num(total)}
}

func payment(id string, amt, commission, processor float64, status string) records.Payment {
	return records.Payment{
		ID:     id,
		Amount: records.Num(amt),
		Status: records.Str(status),
		Fees:   records.Fees{VendaiCommission: records.Num(commission), Processor: records.Num(processor)},
	}
}

func seed(repo *memoryRepo) {
	repo.orders = []records.PurchaseOrder{
		{ID: "po-missing", Amount: amount(500)},
		{ID: "po-ok", Amount: amount(1000), RetailerOrgID: records.Str("org-r"), SupplierID: records.Str("sup-1")},
		{ID: "po-off", Amount: amount(2000)},
		{ID: "po-booked", Amount: amount(300)},
		{ID: "po-broken", Amount: amount(100)},
	}
	repo.invoices["inv-ok"] = records.Invoice{
		ID: "inv-ok", PurchaseOrderID: records.Str("po-ok"), PaymentStatus: records.Str("paid"),
		RetailerID: records.Str("ret-1"), SupplierOrgID: records.Str("org-s"),
		Amount: records.Amount{Total: records.Num(1000.5), Tax: records.Num(138)},
	}
	repo.invoices["inv-off"] = records.Invoice{
		ID: "inv-off", PurchaseOrderID: records.Str("po-off"), PaymentStatus: records.Str("paid"),
		Amount: records.Amount{Total: records.Num(1500), Currency: records.Str("UGX")},
	}
	repo.invoices["inv-booked"] = records.Invoice{
		ID: "inv-booked", PurchaseOrderID: records.Str("po-booked"), PaymentStatus: records.Str("paid"), Amount: amount(300),
	}
	repo.payments["inv-ok"] = []records.Payment{
		payment("pay-1", 600, 20, 5, "paid"),
		payment("pay-2", 400.5, 10, 0, "success"),
		payment("pay-3", 999, 0, 0, "failed"),
	}
	repo.payments["inv-off"] = []records.Payment{payment("pay-4", 1000, 0, 0, "partial")}
	repo.payments["inv-booked"] = []records.Payment{payment("pay-5", 300, 0, 0, "paid")}
	repo.ledger["inv-booked"] = LedgerEntry{InvoiceID: "inv-booked"}
	repo.issues = append(repo.issues, &memoryIssue{
		Issue:  Issue{Type: IssuePaymentMismatch, InvoiceID: "inv-ok", PurchaseOrderID: "po-ok"},
		status: "open",
	})
	repo.findErrs["po-broken"] = errors.New("timeout")
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, 2, nil)
	now := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc
}

func TestRunReconcilesPurchaseOrders(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo)
	svc := newTestService(repo)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 4, summary.Mismatches)
	assert.Equal(t, 2, summary.Backfilled)
	assert.Equal(t, 3, summary.IssuesResolved)
	assert.Equal(t, 1, summary.Failures)
	require.Len(t, repo.sinceCalls, 1)
	assert.Equal(t, time.Date(2025, 5, 3, 2, 0, 0, 0, time.UTC), repo.sinceCalls[0])

	ok := repo.ledger["inv-ok"]
	assert.True(t, ok.GrossAmount.Equal(decimal.RequireFromString("1000.5")))
	assert.True(t, ok.VendaiCommission.Equal(decimal.NewFromInt(30)))
	assert.True(t, ok.ProcessorFee.Equal(decimal.NewFromInt(5)))
	assert.True(t, ok.NetPayoutAmount.Equal(decimal.RequireFromString("965.5")))
	assert.True(t, ok.TaxAmount.Equal(decimal.NewFromInt(138)))
	assert.Equal(t, StatusMatched, ok.ReconciliationStatus)
	assert.Equal(t, "pending", ok.PayoutStatus)
	assert.Equal(t, "KES", ok.Currency)
	assert.Equal(t, "pay-1", ok.PaymentID)
	assert.Equal(t, "org-r", ok.RetailerOrgID)
	assert.Equal(t, "org-s", ok.SupplierOrgID)
	assert.Equal(t, "sup-1", ok.SupplierID)
	assert.Equal(t, "ret-1", ok.RetailerID)

	off := repo.ledger["inv-off"]
	assert.Equal(t, StatusPartial, off.ReconciliationStatus)
	assert.Equal(t, "UGX", off.Currency)

	require.Len(t, repo.events, 2)
	for _, ev := range repo.events {
		assert.Equal(t, "ledger_backfill", ev.Type)
		assert.Equal(t, repo.ledger[ev.InvoiceID].ID, ev.LedgerEntryID)
		assert.Equal(t, ev.InvoiceID == "inv-ok", ev.AutoResolved)
	}

	byType := map[IssueType][]*memoryIssue{}
	for _, issue := range repo.issues {
		byType[issue.Type] = append(byType[issue.Type], issue)
	}
	require.Len(t, byType[IssueMissingInvoice], 1)
	assert.Equal(t, "Purchase order po-missing has no related invoice", byType[IssueMissingInvoice][0].Description)
	assert.Equal(t, "open", byType[IssueMissingInvoice][0].status)

	require.Len(t, byType[IssueAmountMismatch], 1)
	amountIssue := byType[IssueAmountMismatch][0]
	assert.Equal(t, "Amount mismatch between PO and Invoice: 500 KES", amountIssue.Description)
	assert.Equal(t, "resolved", amountIssue.status)
	assert.Equal(t, resolutionNote, amountIssue.resolution)

	var offPayment *memoryIssue
	for _, issue := range byType[IssuePaymentMismatch] {
		if issue.InvoiceID == "inv-off" {
			offPayment = issue
		}
	}
	require.NotNil(t, offPayment)
	assert.Equal(t, "Payment total (1000) doesn't match invoice (1500)", offPayment.Description)
	assert.Equal(t, 500.0, offPayment.Details["difference"])
}

func TestRunIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo)
	svc := newTestService(repo)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	issues := len(repo.issues)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Backfilled)
	assert.Zero(t, summary.IssuesResolved)
	assert.Len(t, repo.ledger, 3)
	assert.Len(t, repo.events, 2)
	assert.Equal(t, issues+2, len(repo.issues))
}

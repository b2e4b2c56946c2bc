package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendai/vendai-jobs/internal/platform/batch"
	"github.com/vendai/vendai-jobs/internal/records"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	ListPurchaseOrdersSince(ctx context.Context, since time.Time, statuses []string) ([]records.PurchaseOrder, error)
	FindInvoiceByPurchaseOrder(ctx context.Context, purchaseOrderID string) (records.Invoice, bool, error)
	ListSettledPayments(ctx context.Context, invoiceID string) ([]records.Payment, error)
	LedgerEntryExists(ctx context.Context, invoiceID string) (bool, error)
	InsertIssue(ctx context.Context, issue Issue) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service runs the reconciliation pass.
type Service struct {
	repo   RepositoryPort
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. limit bounds the purchase orders reconciled in parallel.
func NewService(repo RepositoryPort, limit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, limit: limit, logger: logger.With(slog.String("component", "reconciliation")), now: time.Now}
}

type outcome struct {
	mismatches int
	backfilled bool
	resolved   int
}

// Run reconciles every approved or fulfilled purchase order of the last 30 days.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	start := s.now()
	orders, err := s.repo.ListPurchaseOrdersSince(ctx, start.UTC().Add(-Window), ReconcilableStatuses)
	if err != nil {
		return Summary{}, fmt.Errorf("reconciliation: list purchase orders: %w", err)
	}

	var mismatches, backfilled, resolved atomic.Int64
	failures, err := batch.Each(ctx, s.limit, orders, func(ctx context.Context, po records.PurchaseOrder) error {
		out, err := s.reconcile(ctx, po)
		mismatches.Add(int64(out.mismatches))
		resolved.Add(int64(out.resolved))
		if out.backfilled {
			backfilled.Add(1)
		}
		return err
	}, func(po records.PurchaseOrder, err error) {
		mismatches.Add(1)
		s.logger.Error("error reconciling purchase order", slog.String("purchase_order_id", po.ID), slog.Any("error", err))
	})

	summary := Summary{
		Processed:      len(orders),
		Mismatches:     int(mismatches.Load()),
		Backfilled:     int(backfilled.Load()),
		IssuesResolved: int(resolved.Load()),
		Failures:       failures,
		Duration:       s.now().Sub(start),
	}
	if err != nil {
		return summary, err
	}
	s.logger.Info("reconciliation completed",
		slog.Int("processed", summary.Processed),
		slog.Int("mismatches", summary.Mismatches),
		slog.Int("backfilled", summary.Backfilled),
		slog.Int("issues_resolved", summary.IssuesResolved),
		slog.Int("failures", summary.Failures),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (s *Service) reconcile(ctx context.Context, po records.PurchaseOrder) (outcome, error) {
	var out outcome
	now := s.now().UTC()

	invoice, found, err := s.repo.FindInvoiceByPurchaseOrder(ctx, po.ID)
	if err != nil {
		return out, fmt.Errorf("find invoice: %w", err)
	}
	if !found {
		out.mismatches++
		return out, s.repo.InsertIssue(ctx, Issue{
			ID:              uuid.New(),
			Type:            IssueMissingInvoice,
			PurchaseOrderID: po.ID,
			Description:     fmt.Sprintf("Purchase order %s has no related invoice", po.ID),
			Details:         map[string]any{},
			CreatedAt:       now,
		})
	}

	poTotal := decimal.NewFromFloat(po.Amount.Total.Or(0))
	invoiceTotal := decimal.NewFromFloat(invoice.Amount.Total.Or(0))
	if amountDiff := poTotal.Sub(invoiceTotal).Abs(); amountDiff.GreaterThan(Tolerance) {
		out.mismatches++
		err := s.repo.InsertIssue(ctx, Issue{
			ID:              uuid.New(),
			Type:            IssueAmountMismatch,
			PurchaseOrderID: po.ID,
			InvoiceID:       invoice.ID,
			Description:     fmt.Sprintf("Amount mismatch between PO and Invoice: %s KES", amountDiff),
			Details: map[string]any{
				"poAmount":      poTotal.InexactFloat64(),
				"invoiceAmount": invoiceTotal.InexactFloat64(),
				"difference":    amountDiff.InexactFloat64(),
			},
			CreatedAt: now,
		})
		if err != nil {
			return out, fmt.Errorf("record amount mismatch: %w", err)
		}
	}

	payments, err := s.repo.ListSettledPayments(ctx, invoice.ID)
	if err != nil {
		return out, fmt.Errorf("list payments: %w", err)
	}
	totalPaid, commission, processor := decimal.Zero, decimal.Zero, decimal.Zero
	for _, p := range payments {
		totalPaid = totalPaid.Add(decimal.NewFromFloat(p.Amount.Positive()))
		commission = commission.Add(decimal.NewFromFloat(p.Fees.VendaiCommission.Positive()))
		processor = processor.Add(decimal.NewFromFloat(p.Fees.Processor.Positive()))
	}

	paymentDiff := totalPaid.Sub(invoiceTotal).Abs()
	if paymentDiff.GreaterThan(Tolerance) {
		out.mismatches++
		err := s.repo.InsertIssue(ctx, Issue{
			ID:              uuid.New(),
			Type:            IssuePaymentMismatch,
			PurchaseOrderID: po.ID,
			InvoiceID:       invoice.ID,
			Description:     fmt.Sprintf("Payment total (%s) doesn't match invoice (%s)", totalPaid, invoiceTotal),
			Details: map[string]any{
				"invoiceAmount": invoiceTotal.InexactFloat64(),
				"paymentAmount": totalPaid.InexactFloat64(),
				"difference":    paymentDiff.InexactFloat64(),
			},
			CreatedAt: now,
		})
		if err != nil {
			return out, fmt.Errorf("record payment mismatch: %w", err)
		}
	}

	if invoice.PaymentStatus.Value != "paid" {
		return out, nil
	}
	exists, err := s.repo.LedgerEntryExists(ctx, invoice.ID)
	if err != nil {
		return out, fmt.Errorf("check ledger: %w", err)
	}
	if exists {
		return out, nil
	}

	entry := buildLedgerEntry(po, invoice, payments, commission, processor, paymentDiff, now)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertLedgerEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		if !inserted {
			return nil
		}
		out.backfilled = true
		if err := tx.InsertEvent(ctx, Event{
			ID:              uuid.New(),
			Type:            eventBackfilled,
			InvoiceID:       invoice.ID,
			PurchaseOrderID: po.ID,
			LedgerEntryID:   entry.ID,
			Difference:      paymentDiff,
			AutoResolved:    !paymentDiff.GreaterThan(Tolerance),
			CreatedAt:       now,
		}); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		n, err := tx.ResolveOpenIssues(ctx, invoice.ID, resolutionNote, now)
		if err != nil {
			return fmt.Errorf("resolve issues: %w", err)
		}
		out.resolved = n
		return nil
	})
	if err != nil {
		out.backfilled = false
		out.resolved = 0
		return out, err
	}
	return out, nil
}

func buildLedgerEntry(po records.PurchaseOrder, inv records.Invoice, payments []records.Payment, commission, processor, paymentDiff decimal.Decimal, now time.Time) LedgerEntry {
	gross := decimal.NewFromFloat(inv.Amount.Total.Or(0))
	net := gross.Sub(commission).Sub(processor)
	if net.IsNegative() {
		net = decimal.Zero
	}
	status := StatusMatched
	if paymentDiff.GreaterThan(Tolerance) {
		status = StatusPartial
	}
	var paymentID string
	if len(payments) > 0 {
		paymentID = payments[0].ID
	}
	return LedgerEntry{
		ID:                   uuid.New(),
		InvoiceID:            inv.ID,
		PurchaseOrderID:      po.ID,
		PaymentID:            paymentID,
		RetailerOrgID:        inv.RetailerOrgID.Or(po.RetailerOrgID.Value),
		SupplierOrgID:        inv.SupplierOrgID.Or(po.SupplierOrgID.Value),
		SupplierID:           inv.SupplierID.Or(po.SupplierID.Value),
		SupplierName:         inv.SupplierName.Or(po.SupplierName.Value),
		RetailerID:           inv.RetailerID.Or(po.RetailerID.Value),
		RetailerName:         inv.RetailerName.Or(po.RetailerName.Value),
		GrossAmount:          gross,
		VendaiCommission:     commission,
		ProcessorFee:         processor,
		TaxAmount:            decimal.NewFromFloat(inv.Amount.Tax.Or(0)),
		NetPayoutAmount:      net,
		Currency:             inv.Amount.Currency.Or(DefaultCurrency),
		ReconciliationStatus: status,
		PayoutStatus:         "pending",
		Notes:                ledgerNote,
		CreatedAt:            now,
	}
}

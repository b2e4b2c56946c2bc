package credit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vendai/vendai-jobs/internal/credit/scoring"
	"github.com/vendai/vendai-jobs/internal/records"
)

// Source reads the documents the aggregator reduces.
type Source interface {
	GetProfile(ctx context.Context, retailerID string) (Profile, error)
	GetUser(ctx context.Context, userID string) (records.User, bool, error)
	ListPaymentsSince(ctx context.Context, retailerID string, since time.Time, limit int) ([]records.Payment, error)
	ListPurchaseOrdersSince(ctx context.Context, retailerID string, since time.Time) ([]records.PurchaseOrder, error)
	ListOutstandingInvoices(ctx context.Context, retailerID string) ([]records.Invoice, error)
	CountDisputesSince(ctx context.Context, retailerID string, since time.Time) (int, error)
	CountActiveDisputes(ctx context.Context, retailerID string) (int, error)
	GetInvoices(ctx context.Context, ids []string) ([]records.Invoice, error)
}

// Aggregator reduces a retailer's trailing records to a scoring input.
type Aggregator struct {
	src Source
	now func() time.Time
}

// NewAggregator constructs an Aggregator.
func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src, now: time.Now}
}

// Build returns nil without error when the retailer has no credit profile.
func (a *Aggregator) Build(ctx context.Context, retailerID string) (*Computation, error) {
	now := a.now().UTC()
	windowStart := now.Add(-TrailingWindow)

	profile, err := a.src.GetProfile(ctx, retailerID)
	if errors.Is(err, ErrProfileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credit: load profile: %w", err)
	}

	var (
		user           records.User
		userFound      bool
		payments       []records.Payment
		orders         []records.PurchaseOrder
		outstanding    []records.Invoice
		disputeCount   int
		activeDisputes int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		user, userFound, err = a.src.GetUser(gctx, retailerID)
		return wrap("load retailer", err)
	})
	g.Go(func() (err error) {
		payments, err = a.src.ListPaymentsSince(gctx, retailerID, now.Add(-PaymentLookback), MaxPaymentsToLoad)
		return wrap("list payments", err)
	})
	g.Go(func() (err error) {
		orders, err = a.src.ListPurchaseOrdersSince(gctx, retailerID, windowStart)
		return wrap("list purchase orders", err)
	})
	g.Go(func() (err error) {
		outstanding, err = a.src.ListOutstandingInvoices(gctx, retailerID)
		return wrap("list outstanding invoices", err)
	})
	g.Go(func() (err error) {
		disputeCount, err = a.src.CountDisputesSince(gctx, retailerID, windowStart)
		return wrap("count disputes", err)
	})
	g.Go(func() (err error) {
		activeDisputes, err = a.src.CountActiveDisputes(gctx, retailerID)
		return wrap("count active disputes", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stored := profile.Metrics
	existingLimit := stored.ExistingCreditLimit.Or(DefaultExistingLimit)
	manual := clamp(stored.ManualAdjustment.Or(0), scoring.MinManualAdjustment, scoring.MaxManualAdjustment)

	daysSinceSignup := stored.DaysSinceSignup.Or(DefaultDaysSinceSignup)
	if created, ok := signupDate(user, userFound, profile); ok {
		daysSinceSignup = math.Max(1, math.Round(now.Sub(created).Hours()/24))
	}

	sector := stored.SectorRisk
	if !sector.Valid && userFound {
		sector = user.SectorRisk
		if !sector.Valid {
			sector = user.IndustryRisk
		}
	}
	sectorRisk := scoring.ParseSectorRisk(sector.Value)

	var (
		stats        Stats
		successful   int
		failed       int
		attempts     int
		streak       int
		streakBroken bool
		invoiceOrder []string
	)
	paidAtByInv := map[string][]time.Time{}
	for _, p := range payments {
		at := p.PaidAt(now)
		amount := p.Amount.Positive()
		if at.Before(windowStart) {
			stats.PaymentVolumePrior90d += amount
			continue
		}
		stats.PaymentVolume90d += amount
		attempts++

		settled := p.Settled()
		if settled {
			successful++
			stats.TotalPayments90d++
		} else if p.Status.Lower() == "failed" {
			failed++
		}

		onTime := p.PaidOnTime.IsTrue()
		if !streakBroken && settled {
			if onTime {
				streak++
			} else {
				streakBroken = true
			}
		}
		if onTime {
			stats.OnTimePayments++
		} else if p.PaidOnTime.IsFalse() {
			stats.LatePayments++
		}

		if invoiceID := p.InvoiceID.Or(""); invoiceID != "" {
			if _, seen := paidAtByInv[invoiceID]; !seen {
				invoiceOrder = append(invoiceOrder, invoiceID)
			}
			paidAtByInv[invoiceID] = append(paidAtByInv[invoiceID], at)
		}
	}

	var orderCount int
	var orderValue float64
	for _, po := range orders {
		if po.Status.Value == "cancelled" {
			continue
		}
		orderCount++
		orderValue += po.Amount.Total.Positive()
	}
	averageOrderValue := orderValue
	switch {
	case orderCount > 0:
		averageOrderValue = orderValue / float64(orderCount)
	case stats.PaymentVolume90d > 0:
		averageOrderValue = stats.PaymentVolume90d
	}

	var currentOutstanding float64
	for _, inv := range outstanding {
		currentOutstanding += math.Max(inv.Amount.Total.Or(0)-inv.TotalPaidAmount.Or(0), 0)
		if inv.DueDate.Valid && inv.DueDate.Value.Before(now) {
			stats.OverdueInvoices++
		}
	}

	repaymentLag := stored.RepaymentLagDays.Or(0)
	if len(invoiceOrder) > 0 {
		invoices, err := a.src.GetInvoices(ctx, invoiceOrder)
		if err != nil {
			return nil, fmt.Errorf("credit: load paid invoices: %w", err)
		}
		var lagSum float64
		var lagCount int
		for _, inv := range invoices {
			if !inv.DueDate.Valid {
				continue
			}
			for _, paidAt := range paidAtByInv[inv.ID] {
				lagSum += paidAt.Sub(inv.DueDate.Value).Hours() / 24
				lagCount++
			}
		}
		if lagCount > 0 {
			repaymentLag = math.Max(0, lagSum/float64(lagCount))
		}
	}
	repaymentLag = math.Max(0, repaymentLag)

	stats.DisputeCount90d = disputeCount
	stats.ActiveDisputes = activeDisputes

	onTimeRate := clamp(stored.OnTimePaymentRate.Or(1), 0, 1)
	disputeBase := 0.0
	if stats.TotalPayments90d > 0 {
		onTimeRate = clamp(float64(stats.OnTimePayments)/float64(stats.TotalPayments90d), 0, 1)
		disputeBase = float64(disputeCount) / float64(stats.TotalPayments90d)
	}
	disputeRate := clamp(disputeBase+float64(activeDisputes)*ActiveDisputeRateStep, 0, 1)

	utilization := 0.0
	if existingLimit > 0 {
		utilization = currentOutstanding / existingLimit
	}

	growth := 0.0
	switch {
	case stats.PaymentVolumePrior90d > 0:
		growth = (stats.PaymentVolume90d - stats.PaymentVolumePrior90d) / stats.PaymentVolumePrior90d
	case stats.PaymentVolume90d > 0:
		growth = 1
	}

	comp := &Computation{
		Input: scoring.Input{
			RetailerID:                retailerID,
			TrailingVolume90d:         stats.PaymentVolume90d,
			TrailingGrowthRate:        clamp(growth, -1, 3),
			Orders90d:                 orderCount,
			AverageOrderValue:         math.Max(averageOrderValue, 0),
			OnTimePaymentRate:         onTimeRate,
			DisputeRate:               disputeRate,
			RepaymentLagDays:          repaymentLag,
			CreditUtilization:         math.Max(0, utilization),
			CurrentOutstanding:        currentOutstanding,
			ExistingCreditLimit:       existingLimit,
			ConsecutiveOnTimePayments: streak,
			DaysSinceSignup:           math.Max(1, daysSinceSignup),
			SectorRisk:                sectorRisk,
			ManualAdjustment:          manual,
		},
		Metrics: scoring.Metrics{
			TrailingVolume90d:         stats.PaymentVolume90d,
			Orders90d:                 orderCount,
			SuccessfulPayments:        successful,
			FailedPayments:            failed,
			TotalAttempts:             max(attempts, successful+failed),
			DisputeCount:              disputeCount,
			CurrentOutstanding:        currentOutstanding,
			ExistingCreditLimit:       existingLimit,
			ConsecutiveOnTimePayments: streak,
			ManualAdjustment:          manual,
			RepaymentLagDays:          repaymentLag,
			SectorRisk:                sectorRisk,
		},
		Stats: stats,
	}
	if userFound {
		comp.Contact = Contact{
			Name:   user.ContactName(),
			Email:  user.ContactEmail(),
			Phone:  user.ContactPhoneNumber(),
			UserID: user.ID,
		}
	}
	return comp, nil
}

func signupDate(user records.User, userFound bool, profile Profile) (time.Time, bool) {
	if userFound {
		if user.CreatedAt.Valid {
			return user.CreatedAt.Value, true
		}
		if user.SignupDate.Valid {
			return user.SignupDate.Value, true
		}
	}
	if !profile.CreatedAt.IsZero() {
		return profile.CreatedAt, true
	}
	return time.Time{}, false
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("credit: %s: %w", op, err)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

package scoring

import "math"

// Metrics is the stored per-retailer counter snapshot.
type Metrics struct {
	TrailingVolume90d         float64    `json:"trailingVolume90d"`
	Orders90d                 int        `json:"orders90d"`
	SuccessfulPayments        int        `json:"successfulPayments"`
	FailedPayments            int        `json:"failedPayments"`
	TotalAttempts             int        `json:"totalAttempts"`
	DisputeCount              int        `json:"disputeCount"`
	CurrentOutstanding        float64    `json:"currentOutstanding"`
	ExistingCreditLimit       float64    `json:"existingCreditLimit"`
	ConsecutiveOnTimePayments int        `json:"consecutiveOnTimePayments"`
	ManualAdjustment          float64    `json:"manualAdjustment"`
	RepaymentLagDays          float64    `json:"repaymentLagDays"`
	SectorRisk                SectorRisk `json:"sectorRisk"`
}

// PaymentOutcome is the result of a single payment attempt.
type PaymentOutcome string

// Payment outcomes.
const (
	OutcomePaid     PaymentOutcome = "paid"
	OutcomePartial  PaymentOutcome = "partial"
	OutcomeFailed   PaymentOutcome = "failed"
	OutcomeRefunded PaymentOutcome = "refunded"
)

// Manual adjustment bounds.
const (
	MinManualAdjustment = -30
	MaxManualAdjustment = 30
)

// ApplyPaymentOutcome folds one payment attempt into m and returns the
// updated copy. Non-positive or non-finite amounts count as zero.
func ApplyPaymentOutcome(m Metrics, amount float64, outcome PaymentOutcome) Metrics {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		amount = 0
	}
	next := m
	next.TotalAttempts = m.TotalAttempts + 1

	switch outcome {
	case OutcomePaid:
		next.TrailingVolume90d += amount
		next.Orders90d++
		next.SuccessfulPayments++
		next.ConsecutiveOnTimePayments = m.ConsecutiveOnTimePayments + 1
		next.ManualAdjustment += 1
		next.CurrentOutstanding = math.Max(m.CurrentOutstanding-amount, 0)
	case OutcomePartial:
		next.TrailingVolume90d += amount
		next.ConsecutiveOnTimePayments = m.ConsecutiveOnTimePayments + 1
		next.ManualAdjustment += 0.5
		next.CurrentOutstanding = math.Max(m.CurrentOutstanding-amount, 0)
	case OutcomeFailed:
		next.FailedPayments++
		next.ConsecutiveOnTimePayments = 0
		next.ManualAdjustment -= 5
	case OutcomeRefunded:
		next.DisputeCount++
		next.ConsecutiveOnTimePayments = 0
		next.ManualAdjustment -= 3
		next.TrailingVolume90d = math.Max(m.TrailingVolume90d-amount, 0)
		next.Orders90d = max(m.Orders90d-1, 0)
		next.CurrentOutstanding = m.CurrentOutstanding + amount
	default:
		next.ConsecutiveOnTimePayments = 0
	}

	next.TrailingVolume90d = math.Max(next.TrailingVolume90d, 0)
	next.Orders90d = max(next.Orders90d, 0)
	next.SuccessfulPayments = max(next.SuccessfulPayments, 0)
	next.FailedPayments = max(next.FailedPayments, 0)
	next.TotalAttempts = max(next.TotalAttempts, 0)
	next.DisputeCount = max(next.DisputeCount, 0)
	next.CurrentOutstanding = math.Max(next.CurrentOutstanding, 0)
	next.ConsecutiveOnTimePayments = max(next.ConsecutiveOnTimePayments, 0)
	next.ManualAdjustment = clamp(next.ManualAdjustment, MinManualAdjustment, MaxManualAdjustment)
	return next
}

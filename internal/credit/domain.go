package credit

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vendai/vendai-jobs/internal/credit/scoring"
	"github.com/vendai/vendai-jobs/internal/records"
)

// ErrProfileNotFound indicates the retailer has no credit profile yet.
var ErrProfileNotFound = errors.New("credit: profile not found")

// Reason records what triggered a recalculation.
type Reason string

// Recalculation reasons.
const (
	ReasonScheduled       Reason = "scheduled_cron"
	ReasonPaymentReceived Reason = "payment_received"
	ReasonDisputeCreated  Reason = "dispute_created"
	ReasonDisputeResolved Reason = "dispute_resolved"
	ReasonManual          Reason = "manual"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonScheduled, ReasonPaymentReceived, ReasonDisputeCreated, ReasonDisputeResolved, ReasonManual:
		return true
	}
	return false
}

// Aggregation windows and defaults.
const (
	TrailingWindow         = 90 * 24 * time.Hour
	PaymentLookback        = 180 * 24 * time.Hour
	MaxPaymentsToLoad      = 500
	DefaultExistingLimit   = 150000
	DefaultDaysSinceSignup = 180
	ActiveDisputeRateStep  = 0.05
)

// StoredMetrics is the subset of the persisted profile metrics read back as
// fallbacks. Every field is optional.
type StoredMetrics struct {
	ExistingCreditLimit records.Number `json:"existingCreditLimit"`
	ManualAdjustment    records.Number `json:"manualAdjustment"`
	DaysSinceSignup     records.Number `json:"daysSinceSignup"`
	RepaymentLagDays    records.Number `json:"repaymentLagDays"`
	OnTimePaymentRate   records.Number `json:"onTimePaymentRate"`
	SectorRisk          records.Text   `json:"sectorRisk"`
}

// Profile is a retailer credit profile row.
type Profile struct {
	RetailerID     string
	Metrics        StoredMetrics
	LastAssessment *scoring.Assessment
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Stats are the raw counts behind a computation.
type Stats struct {
	TotalPayments90d      int     `json:"totalPayments90d"`
	PaymentVolume90d      float64 `json:"paymentVolume90d"`
	PaymentVolumePrior90d float64 `json:"paymentVolumePrior90d"`
	DisputeCount90d       int     `json:"disputeCount90d"`
	ActiveDisputes        int     `json:"activeDisputes"`
	OnTimePayments        int     `json:"onTimePayments"`
	LatePayments          int     `json:"latePayments"`
	OverdueInvoices       int     `json:"overdueInvoices"`
}

// Contact is the retailer contact info resolved during aggregation.
type Contact struct {
	Name   string `json:"retailerName,omitempty"`
	Email  string `json:"retailerEmail,omitempty"`
	Phone  string `json:"retailerPhone,omitempty"`
	UserID string `json:"retailerUserId,omitempty"`
}

// Computation is the aggregator output for one retailer.
type Computation struct {
	Input   scoring.Input
	Metrics scoring.Metrics
	Stats   Stats
	Contact Contact
}

// ProfileMetrics is merged into the stored profile metrics document.
type ProfileMetrics struct {
	scoring.Metrics
	OnTimePaymentRate     float64   `json:"onTimePaymentRate"`
	DisputeRate           float64   `json:"disputeRate"`
	CreditUtilization     float64   `json:"creditUtilization"`
	TrailingGrowthRate    float64   `json:"trailingGrowthRate"`
	AverageOrderValue     float64   `json:"averageOrderValue"`
	DaysSinceSignup       float64   `json:"daysSinceSignup"`
	ActiveDisputes        int       `json:"activeDisputes"`
	TotalPayments90d      int       `json:"totalPayments90d"`
	PaymentVolumePrior90d float64   `json:"paymentVolumePrior90d"`
	OverdueInvoiceCount   int       `json:"overdueInvoiceCount"`
	LastRecalculated      time.Time `json:"lastRecalculated"`
}

func newProfileMetrics(c Computation, at time.Time) ProfileMetrics {
	return ProfileMetrics{
		Metrics:               c.Metrics,
		OnTimePaymentRate:     c.Input.OnTimePaymentRate,
		DisputeRate:           c.Input.DisputeRate,
		CreditUtilization:     c.Input.CreditUtilization,
		TrailingGrowthRate:    c.Input.TrailingGrowthRate,
		AverageOrderValue:     c.Input.AverageOrderValue,
		DaysSinceSignup:       c.Input.DaysSinceSignup,
		ActiveDisputes:        c.Stats.ActiveDisputes,
		TotalPayments90d:      c.Stats.TotalPayments90d,
		PaymentVolumePrior90d: c.Stats.PaymentVolumePrior90d,
		OverdueInvoiceCount:   c.Stats.OverdueInvoices,
		LastRecalculated:      at,
	}
}

// HistoryRecord is one immutable credit_history row.
type HistoryRecord struct {
	ID         uuid.UUID
	RetailerID string
	Reason     Reason
	TriggerID  string
	Assessment scoring.Assessment
	Input      scoring.Input
	Metrics    scoring.Metrics
	Stats      Stats
	CreatedAt  time.Time
}

// WatchlistStatus is the watchlist state of a retailer.
type WatchlistStatus string

// Watchlist states.
const (
	WatchlistWatching WatchlistStatus = "watching"
	WatchlistCleared  WatchlistStatus = "cleared"
)

// WatchlistEntry is the watchlist row written after each assessment. Cleared
// entries only carry RetailerID and Status.
type WatchlistEntry struct {
	RetailerID        string          `json:"retailerId"`
	Status            WatchlistStatus `json:"status"`
	Score             float64         `json:"score,omitempty"`
	Tier              string          `json:"tier,omitempty"`
	DisputeRate       float64         `json:"disputeRate,omitempty"`
	ActiveDisputes    int             `json:"activeDisputes,omitempty"`
	CreditUtilization float64         `json:"creditUtilization,omitempty"`
	Reason            Reason          `json:"reason,omitempty"`
}

// Result is returned by a successful recalculation.
type Result struct {
	Assessment scoring.Assessment `json:"assessment"`
	Stats      Stats              `json:"stats"`
	Watchlist  WatchlistEntry     `json:"watchlist"`
}

// BatchSummary reports a scheduled recalculation run.
type BatchSummary struct {
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failures  int           `json:"failures"`
	Duration  time.Duration `json:"duration"`
}

package scoring

import (
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SectorRisk classifies the retailer's industry exposure.
type SectorRisk string

// Sector risk levels.
const (
	SectorLow    SectorRisk = "low"
	SectorMedium SectorRisk = "medium"
	SectorHigh   SectorRisk = "high"
)

// ParseSectorRisk maps unknown values to SectorMedium.
func ParseSectorRisk(v string) SectorRisk {
	switch SectorRisk(v) {
	case SectorLow, SectorMedium, SectorHigh:
		return SectorRisk(v)
	}
	return SectorMedium
}

// Options tunes the limit model.
type Options struct {
	BaseLimit                   float64
	MaxLimit                    float64
	VolumeTarget                float64
	TargetRepaymentLag          float64
	VolumeToCreditRatio         float64
	ScoreMultiplier             float64
	OutstandingWeight           float64
	UtilizationComfortThreshold float64
	SectorPenalties             map[SectorRisk]float64
}

// DefaultOptions returns the production limit model.
func DefaultOptions() Options {
	return Options{
		BaseLimit:                   50000,
		MaxLimit:                    750000,
		VolumeTarget:                200000,
		TargetRepaymentLag:          2,
		VolumeToCreditRatio:         0.32,
		ScoreMultiplier:             600,
		OutstandingWeight:           0.2,
		UtilizationComfortThreshold: 0.65,
		SectorPenalties: map[SectorRisk]float64{
			SectorHigh:   -8,
			SectorMedium: 0,
			SectorLow:    0,
		},
	}
}

// Input is the flat snapshot scored by Assess.
type Input struct {
	RetailerID                string     `json:"retailerId"`
	TrailingVolume90d         float64    `json:"trailingVolume90d"`
	TrailingGrowthRate        float64    `json:"trailingGrowthRate"`
	Orders90d                 int        `json:"orders90d"`
	AverageOrderValue         float64    `json:"averageOrderValue"`
	OnTimePaymentRate         float64    `json:"onTimePaymentRate"`
	DisputeRate               float64    `json:"disputeRate"`
	RepaymentLagDays          float64    `json:"repaymentLagDays"`
	CreditUtilization         float64    `json:"creditUtilization"`
	CurrentOutstanding        float64    `json:"currentOutstanding"`
	ExistingCreditLimit       float64    `json:"existingCreditLimit"`
	ConsecutiveOnTimePayments int        `json:"consecutiveOnTimePayments"`
	DaysSinceSignup           float64    `json:"daysSinceSignup"`
	SectorRisk                SectorRisk `json:"sectorRisk"`
	ManualAdjustment          float64    `json:"manualAdjustment"`
}

// Penalties lists the deductions feeding the behaviour and payment scores.
type Penalties struct {
	Utilization  float64 `json:"utilization"`
	Disputes     float64 `json:"disputes"`
	RepaymentLag float64 `json:"repaymentLag"`
	LatePayments float64 `json:"latePayments"`
}

// Breakdown exposes each score component.
type Breakdown struct {
	Volume         float64   `json:"volume"`
	Payments       float64   `json:"payments"`
	Behaviour      float64   `json:"behaviour"`
	Recency        float64   `json:"recency"`
	Tenure         float64   `json:"tenure"`
	Manual         float64   `json:"manual"`
	RiskAdjustment float64   `json:"riskAdjustment"`
	Penalties      Penalties `json:"penalties"`
}

// Assessment is the result of one scoring run.
type Assessment struct {
	RetailerID        string    `json:"retailerId"`
	Score             float64   `json:"score"`
	Tier              Tier      `json:"tier"`
	RecommendedLimit  float64   `json:"recommendedLimit"`
	LimitDelta        float64   `json:"limitDelta"`
	AvailableHeadroom float64   `json:"availableHeadroom"`
	CreditUtilization float64   `json:"creditUtilization"`
	NextReviewDate    time.Time `json:"nextReviewDate"`
	Breakdown         Breakdown `json:"breakdown"`
	Alerts            []string  `json:"alerts"`
	Input             Input     `json:"inputSnapshot"`
}

// Alert texts.
const (
	AlertUtilization   = "Utilization above comfort range; consider partial repayment or review limit exposure."
	AlertOnTimeRate    = "On-time payment rate below 85%; enable reminders or auto-debit to improve collections."
	AlertDisputeRate   = "Dispute rate trending high; escalate to account manager for review."
	AlertLimitIncrease = "Eligible for limit increase of %d pending final approval."
	AlertLimitDecrease = "Recommend limit reduction to rebalance risk and exposure."
)

const (
	onTimeAlertThreshold  = 0.85
	disputeAlertThreshold = 0.03
	upgradeScoreMargin    = 5
)

var alertPrinter = message.NewPrinter(language.English)

// Assess scores input against opts. now anchors the next review date.
func Assess(input Input, opts Options, now time.Time) Assessment {
	normalizedVolume := input.TrailingVolume90d / math.Max(opts.VolumeTarget, 1)
	volumeScore := clamp(normalizedVolume*32+clamp(input.TrailingGrowthRate*100, -10, 10), 0, 40)

	repaymentLagPenalty := math.Max(input.RepaymentLagDays-opts.TargetRepaymentLag, 0) * 2.2
	paymentScore := clamp(input.OnTimePaymentRate*30-repaymentLagPenalty, 0, 30)

	utilizationPenalty := 0.0
	if input.CreditUtilization > opts.UtilizationComfortThreshold {
		utilizationPenalty = (input.CreditUtilization - opts.UtilizationComfortThreshold) * 40
	}
	disputePenalty := input.DisputeRate * 120
	latePenalty := math.Max(1-input.OnTimePaymentRate, 0) * 60
	behaviourScore := clamp(20-(utilizationPenalty+disputePenalty+latePenalty)/3.5, -5, 20)

	recencyBoost := clamp(float64(min(input.ConsecutiveOnTimePayments, 12))*0.8, 0, 8)
	tenureBoost := clamp(input.DaysSinceSignup/30, 0, 6)
	sectorPenalty := opts.SectorPenalties[ParseSectorRisk(string(input.SectorRisk))]

	raw := volumeScore + paymentScore + behaviourScore + recencyBoost + tenureBoost + input.ManualAdjustment + sectorPenalty
	score := round2(clamp(raw, 0, 100))
	tier := TierForScore(score)

	monthlyVolume := input.TrailingVolume90d / 3
	projected := opts.BaseLimit +
		input.TrailingVolume90d*opts.VolumeToCreditRatio +
		score*opts.ScoreMultiplier -
		input.CurrentOutstanding*opts.OutstandingWeight
	tierCap := math.Max(monthlyVolume*tier.MaxLimitMultiplier, opts.BaseLimit)
	bounded := clamp(math.Min(projected, tierCap), opts.BaseLimit, opts.MaxLimit)
	recommended := math.Max(opts.BaseLimit, roundToNearest(bounded, 1000))
	limitDelta := math.Round(recommended - input.ExistingCreditLimit)
	headroom := math.Max(recommended-input.CurrentOutstanding, 0)

	alerts := make([]string, 0, 5)
	if input.CreditUtilization > tier.UtilizationCeiling {
		alerts = append(alerts, AlertUtilization)
	}
	if input.OnTimePaymentRate < onTimeAlertThreshold {
		alerts = append(alerts, AlertOnTimeRate)
	}
	if input.DisputeRate > disputeAlertThreshold {
		alerts = append(alerts, AlertDisputeRate)
	}
	if limitDelta > 0 && score >= tier.MinScore+upgradeScoreMargin {
		alerts = append(alerts, alertPrinter.Sprintf(AlertLimitIncrease, int64(limitDelta)))
	}
	if limitDelta < 0 {
		alerts = append(alerts, AlertLimitDecrease)
	}

	return Assessment{
		RetailerID:        input.RetailerID,
		Score:             score,
		Tier:              tier,
		RecommendedLimit:  recommended,
		LimitDelta:        limitDelta,
		AvailableHeadroom: math.Round(headroom),
		CreditUtilization: round2(input.CreditUtilization),
		NextReviewDate:    now.Add(time.Duration(tier.ReviewCadenceDays) * 24 * time.Hour).UTC(),
		Breakdown: Breakdown{
			Volume:         round2(volumeScore),
			Payments:       round2(paymentScore),
			Behaviour:      round2(behaviourScore),
			Recency:        round2(recencyBoost),
			Tenure:         round2(tenureBoost),
			Manual:         round2(input.ManualAdjustment),
			RiskAdjustment: round2(sectorPenalty),
			Penalties: Penalties{
				Utilization:  round2(utilizationPenalty),
				Disputes:     round2(disputePenalty),
				RepaymentLag: round2(repaymentLagPenalty),
				LatePayments: round2(latePenalty),
			},
		},
		Alerts: alerts,
		Input:  input,
	}
}

// UpgradeCandidate reports whether the assessment qualifies for a limit increase.
func (a Assessment) UpgradeCandidate() bool {
	return a.LimitDelta > 0 && a.Score >= a.Tier.MinScore+upgradeScoreMargin
}

// NeedsReview reports whether any risk alert condition holds.
func (a Assessment) NeedsReview() bool {
	return a.CreditUtilization > a.Tier.UtilizationCeiling ||
		a.Input.OnTimePaymentRate < onTimeAlertThreshold ||
		a.Input.DisputeRate > disputeAlertThreshold
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundToNearest(v, nearest float64) float64 {
	if nearest <= 0 {
		return v
	}
	return math.Round(v/nearest) * nearest
}

package scoring

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var assessedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func strongRetailer() Input {
	return Input{
		RetailerID:                "ret-1",
		TrailingVolume90d:         600000,
		OnTimePaymentRate:         0.95,
		DisputeRate:               0.01,
		CreditUtilization:         0.4,
		CurrentOutstanding:        50000,
		ExistingCreditLimit:       150000,
		ConsecutiveOnTimePayments: 6,
		DaysSinceSignup:           400,
		SectorRisk:                SectorLow,
	}
}

func TestAssessStrongRetailerEarnsIncrease(t *testing.T) {
	result := Assess(strongRetailer(), DefaultOptions(), assessedAt)

	require.InDelta(t, 98.1, result.Score, 0.001)
	assert.Equal(t, TierElite, result.Tier.ID)
	assert.Equal(t, 291000.0, result.RecommendedLimit)
	assert.Equal(t, 141000.0, result.LimitDelta)
	assert.Equal(t, 241000.0, result.AvailableHeadroom)
	assert.Equal(t, assessedAt.Add(90*24*time.Hour), result.NextReviewDate)
	assert.Equal(t, []string{"Eligible for limit increase of 141,000 pending final approval."}, result.Alerts)

	assert.Equal(t, 40.0, result.Breakdown.Volume)
	assert.Equal(t, 28.5, result.Breakdown.Payments)
	assert.InDelta(t, 18.8, result.Breakdown.Behaviour, 0.001)
	assert.InDelta(t, 4.8, result.Breakdown.Recency, 0.001)
	assert.Equal(t, 6.0, result.Breakdown.Tenure)
	assert.InDelta(t, 1.2, result.Breakdown.Penalties.Disputes, 0.001)
	assert.InDelta(t, 3.0, result.Breakdown.Penalties.LatePayments, 0.001)
}

func TestAssessEmptyHistory(t *testing.T) {
	result := Assess(Input{RetailerID: "new"}, DefaultOptions(), assessedAt)

	assert.InDelta(t, 2.86, result.Score, 0.001)
	assert.Equal(t, TierStarter, result.Tier.ID)
	assert.Equal(t, 50000.0, result.RecommendedLimit)
	assert.Equal(t, []string{AlertOnTimeRate}, result.Alerts)
}

func TestAssessRiskAlerts(t *testing.T) {
	input := strongRetailer()
	input.CreditUtilization = 0.97
	input.CurrentOutstanding = 600000
	input.OnTimePaymentRate = 0.6
	input.DisputeRate = 0.2
	input.ExistingCreditLimit = 700000

	result := Assess(input, DefaultOptions(), assessedAt)

	assert.Contains(t, result.Alerts, AlertUtilization)
	assert.Contains(t, result.Alerts, AlertOnTimeRate)
	assert.Contains(t, result.Alerts, AlertDisputeRate)
	assert.Contains(t, result.Alerts, AlertLimitDecrease)
	assert.Less(t, result.LimitDelta, 0.0)
}

func TestAlertTextsArePlainASCII(t *testing.T) {
	texts := []struct{ got, want string }{
		{AlertUtilization, "Utilization above comfort range; consider partial repayment or review limit exposure."},
		{AlertOnTimeRate, "On-time payment rate below 85%; enable reminders or auto-debit to improve collections."},
		{AlertDisputeRate, "Dispute rate trending high; escalate to account manager for review."},
		{AlertLimitIncrease, "Eligible for limit increase of %d pending final approval."},
		{AlertLimitDecrease, "Recommend limit reduction to rebalance risk and exposure."},
	}
	for _, tc := range texts {
		got := tc.got
		assert.Equal(t, tc.want, got)
		for i, r := range got {
			require.Lessf(t, r, rune(utf8.RuneSelf), "non-ASCII rune at %d in %q", i, got)
		}
	}
}

func TestSectorPenaltyIsConfigurable(t *testing.T) {
	input := strongRetailer()
	input.TrailingVolume90d = 100000
	input.SectorRisk = SectorMedium

	base := Assess(input, DefaultOptions(), assessedAt)
	opts := DefaultOptions()
	opts.SectorPenalties[SectorMedium] = -3
	penalised := Assess(input, opts, assessedAt)

	assert.InDelta(t, base.Score-3, penalised.Score, 0.001)
	assert.Equal(t, -3.0, penalised.Breakdown.RiskAdjustment)

	input.SectorRisk = "unknown"
	unknown := Assess(input, opts, assessedAt)
	assert.Equal(t, penalised.Score, unknown.Score)
}

func TestAssessBounds(t *testing.T) {
	opts := DefaultOptions()
	volumes := []float64{0, 1000, 250000, 5e6, 1e9}
	rates := []float64{0, 0.5, 1}
	utilizations := []float64{0, 0.7, 3}
	adjustments := []float64{-30, 0, 30}
	for _, v := range volumes {
		for _, r := range rates {
			for _, u := range utilizations {
				for _, adj := range adjustments {
					input := Input{
						TrailingVolume90d:         v,
						TrailingGrowthRate:        3,
						OnTimePaymentRate:         r,
						DisputeRate:               1 - r,
						RepaymentLagDays:          30 * (1 - r),
						CreditUtilization:         u,
						CurrentOutstanding:        u * 150000,
						ExistingCreditLimit:       150000,
						ConsecutiveOnTimePayments: 20,
						DaysSinceSignup:           1000,
						SectorRisk:                SectorHigh,
						ManualAdjustment:          adj,
					}
					result := Assess(input, opts, assessedAt)
					assert.GreaterOrEqual(t, result.Score, 0.0)
					assert.LessOrEqual(t, result.Score, 100.0)
					assert.GreaterOrEqual(t, result.RecommendedLimit, opts.BaseLimit)
					assert.LessOrEqual(t, result.RecommendedLimit, opts.MaxLimit)
					assert.GreaterOrEqual(t, result.AvailableHeadroom, 0.0)
				}
			}
		}
	}
}

func TestTierSelectionIsMonotonic(t *testing.T) {
	rank := map[string]int{TierStarter: 0, TierGrowth: 1, TierScale: 2, TierElite: 3}
	prev := -1
	for score := -10.0; score <= 110; score += 0.5 {
		tier := TierForScore(score)
		require.GreaterOrEqual(t, rank[tier.ID], prev, "score %.1f", score)
		prev = rank[tier.ID]
	}
	assert.Equal(t, TierGrowth, TierForScore(55).ID)
	assert.Equal(t, TierStarter, TierForScore(54.99).ID)
	assert.Equal(t, TierElite, TierForScore(85).ID)
}

func TestForecastBumpsOnReviewWeeks(t *testing.T) {
	result := Assess(strongRetailer(), DefaultOptions(), assessedAt)
	points := Forecast(result, DefaultForecastOptions(DefaultOptions()))

	require.Len(t, points, 16)
	// elite cadence is 90 days, roughly 13 weeks
	for _, p := range points {
		if p.Week == 13 {
			assert.True(t, p.ReviewWeek)
			assert.InDelta(t, result.Score+1.2, p.ProjectedScore, 0.001)
			assert.Equal(t, 311000.0, p.ProjectedLimit)
			continue
		}
		assert.False(t, p.ReviewWeek, "week %d", p.Week)
	}
	assert.Equal(t, result.RecommendedLimit, points[0].ProjectedLimit)
}

func TestForecastStarterCadenceFloor(t *testing.T) {
	result := Assess(Input{RetailerID: "new"}, DefaultOptions(), assessedAt)
	points := Forecast(result, DefaultForecastOptions(DefaultOptions()))

	reviews := 0
	for _, p := range points {
		if p.ReviewWeek {
			reviews++
			assert.Zero(t, p.Week%4)
			assert.Equal(t, 50000.0, p.ProjectedLimit)
		}
	}
	assert.Equal(t, 4, reviews)
}

func TestSummarize(t *testing.T) {
	results := []Assessment{
		{RetailerID: "a", RecommendedLimit: 100000, LimitDelta: 10000, Score: 80, Tier: Tiers[2], CreditUtilization: 0.2,
			Input: Input{CurrentOutstanding: 30000, OnTimePaymentRate: 1, CreditUtilization: 0.2}},
		{RetailerID: "b", RecommendedLimit: 60000, LimitDelta: -5000, Score: 40, Tier: Tiers[0], CreditUtilization: 0.9,
			Input: Input{CurrentOutstanding: 10000, OnTimePaymentRate: 0.5, CreditUtilization: 0.9}},
		{RetailerID: "c", RecommendedLimit: 50000, LimitDelta: 0, Score: 10, Tier: Tiers[0], CreditUtilization: 0.5,
			Input: Input{CurrentOutstanding: 0, OnTimePaymentRate: 0.9, CreditUtilization: 0.5}},
	}

	summary := Summarize(results)

	assert.Equal(t, 3, summary.Retailers)
	assert.Equal(t, 210000.0, summary.TotalRecommendedLimit)
	assert.Equal(t, 40000.0, summary.TotalOutstanding)
	assert.Equal(t, 0.875, summary.WeightedOnTimeRate)
	assert.Equal(t, 0.9, summary.UtilizationPercentile90)
	assert.Equal(t, []string{"a"}, summary.UpgradeCandidates)
	assert.Equal(t, []string{"b"}, summary.Watchlist)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	assert.Zero(t, summary.TotalRecommendedLimit)
	assert.Empty(t, summary.Watchlist)
}

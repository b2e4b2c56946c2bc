package scoring

import (
	"math"
	"sort"
)

// PortfolioSummary aggregates assessments for dashboards.
type PortfolioSummary struct {
	Retailers               int      `json:"retailers"`
	TotalRecommendedLimit   float64  `json:"totalRecommendedLimit"`
	TotalOutstanding        float64  `json:"totalOutstanding"`
	WeightedOnTimeRate      float64  `json:"weightedOnTimeRate"`
	UtilizationPercentile90 float64  `json:"utilizationPercentile90"`
	UpgradeCandidates       []string `json:"upgradeCandidates"`
	Watchlist               []string `json:"watchlist"`
}

// Summarize reduces a set of assessments to portfolio totals.
func Summarize(results []Assessment) PortfolioSummary {
	summary := PortfolioSummary{
		Retailers:         len(results),
		UpgradeCandidates: []string{},
		Watchlist:         []string{},
	}
	if len(results) == 0 {
		return summary
	}

	var totalLimit, totalOutstanding, weighted, plain float64
	utilizations := make([]float64, 0, len(results))
	for _, r := range results {
		totalLimit += r.RecommendedLimit
		totalOutstanding += r.Input.CurrentOutstanding
		weighted += r.Input.OnTimePaymentRate * r.Input.CurrentOutstanding
		plain += r.Input.OnTimePaymentRate
		utilizations = append(utilizations, r.Input.CreditUtilization)
		if r.UpgradeCandidate() {
			summary.UpgradeCandidates = append(summary.UpgradeCandidates, r.RetailerID)
		}
		if r.NeedsReview() {
			summary.Watchlist = append(summary.Watchlist, r.RetailerID)
		}
	}

	onTime := plain / float64(len(results))
	if totalOutstanding > 0 {
		onTime = weighted / totalOutstanding
	}
	sort.Float64s(utilizations)
	idx := min(len(utilizations)-1, int(math.Floor(0.9*float64(len(utilizations)))))

	summary.TotalRecommendedLimit = math.Round(totalLimit)
	summary.TotalOutstanding = math.Round(totalOutstanding)
	summary.WeightedOnTimeRate = math.Round(onTime*10000) / 10000
	summary.UtilizationPercentile90 = round2(utilizations[idx])
	return summary
}

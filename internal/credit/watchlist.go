package credit

import "github.com/vendai/vendai-jobs/internal/credit/scoring"

// Watchlist thresholds.
const (
	DefaultWatchlistScoreThreshold = 520
	WatchlistDisputeRate           = 0.05
)

// EvaluateWatchlist decides whether a retailer stays on the watchlist after
// an assessment.
func EvaluateWatchlist(a scoring.Assessment, in scoring.Input, stats Stats, reason Reason, scoreThreshold float64) WatchlistEntry {
	watch := a.Score < scoreThreshold ||
		in.DisputeRate >= WatchlistDisputeRate ||
		stats.ActiveDisputes > 0 ||
		a.CreditUtilization > a.Tier.UtilizationCeiling
	if !watch {
		return WatchlistEntry{RetailerID: a.RetailerID, Status: WatchlistCleared}
	}
	return WatchlistEntry{
		RetailerID:        a.RetailerID,
		Status:            WatchlistWatching,
		Score:             a.Score,
		Tier:              a.Tier.ID,
		DisputeRate:       in.DisputeRate,
		ActiveDisputes:    stats.ActiveDisputes,
		CreditUtilization: a.CreditUtilization,
		Reason:            reason,
	}
}

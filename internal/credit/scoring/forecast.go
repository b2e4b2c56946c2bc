package scoring

import "math"

// ForecastOptions tunes the limit trajectory simulation.
type ForecastOptions struct {
	HorizonWeeks    int
	LimitGrowthRate float64
	ScoreMomentum   float64
	BaseLimit       float64
	MaxLimit        float64
}

// DefaultForecastOptions derives the simulation bounds from the limit model.
func DefaultForecastOptions(opts Options) ForecastOptions {
	return ForecastOptions{
		HorizonWeeks:    16,
		LimitGrowthRate: 0.07,
		ScoreMomentum:   1.2,
		BaseLimit:       opts.BaseLimit,
		MaxLimit:        opts.MaxLimit,
	}
}

// ForecastPoint is one simulated week.
type ForecastPoint struct {
	Week           int     `json:"week"`
	ProjectedLimit float64 `json:"projectedLimit"`
	ProjectedScore float64 `json:"projectedScore"`
	TierID         string  `json:"tierId"`
	ReviewWeek     bool    `json:"review"`
}

// Forecast projects the limit and score assuming steady behaviour, bumping
// both on every review week of the assessed tier's cadence.
func Forecast(a Assessment, opts ForecastOptions) []ForecastPoint {
	if opts.HorizonWeeks <= 0 {
		return nil
	}
	cadence := max(4, int(math.Round(float64(a.Tier.ReviewCadenceDays)/7)))
	limit := a.RecommendedLimit
	score := a.Score
	tier := a.Tier
	baseMonthlyVolume := a.Input.TrailingVolume90d / 3
	horizon := float64(opts.HorizonWeeks)

	points := make([]ForecastPoint, 0, opts.HorizonWeeks)
	for week := 1; week <= opts.HorizonWeeks; week++ {
		review := week%cadence == 0
		if review {
			score = clamp(score+opts.ScoreMomentum, 0, 100)
			tier = TierForScore(score)
			volume := baseMonthlyVolume * (1 + 0.1*float64(week)/horizon)
			tierCap := math.Max(volume*tier.MaxLimitMultiplier, opts.BaseLimit)
			grown := clamp(limit*(1+opts.LimitGrowthRate), opts.BaseLimit, opts.MaxLimit)
			limit = math.Max(opts.BaseLimit, roundToNearest(math.Min(grown, tierCap), 1000))
		}
		points = append(points, ForecastPoint{
			Week:           week,
			ProjectedLimit: limit,
			ProjectedScore: round2(score),
			TierID:         tier.ID,
			ReviewWeek:     review,
		})
	}
	return points
}

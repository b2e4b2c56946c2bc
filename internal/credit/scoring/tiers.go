// Package scoring turns a retailer's trailing payment behaviour into a credit
// score, tier and limit recommendation. Everything here is pure.
package scoring

// Tier is a named credit band.
type Tier struct {
	ID                 string  `json:"id"`
	Label              string  `json:"label"`
	MinScore           float64 `json:"minScore"`
	ReviewCadenceDays  int     `json:"reviewCadenceDays"`
	MaxLimitMultiplier float64 `json:"maxLimitMultiplier"`
	UtilizationCeiling float64 `json:"utilizationCeiling"`
	Description        string  `json:"description"`
}

// Tier identifiers.
const (
	TierStarter = "starter"
	TierGrowth  = "growth"
	TierScale   = "scale"
	TierElite   = "elite"
)

// Tiers are ordered by MinScore ascending.
var Tiers = []Tier{
	{
		ID:                 TierStarter,
		Label:              "Starter",
		MinScore:           0,
		ReviewCadenceDays:  30,
		MaxLimitMultiplier: 1.1,
		UtilizationCeiling: 0.8,
		Description:        "New retailers with limited history. Manual review each month.",
	},
	{
		ID:                 TierGrowth,
		Label:              "Growth",
		MinScore:           55,
		ReviewCadenceDays:  45,
		MaxLimitMultiplier: 1.6,
		UtilizationCeiling: 0.88,
		Description:        "Consistent performance and growing volume. Semi-automated reviews.",
	},
	{
		ID:                 TierScale,
		Label:              "Scale",
		MinScore:           70,
		ReviewCadenceDays:  60,
		MaxLimitMultiplier: 2.1,
		UtilizationCeiling: 0.92,
		Description:        "High-performing retailers with predictable repayment behaviour.",
	},
	{
		ID:                 TierElite,
		Label:              "Elite",
		MinScore:           85,
		ReviewCadenceDays:  90,
		MaxLimitMultiplier: 2.6,
		UtilizationCeiling: 0.95,
		Description:        "Top tier partners eligible for extended payment terms and auto-limit hikes.",
	},
}

// TierForScore returns the highest tier whose MinScore does not exceed score.
func TierForScore(score float64) Tier {
	normalized := clamp(score, 0, 100)
	matched := Tiers[0]
	for _, tier := range Tiers {
		if normalized >= tier.MinScore {
			matched = tier
		}
	}
	return matched
}

// TierByID looks up a tier, reporting whether it exists.
func TierByID(id string) (Tier, bool) {
	for _, tier := range Tiers {
		if tier.ID == id {
			return tier, true
		}
	}
	return Tier{}, false
}

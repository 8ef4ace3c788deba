package billing

import "github.com/sessionforge/sessionforge/internal/models"

// Pricing is the static rate table, grounded exactly on the defaults
// confirmed in original_source/server/services/billing_service.py (spec §6.5).
type Pricing struct {
	HourlyRates map[models.UserType]float64
	TierMultiplier map[models.ResourceTier]float64

	StorageMonthlyRate map[models.StorageType]float64

	CreditPurchaseMinAmount float64
	CreditPurchaseBonusPct  float64
}

// DefaultPricing matches spec §6.5 verbatim.
func DefaultPricing() Pricing {
	return Pricing{
		HourlyRates: map[models.UserType]float64{
			models.UserFree:       0.05,
			models.UserPro:        0.025,
			models.UserEnterprise: 0.01,
			models.UserAdmin:      0.0,
		},
		TierMultiplier: map[models.ResourceTier]float64{
			models.TierSmall:  1.0,
			models.TierMedium: 1.5,
			models.TierLarge:  2.0,
			models.TierGPU:    5.0,
		},
		StorageMonthlyRate: map[models.StorageType]float64{
			models.StorageBucket:    0.02,
			models.StorageFilestore: 0.17,
		},
		CreditPurchaseMinAmount: 10.0,
		CreditPurchaseBonusPct:  0.0,
	}
}

func (p Pricing) HourlyRate(userType models.UserType) float64 {
	if r, ok := p.HourlyRates[userType]; ok {
		return r
	}
	return p.HourlyRates[models.UserFree]
}

func (p Pricing) Multiplier(tier models.ResourceTier) float64 {
	if m, ok := p.TierMultiplier[tier]; ok {
		return m
	}
	return 1.0
}

func (p Pricing) StorageRate(t models.StorageType) float64 {
	return p.StorageMonthlyRate[t]
}

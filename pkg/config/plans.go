package config

import (
	"github.com/shopspring/decimal"

	"github.com/fatflowers/plankeeper/pkg/types"
)

// DefaultPlans is the catalog used when the config file declares none.
func DefaultPlans() []*types.PlanSeed {
	return []*types.PlanSeed{
		{
			Slug:     "free",
			Name:     "Free",
			Price:    decimal.Zero,
			Currency: "USD",
			IsActive: true,
			Features: types.FeatureMap{
				types.FeatureLinks:           types.Numeric(5),
				types.FeaturePages:           types.Numeric(1),
				types.FeatureAllowedTemplate: types.AllowedSet("classic"),
				types.FeatureThemes:          types.AllowedSet("light", "dark"),
				types.FeatureAnalytics:       types.Numeric(7),
				types.FeatureCustomQR:        types.Boolean(false),
				types.FeatureSEO:             types.Boolean(false),
				types.FeatureRemoveWatermark: types.Boolean(false),
			},
		},
		{
			Slug:     "pro",
			Name:     "Pro",
			Price:    decimal.NewFromInt(9),
			Currency: "USD",
			IsActive: true,
			Features: types.FeatureMap{
				types.FeatureLinks:           types.Numeric(1000),
				types.FeaturePages:           types.Numeric(1),
				types.FeatureAllowedTemplate: types.AllowedSet("classic", "bento", "hero", "influencer", "sleek", "minimalist", "glassmorphism", "stack"),
				types.FeatureThemes:          types.AllowedSet("light", "dark", "midnight", "aurora", "cyberglow", "hyperpop", "zenstone", "matcha", "nebula"),
				types.FeatureAnalytics:       types.Numeric(90),
				types.FeatureCustomQR:        types.Boolean(true),
				types.FeatureSEO:             types.Boolean(true),
				types.FeatureRemoveWatermark: types.Boolean(true),
			},
		},
		{
			Slug:     "agency",
			Name:     "Agency",
			Price:    decimal.NewFromInt(49),
			Currency: "USD",
			IsActive: true,
			Features: types.FeatureMap{
				types.FeatureLinks:           types.Numeric(1000),
				types.FeaturePages:           types.Numeric(10),
				types.FeatureAllowedTemplate: types.Unlimited(),
				types.FeatureThemes:          types.Unlimited(),
				types.FeatureAnalytics:       types.Numeric(9999),
				types.FeatureCustomQR:        types.Boolean(true),
				types.FeatureSEO:             types.Boolean(true),
				types.FeatureRemoveWatermark: types.Boolean(true),
				types.FeatureCustomBranding:  types.Boolean(true),
			},
		},
	}
}

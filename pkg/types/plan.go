package types

import "github.com/shopspring/decimal"

type PlanChangeReason string

const (
	PlanChangeReasonPaymentRenewal         PlanChangeReason = "payment_renewal"
	PlanChangeReasonPaymentUpgrade         PlanChangeReason = "payment_upgrade"
	PlanChangeReasonPaymentDowngradeQueued PlanChangeReason = "payment_downgrade_queued"
	PlanChangeReasonPendingPromoted        PlanChangeReason = "pending_promoted"
	PlanChangeReasonExpiredToFree          PlanChangeReason = "expired_to_free"
	PlanChangeReasonDowngradeToFree        PlanChangeReason = "downgrade_to_free"
	PlanChangeReasonInvariantRepair        PlanChangeReason = "invariant_repair"
)

// PlanSeed is a catalog entry declared in configuration and upserted by slug
// at startup.
type PlanSeed struct {
	Slug     string          `json:"slug" mapstructure:"slug"`
	Name     string          `json:"name" mapstructure:"name"`
	Price    decimal.Decimal `json:"price" mapstructure:"price"`
	Currency string          `json:"currency" mapstructure:"currency"`
	IsActive bool            `json:"is_active" mapstructure:"is_active"`
	Features FeatureMap      `json:"features" mapstructure:"features"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/plankeeper/pkg/types"
)

// Payment is one attempt to pay for a plan through a gateway link.
// The ID doubles as the reference sent to the gateway.
type Payment struct {
	ID            string                `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID        string                `gorm:"column:user_id;type:varchar(64);not null;index:idx_payment_user_status,priority:1" json:"user_id"`
	PlanID        string                `gorm:"column:plan_id;type:uuid;not null" json:"plan_id"`
	Provider      types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	GatewayLinkID string                `gorm:"column:gateway_link_id;type:varchar(128);not null;uniqueIndex:unique_payment_gateway_link_id" json:"gateway_link_id"`
	// GatewayPaymentID is known once the gateway reports the payment.
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id;type:varchar(128);uniqueIndex:unique_payment_gateway_payment_id" json:"gateway_payment_id"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency         string              `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status           types.PaymentStatus `gorm:"column:status;type:varchar(32);not null;index:idx_payment_user_status,priority:2" json:"status"`
	RedirectURL      string              `gorm:"column:redirect_url;type:varchar(1024)" json:"redirect_url"`
	// ExpiresAtAfterPayment is the user's plan expiry right after capture.
	ExpiresAtAfterPayment *time.Time `gorm:"column:expires_at_after_payment" json:"expires_at_after_payment"`
	CapturedAt            *time.Time `gorm:"column:captured_at" json:"captured_at"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

type PlanNotificationKind string

const (
	PlanNotificationPlanActivated        PlanNotificationKind = "plan_activated"
	PlanNotificationDowngradeQueued      PlanNotificationKind = "downgrade_queued"
	PlanNotificationPendingPlanActivated PlanNotificationKind = "pending_plan_activated"
	PlanNotificationPlanExpired          PlanNotificationKind = "plan_expired"
	PlanNotificationDowngradedToFree     PlanNotificationKind = "downgraded_to_free"
	PlanNotificationExpiringSoon         PlanNotificationKind = "expiring_soon"
)

// PlanNotification is an outbox row consumed by the notification dispatcher.
type PlanNotification struct {
	ID     string               `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string               `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Kind   PlanNotificationKind `gorm:"column:kind;type:varchar(64);not null" json:"kind"`
	PlanID *string              `gorm:"column:plan_id;type:uuid" json:"plan_id"`
	// DedupeKey makes repeated emission of the same event a no-op.
	DedupeKey   string            `gorm:"column:dedupe_key;type:varchar(191);not null;uniqueIndex:unique_plan_notification_dedupe" json:"dedupe_key"`
	Payload     datatypes.JSONMap `gorm:"column:payload;type:jsonb" json:"payload"`
	DeliveredAt *time.Time        `gorm:"column:delivered_at" json:"delivered_at"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (PlanNotification) TableName() string {
	return "plan_notification"
}

package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/plankeeper/pkg/types"
)

// PlanChangeLog records every change of a user's plan columns.
// Use case: troubleshooting and manual reconciliation.
type PlanChangeLog struct {
	ID     string                 `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                 `gorm:"column:user_id;type:varchar(64);index:idx_plan_change_log_user,priority:1;not null" json:"user_id"`
	Reason types.PlanChangeReason `gorm:"column:reason;type:varchar(64);not null" json:"reason"`
	// PaymentID is set when the change was driven by a captured payment.
	PaymentID *string                           `gorm:"column:payment_id;type:uuid" json:"payment_id"`
	Before    datatypes.JSONType[*PlanSnapshot] `gorm:"column:before;type:jsonb" json:"before"`
	After     datatypes.JSONType[*PlanSnapshot] `gorm:"column:after;type:jsonb" json:"after"`
	Extra     datatypes.JSONMap                 `gorm:"column:extra;type:jsonb" json:"extra"`
	CreatedAt time.Time                         `gorm:"index:idx_plan_change_log_user,priority:2" json:"created_at"`
}

func (PlanChangeLog) TableName() string {
	return "plan_change_log"
}

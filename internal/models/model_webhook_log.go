package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/plankeeper/pkg/types"
)

// WebhookLog is the idempotency record of a gateway delivery. The unique
// (external_id, event_class) pair is what makes redelivery a no-op.
type WebhookLog struct {
	ID         string                 `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider   types.PaymentProvider  `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	Event      string                 `gorm:"column:event;type:varchar(64);not null" json:"event"`
	EventClass types.EventClass       `gorm:"column:event_class;type:varchar(32);not null;uniqueIndex:unique_webhook_log_external,priority:2" json:"event_class"`
	ExternalID string                 `gorm:"column:external_id;type:varchar(191);not null;uniqueIndex:unique_webhook_log_external,priority:1" json:"external_id"`
	KeySource  types.KeySource        `gorm:"column:key_source;type:varchar(32);not null" json:"key_source"`
	LinkID     *string                `gorm:"column:link_id;type:varchar(128);index" json:"link_id"`
	Payload    datatypes.JSON         `gorm:"column:payload;type:jsonb" json:"payload"`
	Status     types.WebhookLogStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Attempts   int                    `gorm:"column:attempts;not null" json:"attempts"`
	Error      *string                `gorm:"column:error;type:text" json:"error"`
	TraceID    string                 `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	// ProcessedAt is set once the row reaches processed.
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (WebhookLog) TableName() string { return "webhook_log" }

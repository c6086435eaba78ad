package types

type WebhookLogStatus string

const (
	WebhookLogStatusPending   WebhookLogStatus = "pending"
	WebhookLogStatusProcessed WebhookLogStatus = "processed"
	WebhookLogStatusFailed    WebhookLogStatus = "failed"
)

// EventClass groups gateway event types that share an idempotency scope.
type EventClass string

const (
	EventClassPaid       EventClass = "paid"
	EventClassLinkStatus EventClass = "link_status"
	EventClassOther      EventClass = "other"
)

// KeySource records where a webhook idempotency key came from.
type KeySource string

const (
	KeySourceEventID   KeySource = "event_id"
	KeySourceEntityID  KeySource = "entity_id"
	KeySourceSynthetic KeySource = "synthetic"
)

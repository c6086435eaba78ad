package models

import "time"

// User is the account entity. Only the plan columns are owned by billing.
//
// PendingPlanID set implies PlanExpiresAt set: a queued downgrade needs an
// expiry to take effect at.
type User struct {
	ID            string     `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Email         string     `gorm:"column:email;type:varchar(255)" json:"email"`
	PlanID        *string    `gorm:"column:plan_id;type:uuid" json:"plan_id"`
	PlanExpiresAt *time.Time `gorm:"column:plan_expires_at;index:idx_users_plan_expires_at" json:"plan_expires_at"`
	PendingPlanID *string    `gorm:"column:pending_plan_id;type:uuid" json:"pending_plan_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// PlanColumns are the columns written by plan transitions.
var PlanColumns = []string{"plan_id", "plan_expires_at", "pending_plan_id"}

// Expired reports whether the paid period has ended at now.
func (u *User) Expired(now time.Time) bool {
	return u.PlanExpiresAt != nil && u.PlanExpiresAt.Before(now)
}

// PlanSnapshot captures the plan columns for change logs.
type PlanSnapshot struct {
	PlanID        *string    `json:"plan_id"`
	PlanExpiresAt *time.Time `json:"plan_expires_at"`
	PendingPlanID *string    `json:"pending_plan_id"`
}

func (u *User) Snapshot() *PlanSnapshot {
	return &PlanSnapshot{PlanID: u.PlanID, PlanExpiresAt: u.PlanExpiresAt, PendingPlanID: u.PendingPlanID}
}

package planstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/tool"
	"github.com/fatflowers/plankeeper/pkg/types"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvariantViolation = errors.New("pending plan set without plan expiry")
)

// extend starts or prolongs a paid period of target. Time left on a running
// period carries over.
func extend(u *models.User, target *models.Plan, now time.Time, period time.Duration) {
	base := now
	if u.PlanExpiresAt != nil && u.PlanExpiresAt.After(now) {
		base = *u.PlanExpiresAt
	}
	expiry := base.Add(period)
	id := target.ID
	u.PlanID = &id
	u.PlanExpiresAt = &expiry
	u.PendingPlanID = nil
}

// ApplyPurchase applies a captured payment for target to u. effective is the
// plan u is entitled to at now.
//
// A cheaper plan is queued behind the running period. A plan with no expiry
// has nothing to queue behind and switches immediately.
func ApplyPurchase(u *models.User, target, effective *models.Plan, now time.Time, period time.Duration) types.PlanChangeReason {
	switch {
	case u.PlanID == nil || *u.PlanID == target.ID:
		extend(u, target, now, period)
		return types.PlanChangeReasonPaymentRenewal
	case target.Price.LessThan(effective.Price) && u.PlanExpiresAt != nil:
		id := target.ID
		u.PendingPlanID = &id
		return types.PlanChangeReasonPaymentDowngradeQueued
	default:
		extend(u, target, now, period)
		return types.PlanChangeReasonPaymentUpgrade
	}
}

// Expire moves a lapsed user to the queued plan, or to free when nothing
// usable is queued. pending may be nil.
func Expire(u *models.User, pending, free *models.Plan, now time.Time, period time.Duration) types.PlanChangeReason {
	if pending != nil && !pending.IsFree() {
		u.PlanExpiresAt = nil
		extend(u, pending, now, period)
		return types.PlanChangeReasonPendingPromoted
	}
	ToFree(u, free)
	return types.PlanChangeReasonExpiredToFree
}

// ToFree puts u on the free plan with no expiry and nothing queued.
func ToFree(u *models.User, free *models.Plan) {
	id := free.ID
	u.PlanID = &id
	u.PlanExpiresAt = nil
	u.PendingPlanID = nil
}

// ViolatesInvariant reports a queued plan without an expiry to take effect at.
func ViolatesInvariant(u *models.User) bool {
	return u.PendingPlanID != nil && u.PlanExpiresAt == nil
}

// LockUser reads a user row for update inside tx.
func LockUser(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	var u models.User
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// Change is one plan transition to persist.
type Change struct {
	User      *models.User
	Before    *models.PlanSnapshot
	Reason    types.PlanChangeReason
	PaymentID *string
	Extra     map[string]any
	At        time.Time
}

// Save writes the user's plan columns and the change log row inside tx.
func Save(ctx context.Context, tx *gorm.DB, c *Change) error {
	u := c.User
	err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", u.ID).
		Select(append(models.PlanColumns[:len(models.PlanColumns):len(models.PlanColumns)], "updated_at")).
		Updates(map[string]any{
			"plan_id":         u.PlanID,
			"plan_expires_at": u.PlanExpiresAt,
			"pending_plan_id": u.PendingPlanID,
			"updated_at":      c.At,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update user plan: %w", err)
	}
	row := &models.PlanChangeLog{
		ID:        tool.GenerateUUIDV7(),
		UserID:    u.ID,
		Reason:    c.Reason,
		PaymentID: c.PaymentID,
		Before:    datatypes.NewJSONType(c.Before),
		After:     datatypes.NewJSONType(u.Snapshot()),
		Extra:     datatypes.JSONMap(c.Extra),
		CreatedAt: c.At,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to write plan change log: %w", err)
	}
	return nil
}

// SameSnapshot reports whether two snapshots hold the same plan columns.
func SameSnapshot(a, b *models.PlanSnapshot) bool {
	return eqString(a.PlanID, b.PlanID) && eqString(a.PendingPlanID, b.PendingPlanID) && eqTime(a.PlanExpiresAt, b.PlanExpiresAt)
}

func eqString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

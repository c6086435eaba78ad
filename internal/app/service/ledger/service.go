package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/internal/platform/db"
	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/clock"
	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/tool"
	"github.com/fatflowers/plankeeper/pkg/types"
)

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrPlanNotPayable      = errors.New("plan cannot be purchased")
	ErrRenewalWindowClosed = errors.New("current plan is not within its renewal window")
	ErrInvalidTransition   = errors.New("invalid payment status transition")
)

// Attempt is a freshly created payment and where to send the buyer.
type Attempt struct {
	Payment     *models.Payment
	RedirectURL string
}

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	gateways *gateway.Registry
	clock    clock.Clock
	log      *zap.SugaredLogger
}

func NewService(cfg *config.Config, db *gorm.DB, gateways *gateway.Registry, clk clock.Clock, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, gateways: gateways, clock: clk, log: log}
}

// InRenewalWindow reports whether u may start paying for plan at now.
// Buying the current plan again is always allowed, as is buying anything
// when no paid period is running or it ends within window.
func InRenewalWindow(u *models.User, plan *models.Plan, now time.Time, window time.Duration) bool {
	if u.PlanID != nil && plan != nil && *u.PlanID == plan.ID {
		return true
	}
	if u.PlanExpiresAt == nil || !u.PlanExpiresAt.After(now) {
		return true
	}
	return u.PlanExpiresAt.Sub(now) <= window
}

// CreateAttempt opens a payment link for plan and records it as created.
// The gateway is called before anything is written; a link whose row
// cannot be stored is cancelled again.
func (s *Service) CreateAttempt(ctx context.Context, u *models.User, plan *models.Plan, provider types.PaymentProvider) (*Attempt, error) {
	log := logctx.FromCtx(ctx, s.log)
	if plan == nil || plan.IsFree() || !plan.IsActive {
		return nil, ErrPlanNotPayable
	}
	now := s.clock.Now()
	if !InRenewalWindow(u, plan, now, s.cfg.Billing.RenewalWindow()) {
		return nil, ErrRenewalWindowClosed
	}
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	ref := tool.GenerateUUIDV7()
	link, err := gw.CreatePaymentLink(ctx, &gateway.LinkRequest{
		Reference:   ref,
		UserID:      u.ID,
		UserEmail:   u.Email,
		PlanID:      plan.ID,
		PlanSlug:    plan.Slug,
		PlanName:    plan.Name,
		Amount:      plan.Price,
		Currency:    plan.Currency,
		CallbackURL: s.cfg.Billing.CallbackURL,
	})
	if err != nil {
		log.Errorw("create payment link failed", "provider", gw.Provider(), "plan", plan.Slug, "err", err)
		return nil, err
	}

	p := &models.Payment{
		ID:            ref,
		UserID:        u.ID,
		PlanID:        plan.ID,
		Provider:      gw.Provider(),
		GatewayLinkID: link.ID,
		Amount:        plan.Price,
		Currency:      plan.Currency,
		Status:        types.PaymentStatusCreated,
		RedirectURL:   link.URL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if cerr := gw.CancelPaymentLink(ctx, link.ID); cerr != nil {
			log.Errorw("orphan payment link left open", "link_id", link.ID, "err", cerr)
		}
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}
	log.Infow("payment attempt created", "payment_id", p.ID, "link_id", link.ID, "plan", plan.Slug, "provider", p.Provider)
	return &Attempt{Payment: p, RedirectURL: link.URL}, nil
}

// UpdateStatus moves a payment to a closing status (failed, expired,
// cancelled). Transitions the status machine does not allow are ignored and
// the stored row is returned unchanged. Capture goes through MarkCaptured.
func (s *Service) UpdateStatus(ctx context.Context, linkID string, status types.PaymentStatus) (*models.Payment, error) {
	if !status.Valid() || status == types.PaymentStatusCaptured || !status.IsTerminal() {
		return nil, fmt.Errorf("%w: to %s", ErrInvalidTransition, status)
	}
	var out *models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.LockByLinkID(ctx, tx, linkID)
		if err != nil {
			return err
		}
		out = p
		if !p.Status.CanTransitionTo(status) {
			logctx.FromCtx(ctx, s.log).Infow("payment status change ignored", "payment_id", p.ID, "from", p.Status, "to", status)
			return nil
		}
		now := s.clock.Now()
		if err := tx.Model(p).Updates(map[string]any{"status": status, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		p.Status = status
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LockByLinkID reads a payment row for update inside tx.
func (s *Service) LockByLinkID(ctx context.Context, tx *gorm.DB, linkID string) (*models.Payment, error) {
	var p models.Payment
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_link_id = ?", linkID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: link %s", ErrPaymentNotFound, linkID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &p, nil
}

// MarkCaptured records the capture of p inside tx.
func (s *Service) MarkCaptured(ctx context.Context, tx *gorm.DB, p *models.Payment, gatewayPaymentID string, expiresAt *time.Time) error {
	if !p.Status.CanTransitionTo(types.PaymentStatusCaptured) {
		return fmt.Errorf("%w: %s to captured", ErrInvalidTransition, p.Status)
	}
	now := s.clock.Now()
	updates := map[string]any{
		"status":                   types.PaymentStatusCaptured,
		"captured_at":              now,
		"expires_at_after_payment": expiresAt,
		"updated_at":               now,
	}
	if gatewayPaymentID != "" {
		updates["gateway_payment_id"] = gatewayPaymentID
	}
	if err := tx.WithContext(ctx).Model(p).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark payment captured: %w", err)
	}
	p.Status = types.PaymentStatusCaptured
	p.CapturedAt = &now
	p.ExpiresAtAfterPayment = expiresAt
	if gatewayPaymentID != "" {
		p.GatewayPaymentID = &gatewayPaymentID
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return s.getBy(ctx, "id = ?", id)
}

func (s *Service) GetByLinkID(ctx context.Context, linkID string) (*models.Payment, error) {
	return s.getBy(ctx, "gateway_link_id = ?", linkID)
}

func (s *Service) getBy(ctx context.Context, cond string, v string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Where(cond, v).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, v)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &p, nil
}

// ListOpenByUser returns the user's payments still in created.
func (s *Service) ListOpenByUser(ctx context.Context, userID string) ([]*models.Payment, error) {
	var rows []*models.Payment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.PaymentStatusCreated).
		Order("created_at asc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open payments: %w", err)
	}
	return rows, nil
}

// CancelOpen marks the given payments cancelled inside tx, skipping any
// that left created in the meantime.
func (s *Service) CancelOpen(ctx context.Context, tx *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := tx.WithContext(ctx).Model(&models.Payment{}).
		Where("id IN ? AND status = ?", ids, types.PaymentStatusCreated).
		Updates(map[string]any{"status": types.PaymentStatusCancelled, "updated_at": s.clock.Now()})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to cancel open payments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var scanColumns = map[string]bool{
	"id": true, "user_id": true, "plan_id": true, "provider": true, "gateway_link_id": true,
	"gateway_payment_id": true, "status": true, "amount": true, "captured_at": true, "created_at": true,
}

// Scan lists payments for admin pages.
func (s *Service) Scan(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[*models.Payment], error) {
	return db.Scan[models.Payment](ctx, s.db, req, scanColumns)
}

var Module = fx.Options(
	fx.Provide(NewService),
)

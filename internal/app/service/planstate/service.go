package planstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/plankeeper/internal/app/service/entitlement"
	"github.com/fatflowers/plankeeper/internal/app/service/ledger"
	"github.com/fatflowers/plankeeper/internal/app/service/notification"
	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/clock"
	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/metrics"
	"github.com/fatflowers/plankeeper/pkg/types"
)

type PlanRef struct {
	ID    string          `json:"id"`
	Slug  string          `json:"slug"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func refOf(p *models.Plan) *PlanRef {
	if p == nil {
		return nil
	}
	return &PlanRef{ID: p.ID, Slug: p.Slug, Name: p.Name, Price: p.Price}
}

// State is a user's plan as seen at a point in time.
type State struct {
	UserID          string     `json:"user_id"`
	Plan            *PlanRef   `json:"plan"`
	EffectivePlan   *PlanRef   `json:"effective_plan"`
	PlanExpiresAt   *time.Time `json:"plan_expires_at"`
	PendingPlan     *PlanRef   `json:"pending_plan"`
	InRenewalWindow bool       `json:"in_renewal_window"`
}

// Selection is the outcome of choosing a plan: either a redirect to pay,
// or the new state when the choice applied directly.
type Selection struct {
	RedirectURL string `json:"redirect_url,omitempty"`
	PaymentID   string `json:"payment_id,omitempty"`
	LinkID      string `json:"link_id,omitempty"`
	State       *State `json:"state,omitempty"`
}

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	catalog  *plancatalog.Service
	ledger   *ledger.Service
	gateways *gateway.Registry
	notifier notification.Dispatcher
	clock    clock.Clock
	metrics  *metrics.Business
	log      *zap.SugaredLogger
}

func NewService(
	cfg *config.Config,
	db *gorm.DB,
	catalog *plancatalog.Service,
	ledgerSvc *ledger.Service,
	gateways *gateway.Registry,
	notifier notification.Dispatcher,
	clk clock.Clock,
	m *metrics.Business,
	log *zap.SugaredLogger,
) *Service {
	return &Service{
		cfg:      cfg,
		db:       db,
		catalog:  catalog,
		ledger:   ledgerSvc,
		gateways: gateways,
		notifier: notifier,
		clock:    clk,
		metrics:  m,
		log:      log,
	}
}

func (s *Service) view(u *models.User, now time.Time) *State {
	st := &State{
		UserID:        u.ID,
		EffectivePlan: refOf(entitlement.EffectivePlan(u, s.catalog, now)),
		PlanExpiresAt: u.PlanExpiresAt,
	}
	if u.PlanID != nil {
		if p, ok := s.catalog.Get(*u.PlanID); ok {
			st.Plan = refOf(p)
		}
	}
	if u.PendingPlanID != nil {
		if p, ok := s.catalog.Get(*u.PendingPlanID); ok {
			st.PendingPlan = refOf(p)
		}
	}
	st.InRenewalWindow = ledger.InRenewalWindow(u, nil, now, s.cfg.Billing.RenewalWindow())
	return st
}

// EnsureUser creates the account row on first sight of an authenticated user.
func (s *Service) EnsureUser(ctx context.Context, id, email string) error {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&models.User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now}).Error
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

func (s *Service) loadUser(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	var u models.User
	err := tx.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// Status returns the user's current plan state.
func (s *Service) Status(ctx context.Context, userID string) (*State, error) {
	u, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return s.view(u, s.clock.Now()), nil
}

// checkInvariant handles a queued plan without expiry. Outside prod it is
// an error; in prod the queued plan is dropped and the repair logged.
func (s *Service) checkInvariant(ctx context.Context, tx *gorm.DB, u *models.User, now time.Time) error {
	if !ViolatesInvariant(u) {
		return nil
	}
	log := logctx.FromCtx(ctx, s.log)
	if !s.cfg.IsProd() {
		log.Errorw("plan invariant violated", "user_id", u.ID, "pending_plan_id", *u.PendingPlanID)
		return fmt.Errorf("%w: user %s", ErrInvariantViolation, u.ID)
	}
	before := u.Snapshot()
	u.PendingPlanID = nil
	log.Errorw("plan invariant violated, pending plan cleared", "user_id", u.ID, "pending_plan_id", *before.PendingPlanID)
	if err := Save(ctx, tx, &Change{User: u, Before: before, Reason: types.PlanChangeReasonInvariantRepair, At: now}); err != nil {
		return err
	}
	s.metrics.PlanTransition(string(types.PlanChangeReasonInvariantRepair))
	return nil
}

// ApplyPaymentSuccess applies a captured payment to its user. Replays of an
// already captured payment return the current state without changes.
func (s *Service) ApplyPaymentSuccess(ctx context.Context, linkID, paymentID string) (*State, error) {
	start := time.Now()
	defer s.metrics.ObserveProcess("plan", "apply_payment", start)

	log := logctx.FromCtx(ctx, s.log)
	now := s.clock.Now()
	var (
		state  *State
		change *Change
		target *models.Plan
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.ledger.LockByLinkID(ctx, tx, linkID)
		if err != nil {
			return err
		}
		if p.Status == types.PaymentStatusCaptured {
			if p.GatewayPaymentID != nil && paymentID != "" && *p.GatewayPaymentID != paymentID {
				log.Warnw("second payment reported for captured link", "link_id", linkID, "stored_payment_id", *p.GatewayPaymentID, "payment_id", paymentID)
			}
			u, err := s.loadUser(ctx, tx, p.UserID)
			if err != nil {
				return err
			}
			state = s.view(u, now)
			return nil
		}

		u, err := LockUser(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		if err := s.checkInvariant(ctx, tx, u, now); err != nil {
			return err
		}
		var ok bool
		if target, ok = s.catalog.Get(p.PlanID); !ok {
			return fmt.Errorf("%w: %s", plancatalog.ErrPlanNotFound, p.PlanID)
		}

		before := u.Snapshot()
		effective := entitlement.EffectivePlan(u, s.catalog, now)
		reason := ApplyPurchase(u, target, effective, now, s.cfg.Billing.Period())
		if err := s.ledger.MarkCaptured(ctx, tx, p, paymentID, u.PlanExpiresAt); err != nil {
			return err
		}
		change = &Change{
			User:      u,
			Before:    before,
			Reason:    reason,
			PaymentID: &p.ID,
			Extra:     map[string]any{"gateway_payment_id": paymentID, "link_id": linkID},
			At:        now,
		}
		if err := Save(ctx, tx, change); err != nil {
			return err
		}
		state = s.view(u, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if change == nil {
		log.Infow("payment already applied", "link_id", linkID)
		return state, nil
	}

	s.metrics.PlanTransition(string(change.Reason))
	log.Infow("payment applied", "user_id", change.User.ID, "plan", target.Slug, "reason", change.Reason, "link_id", linkID)
	kind := models.PlanNotificationPlanActivated
	if change.Reason == types.PlanChangeReasonPaymentDowngradeQueued {
		kind = models.PlanNotificationDowngradeQueued
	}
	s.notifier.Dispatch(ctx, notification.Event{
		Kind:      kind,
		UserID:    change.User.ID,
		PlanID:    &target.ID,
		DedupeKey: fmt.Sprintf("payment:%s", *change.PaymentID),
		Payload:   map[string]any{"plan": target.Slug, "expires_at": change.User.PlanExpiresAt},
	})
	return state, nil
}

// ConfirmClientPayment applies a payment the browser reports as completed,
// once the gateway vouches for it. The payment must belong to userID.
func (s *Service) ConfirmClientPayment(ctx context.Context, userID string, provider types.PaymentProvider, req *gateway.ClientConfirmation) (*State, error) {
	p, err := s.ledger.GetByLinkID(ctx, req.LinkID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("%w: link %s", ledger.ErrPaymentNotFound, req.LinkID)
	}
	if provider == "" {
		provider = p.Provider
	}
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}
	paymentID, err := gw.VerifyClientPayment(ctx, req)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("client payment confirmation rejected", "link_id", req.LinkID, "err", err)
		return nil, err
	}
	return s.ApplyPaymentSuccess(ctx, req.LinkID, paymentID)
}

// SelectPlan starts a purchase of the plan with slug. Choosing the free plan
// downgrades directly.
func (s *Service) SelectPlan(ctx context.Context, userID, slug string, provider types.PaymentProvider) (*Selection, error) {
	plan, ok := s.catalog.GetBySlug(slug)
	if !ok || !plan.IsActive {
		return nil, fmt.Errorf("%w: %s", plancatalog.ErrPlanNotFound, slug)
	}
	if plan.IsFree() {
		st, err := s.DowngradeToFree(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &Selection{State: st}, nil
	}
	u, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	att, err := s.ledger.CreateAttempt(ctx, u, plan, provider)
	if err != nil {
		return nil, err
	}
	return &Selection{RedirectURL: att.RedirectURL, PaymentID: att.Payment.ID, LinkID: att.Payment.GatewayLinkID}, nil
}

// DowngradeToFree abandons open payment attempts and moves the user toward
// the free plan. A running paid period is kept until it ends.
func (s *Service) DowngradeToFree(ctx context.Context, userID string) (*State, error) {
	log := logctx.FromCtx(ctx, s.log)
	open, err := s.ledger.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(open))
	for _, p := range open {
		ids = append(ids, p.ID)
		gw, err := s.gateways.Get(p.Provider)
		if err != nil {
			log.Warnw("no gateway to cancel payment link", "payment_id", p.ID, "provider", p.Provider)
			continue
		}
		if err := gw.CancelPaymentLink(ctx, p.GatewayLinkID); err != nil {
			log.Warnw("cancel payment link failed", "payment_id", p.ID, "link_id", p.GatewayLinkID, "err", err)
		}
	}

	now := s.clock.Now()
	free := s.catalog.Free()
	var (
		state  *State
		change *Change
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := LockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := s.checkInvariant(ctx, tx, u, now); err != nil {
			return err
		}
		if _, err := s.ledger.CancelOpen(ctx, tx, ids); err != nil {
			return err
		}

		before := u.Snapshot()
		paidRunning := u.PlanID != nil && *u.PlanID != free.ID && u.PlanExpiresAt != nil && u.PlanExpiresAt.After(now)
		if paidRunning {
			u.PendingPlanID = nil
		} else {
			ToFree(u, free)
		}
		if !SameSnapshot(before, u.Snapshot()) {
			change = &Change{
				User:   u,
				Before: before,
				Reason: types.PlanChangeReasonDowngradeToFree,
				Extra:  map[string]any{"cancelled_payments": ids, "deferred": paidRunning},
				At:     now,
			}
			if err := Save(ctx, tx, change); err != nil {
				return err
			}
		}
		state = s.view(u, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if change != nil {
		s.metrics.PlanTransition(string(change.Reason))
		s.notifier.Dispatch(ctx, notification.Event{
			Kind:    models.PlanNotificationDowngradedToFree,
			UserID:  userID,
			PlanID:  &free.ID,
			Payload: map[string]any{"effective_at": change.User.PlanExpiresAt},
		})
	}
	log.Infow("downgrade to free handled", "user_id", userID, "cancelled_payments", len(ids), "changed", change != nil)
	return state, nil
}

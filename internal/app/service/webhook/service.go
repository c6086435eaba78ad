package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/plankeeper/internal/app/service/ledger"
	"github.com/fatflowers/plankeeper/internal/app/service/planstate"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/internal/platform/db"
	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/clock"
	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/metrics"
	"github.com/fatflowers/plankeeper/pkg/tool"
	"github.com/fatflowers/plankeeper/pkg/types"
)

// ErrEventInFlight means another delivery of the same event is being
// processed; the gateway should retry later.
var ErrEventInFlight = errors.New("webhook event is being processed")

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type Result struct {
	Outcome    Outcome          `json:"outcome"`
	LogID      string           `json:"log_id,omitempty"`
	ExternalID string           `json:"external_id,omitempty"`
	Class      types.EventClass `json:"class,omitempty"`
}

// PaymentApplier applies captured payments to plans.
type PaymentApplier interface {
	ApplyPaymentSuccess(ctx context.Context, linkID, paymentID string) (*planstate.State, error)
}

// PaymentLedger is the part of the ledger webhook dispatch needs.
type PaymentLedger interface {
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, linkID string, status types.PaymentStatus) (*models.Payment, error)
}

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	gateways *gateway.Registry
	applier  PaymentApplier
	ledger   PaymentLedger
	clock    clock.Clock
	metrics  *metrics.Business
	log      *zap.SugaredLogger
}

func NewService(
	cfg *config.Config,
	db *gorm.DB,
	gateways *gateway.Registry,
	applier PaymentApplier,
	ledgerSvc PaymentLedger,
	clk clock.Clock,
	m *metrics.Business,
	log *zap.SugaredLogger,
) *Service {
	return &Service{cfg: cfg, db: db, gateways: gateways, applier: applier, ledger: ledgerSvc, clock: clk, metrics: m, log: log}
}

// Handle authenticates, deduplicates and applies one webhook delivery.
func (s *Service) Handle(ctx context.Context, provider types.PaymentProvider, header http.Header, body []byte) (res *Result, resErr error) {
	start := time.Now()
	log := logctx.FromCtx(ctx, s.log).With("provider", provider)
	class := types.EventClassOther
	defer func() {
		outcome := "error"
		if res != nil {
			outcome = string(res.Outcome)
		}
		s.metrics.WebhookEvent(string(provider), string(class), outcome)
		s.metrics.ObserveProcess("webhook", string(provider), start)
	}()

	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}
	if s.cfg.Webhook.SkipSignatureVerify && !s.cfg.IsProd() {
		log.Warnw("webhook signature verification skipped")
	} else if err := gw.VerifyWebhook(header, body); err != nil {
		log.Warnw("webhook signature rejected", "err", err)
		return nil, err
	}

	env, err := gw.ParseWebhook(header, body)
	if err != nil {
		log.Errorw("webhook payload rejected", "err", err, "size", len(body))
		return nil, err
	}
	class = env.Class()
	if env.ExternalID == "" {
		env.ExternalID = tool.GenerateUUIDV7()
		env.KeySource = types.KeySourceSynthetic
		log.Warnw("webhook carries no event id, using synthetic key", "event", env.Type, "external_id", env.ExternalID)
	}
	log = log.With("event", env.Type, "external_id", env.ExternalID, "key_source", env.KeySource)

	row, claimed, err := s.claim(ctx, env, body)
	if err != nil {
		return nil, err
	}
	res = &Result{LogID: row.ID, ExternalID: env.ExternalID, Class: class}
	if !claimed {
		log.Infow("webhook duplicate ignored", "log_id", row.ID, "status", row.Status)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	outcome, err := s.dispatch(ctx, env)
	if ferr := s.finish(ctx, row, err); ferr != nil {
		log.Errorw("failed to finalize webhook log", "log_id", row.ID, "err", ferr)
		if err == nil {
			err = ferr
		}
	}
	if err != nil {
		log.Errorw("webhook processing failed", "log_id", row.ID, "err", err)
		return nil, err
	}
	log.Infow("webhook processed", "log_id", row.ID, "outcome", outcome)
	res.Outcome = outcome
	return res, nil
}

// claim inserts the log row in pending, or takes over an existing row when
// a retry is legitimate. claimed is false for deliveries to ignore.
func (s *Service) claim(ctx context.Context, env *gateway.Envelope, body []byte) (*models.WebhookLog, bool, error) {
	now := s.clock.Now()
	traceID, _ := ctx.Value(logctx.KeyTraceID).(string)
	row := &models.WebhookLog{
		ID:         tool.GenerateUUIDV7(),
		Provider:   env.Provider,
		Event:      env.Type,
		EventClass: env.Class(),
		ExternalID: env.ExternalID,
		KeySource:  env.KeySource,
		Payload:    datatypes.JSON(body),
		Status:     types.WebhookLogStatusPending,
		Attempts:   1,
		TraceID:    traceID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if link := env.LinkID(); link != "" {
		row.LinkID = lo.ToPtr(link)
	}
	ins := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}, {Name: "event_class"}},
		DoNothing: true,
	}).Create(row)
	if ins.Error != nil {
		return nil, false, fmt.Errorf("failed to record webhook: %w", ins.Error)
	}
	if ins.RowsAffected == 1 {
		return row, true, nil
	}

	var existing models.WebhookLog
	err := s.db.WithContext(ctx).
		Where("external_id = ? AND event_class = ?", env.ExternalID, env.Class()).
		Take(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to load webhook log: %w", err)
	}

	switch existing.Status {
	case types.WebhookLogStatusProcessed:
		return &existing, false, nil
	case types.WebhookLogStatusFailed:
		return s.reclaim(ctx, &existing, types.WebhookLogStatusFailed, now)
	default:
		if existing.EventClass != types.EventClassPaid {
			return &existing, false, nil
		}
		if now.Sub(existing.UpdatedAt) < s.cfg.Webhook.PendingStaleAfter {
			return nil, false, ErrEventInFlight
		}
		logctx.FromCtx(ctx, s.log).Warnw("reclaiming stale pending webhook", "log_id", existing.ID, "updated_at", existing.UpdatedAt)
		return s.reclaim(ctx, &existing, types.WebhookLogStatusPending, now)
	}
}

// reclaim flips row back to pending if it is still in from. Losing the race
// to another delivery reports the event as in flight.
func (s *Service) reclaim(ctx context.Context, row *models.WebhookLog, from types.WebhookLogStatus, now time.Time) (*models.WebhookLog, bool, error) {
	res := s.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ? AND status = ? AND attempts = ?", row.ID, from, row.Attempts).
		Updates(map[string]any{
			"status":     types.WebhookLogStatusPending,
			"attempts":   row.Attempts + 1,
			"error":      nil,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to reclaim webhook log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, ErrEventInFlight
	}
	row.Status = types.WebhookLogStatusPending
	row.Attempts++
	row.UpdatedAt = now
	return row, true, nil
}

func (s *Service) dispatch(ctx context.Context, env *gateway.Envelope) (Outcome, error) {
	switch ev := env.Event.(type) {
	case gateway.PaymentPaid:
		linkID := ev.LinkID
		if linkID == "" {
			p, err := s.ledger.GetByID(ctx, ev.Reference)
			if err != nil {
				return "", err
			}
			linkID = p.GatewayLinkID
		}
		if _, err := s.applier.ApplyPaymentSuccess(ctx, linkID, ev.PaymentID); err != nil {
			return "", err
		}
		return OutcomeProcessed, nil
	case gateway.LinkClosed:
		if _, err := s.ledger.UpdateStatus(ctx, ev.LinkID, ev.Status); err != nil {
			return "", err
		}
		return OutcomeProcessed, nil
	default:
		logctx.FromCtx(ctx, s.log).Infow("webhook event ignored", "event", env.Type)
		return OutcomeIgnored, nil
	}
}

func (s *Service) finish(ctx context.Context, row *models.WebhookLog, procErr error) error {
	now := s.clock.Now()
	updates := map[string]any{"updated_at": now}
	if procErr != nil {
		updates["status"] = types.WebhookLogStatusFailed
		updates["error"] = procErr.Error()
	} else {
		updates["status"] = types.WebhookLogStatusProcessed
		updates["processed_at"] = now
		updates["error"] = nil
	}
	// detached so a cancelled request still records the outcome
	ctx = context.WithoutCancel(ctx)
	return s.db.WithContext(ctx).Model(&models.WebhookLog{}).Where("id = ?", row.ID).Updates(updates).Error
}

var scanColumns = map[string]bool{
	"id": true, "provider": true, "event": true, "event_class": true, "external_id": true,
	"key_source": true, "link_id": true, "status": true, "attempts": true, "created_at": true, "processed_at": true,
}

// Scan lists webhook logs for admin pages.
func (s *Service) Scan(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[*models.WebhookLog], error) {
	return db.Scan[models.WebhookLog](ctx, s.db, req, scanColumns)
}

var Module = fx.Options(
	fx.Provide(
		NewService,
		func(s *planstate.Service) PaymentApplier { return s },
		func(s *ledger.Service) PaymentLedger { return s },
	),
)

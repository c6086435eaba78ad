package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/plankeeper/internal/app/service/notification"
	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/app/service/planstate"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/clock"
	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/metrics"
	"github.com/fatflowers/plankeeper/pkg/types"
)

// Report summarises one sweep run.
type Report struct {
	Scanned  int `json:"scanned"`
	Promoted int `json:"promoted"`
	FellBack int `json:"fell_back"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Repaired int `json:"repaired"`
}

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	catalog  *plancatalog.Service
	notifier notification.Dispatcher
	clock    clock.Clock
	metrics  *metrics.Business
	log      *zap.SugaredLogger
}

func NewService(cfg *config.Config, db *gorm.DB, catalog *plancatalog.Service, notifier notification.Dispatcher, clk clock.Clock, m *metrics.Business, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, catalog: catalog, notifier: notifier, clock: clk, metrics: m, log: log}
}

func (s *Service) batchSize() int {
	if s.cfg.Scheduler.BatchSize > 0 {
		return s.cfg.Scheduler.BatchSize
	}
	return 200
}

// RunExpirySweep moves every user whose paid period has ended to the queued
// plan or to free. One user's failure does not stop the run.
func (s *Service) RunExpirySweep(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer s.metrics.ObserveProcess("sweep", "expiry", start)

	log := logctx.FromCtx(ctx, s.log)
	now := s.clock.Now()
	report := &Report{}

	if err := s.repairInvariant(ctx, now, report); err != nil {
		log.Errorw("invariant repair pass failed", "err", err)
	}

	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		q := s.db.WithContext(ctx).Model(&models.User{}).Where("plan_expires_at < ?", now)
		if lastID != "" {
			q = q.Where("id > ?", lastID)
		}
		var ids []string
		if err := q.Order("id asc").Limit(s.batchSize()).Pluck("id", &ids).Error; err != nil {
			return report, fmt.Errorf("failed to list expired users: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Scanned++
			reason, err := s.expireUser(ctx, id, now)
			switch {
			case err != nil:
				report.Failed++
				log.Errorw("expire user failed", "user_id", id, "err", err)
			case reason == "":
				report.Skipped++
			case reason == types.PlanChangeReasonPendingPromoted:
				report.Promoted++
			default:
				report.FellBack++
			}
		}
		lastID = ids[len(ids)-1]
	}

	log.Infow("expiry sweep finished",
		"scanned", report.Scanned, "promoted", report.Promoted, "fell_back", report.FellBack,
		"skipped", report.Skipped, "failed", report.Failed, "repaired", report.Repaired)
	return report, nil
}

// expireUser re-reads the user under lock and applies expiry if it still
// holds. An empty reason means nothing was due.
func (s *Service) expireUser(ctx context.Context, id string, now time.Time) (types.PlanChangeReason, error) {
	var (
		reason types.PlanChangeReason
		ev     *notification.Event
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := planstate.LockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if !u.Expired(now) {
			return nil
		}
		before := u.Snapshot()
		endedAt := *u.PlanExpiresAt

		var pending *models.Plan
		if u.PendingPlanID != nil {
			p, ok := s.catalog.Get(*u.PendingPlanID)
			if !ok {
				logctx.FromCtx(ctx, s.log).Warnw("queued plan missing from catalog", "user_id", id, "pending_plan_id", *u.PendingPlanID)
			}
			pending = p
		}
		reason = planstate.Expire(u, pending, s.catalog.Free(), now, s.cfg.Billing.Period())
		change := &planstate.Change{
			User:   u,
			Before: before,
			Reason: reason,
			Extra:  map[string]any{"ended_at": endedAt},
			At:     now,
		}
		if err := planstate.Save(ctx, tx, change); err != nil {
			return err
		}

		kind := models.PlanNotificationPlanExpired
		if reason == types.PlanChangeReasonPendingPromoted {
			kind = models.PlanNotificationPendingPlanActivated
		}
		ev = &notification.Event{
			Kind:      kind,
			UserID:    id,
			PlanID:    u.PlanID,
			DedupeKey: fmt.Sprintf("expiry:%s:%d", id, endedAt.Unix()),
			Payload:   map[string]any{"ended_at": endedAt, "expires_at": u.PlanExpiresAt},
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if ev != nil {
		s.metrics.PlanTransition(string(reason))
		s.notifier.Dispatch(ctx, *ev)
	}
	return reason, nil
}

// repairInvariant drops queued plans that have no expiry to take effect at.
func (s *Service) repairInvariant(ctx context.Context, now time.Time, report *Report) error {
	log := logctx.FromCtx(ctx, s.log)
	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := s.db.WithContext(ctx).Model(&models.User{}).
			Where("pending_plan_id IS NOT NULL AND plan_expires_at IS NULL")
		if lastID != "" {
			q = q.Where("id > ?", lastID)
		}
		var ids []string
		if err := q.Order("id asc").Limit(s.batchSize()).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("failed to list invariant violations: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			if err := s.repairUser(ctx, id, now); err != nil {
				report.Failed++
				log.Errorw("invariant repair failed", "user_id", id, "err", err)
				continue
			}
			report.Repaired++
			s.metrics.PlanTransition(string(types.PlanChangeReasonInvariantRepair))
			log.Errorw("pending plan without expiry cleared", "user_id", id)
		}
		lastID = ids[len(ids)-1]
	}
}

func (s *Service) repairUser(ctx context.Context, id string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := planstate.LockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if !planstate.ViolatesInvariant(u) {
			return nil
		}
		before := u.Snapshot()
		u.PendingPlanID = nil
		return planstate.Save(ctx, tx, &planstate.Change{User: u, Before: before, Reason: types.PlanChangeReasonInvariantRepair, At: now})
	})
}

// RunExpiryWarnings queues an expiring_soon notice for every paid user whose
// plan ends on one of the configured days ahead. Returns the number of users
// matched; repeated runs on the same day queue nothing new.
func (s *Service) RunExpiryWarnings(ctx context.Context) (int, error) {
	start := time.Now()
	defer s.metrics.ObserveProcess("sweep", "warnings", start)

	now := s.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	free := s.catalog.Free()
	matched := 0
	for _, days := range s.cfg.Scheduler.WarningDays {
		from := today.AddDate(0, 0, days)
		to := from.AddDate(0, 0, 1)
		lastID := ""
		for {
			if err := ctx.Err(); err != nil {
				return matched, err
			}
			q := s.db.WithContext(ctx).
				Where("plan_expires_at >= ? AND plan_expires_at < ? AND plan_id <> ?", from, to, free.ID)
			if lastID != "" {
				q = q.Where("id > ?", lastID)
			}
			var users []*models.User
			if err := q.Order("id asc").Limit(s.batchSize()).Find(&users).Error; err != nil {
				return matched, fmt.Errorf("failed to list expiring users: %w", err)
			}
			if len(users) == 0 {
				break
			}
			events := make([]notification.Event, 0, len(users))
			for _, u := range users {
				events = append(events, notification.Event{
					Kind:      models.PlanNotificationExpiringSoon,
					UserID:    u.ID,
					PlanID:    u.PlanID,
					DedupeKey: fmt.Sprintf("expiring:%s:%s:%d", u.ID, u.PlanExpiresAt.UTC().Format(time.DateOnly), days),
					Payload:   map[string]any{"days_left": days, "expires_at": u.PlanExpiresAt},
				})
			}
			s.notifier.Dispatch(ctx, events...)
			matched += len(users)
			lastID = users[len(users)-1].ID
		}
	}
	logctx.FromCtx(ctx, s.log).Infow("expiry warnings queued", "matched", matched)
	return matched, nil
}

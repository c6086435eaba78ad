package notification

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/clock"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/tool"
)

// Event is a user-facing plan notification. Events sharing a DedupeKey are
// stored once.
type Event struct {
	Kind      models.PlanNotificationKind
	UserID    string
	PlanID    *string
	DedupeKey string
	Payload   map[string]any
}

// Dispatcher queues plan notifications. Dispatch never fails the caller:
// state changes are already committed when it runs.
type Dispatcher interface {
	Dispatch(ctx context.Context, events ...Event)
}

type Service struct {
	db    *gorm.DB
	clock clock.Clock
	log   *zap.SugaredLogger
}

func New(db *gorm.DB, clk clock.Clock, log *zap.SugaredLogger) *Service {
	return &Service{db: db, clock: clk, log: log}
}

// Dispatch writes events to the plan_notification outbox.
func (s *Service) Dispatch(ctx context.Context, events ...Event) {
	log := logctx.FromCtx(ctx, s.log)
	for _, ev := range events {
		row := &models.PlanNotification{
			ID:        tool.GenerateUUIDV7(),
			UserID:    ev.UserID,
			Kind:      ev.Kind,
			PlanID:    ev.PlanID,
			DedupeKey: ev.DedupeKey,
			Payload:   datatypes.JSONMap(ev.Payload),
			CreatedAt: s.clock.Now(),
		}
		if row.DedupeKey == "" {
			row.DedupeKey = row.ID
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).Create(row)
		if res.Error != nil {
			log.Errorw("failed to queue plan notification", "kind", ev.Kind, "user_id", ev.UserID, "err", res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			log.Debugw("plan notification already queued", "kind", ev.Kind, "dedupe_key", row.DedupeKey)
			continue
		}
		log.Infow("plan notification queued", "kind", ev.Kind, "user_id", ev.UserID, "dedupe_key", row.DedupeKey)
	}
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(func(s *Service) Dispatcher { return s }),
)

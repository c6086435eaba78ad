package entitlement

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/clock"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/types"
)

var ErrUnknownFeature = errors.New("unknown feature")

type CheckResult struct {
	Allowed  bool               `json:"allowed"`
	Feature  types.FeatureKey   `json:"feature"`
	PlanSlug string             `json:"plan_slug"`
	// Limit is nil when the plan does not list the feature.
	Limit *types.FeatureValue `json:"limit"`
}

type Service struct {
	db      *gorm.DB
	catalog *plancatalog.Service
	clock   clock.Clock
	log     *zap.SugaredLogger
}

func NewService(db *gorm.DB, catalog *plancatalog.Service, clk clock.Clock, log *zap.SugaredLogger) *Service {
	return &Service{db: db, catalog: catalog, clock: clk, log: log}
}

// Check resolves the user's effective plan and evaluates one feature. An
// unknown user is treated as free.
func (s *Service) Check(ctx context.Context, userID string, key types.FeatureKey, req Request) (*CheckResult, error) {
	if !key.Known() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, key)
	}
	var u models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = models.User{ID: userID}
	case err != nil:
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	plan := EffectivePlan(&u, s.catalog, s.clock.Now())
	res := &CheckResult{
		Allowed:  CanAccess(plan, key, req),
		Feature:  key,
		PlanSlug: plan.Slug,
	}
	if limit, ok := plan.FeatureMap().Get(key); ok {
		res.Limit = &limit
	}
	logctx.FromCtx(ctx, s.log).Debugw("entitlement checked", "feature", key, "plan", plan.Slug, "allowed", res.Allowed)
	return res, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)

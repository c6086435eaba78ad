// Package servicetest holds fixtures shared by service tests.
package servicetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/config"
)

// Epoch is the default fake-clock start in service tests.
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Catalog seeds the default free/pro/agency plans into db.
func Catalog(t testing.TB, db *gorm.DB) *plancatalog.Service {
	t.Helper()
	cat := plancatalog.NewService(db, nil, zap.NewNop().Sugar())
	require.NoError(t, cat.Seed(context.Background(), config.DefaultPlans()))
	require.NoError(t, cat.Reload(context.Background()))
	return cat
}

// Plan returns the seeded plan with slug.
func Plan(t testing.TB, cat *plancatalog.Service, slug string) *models.Plan {
	t.Helper()
	p, ok := cat.GetBySlug(slug)
	require.True(t, ok, "plan %s", slug)
	return p
}

// Config returns a test configuration with a 30 day period.
func Config() *config.Config {
	return &config.Config{
		Env: config.EnvDev,
		Billing: config.BillingConfig{
			PeriodDays:        30,
			RenewalWindowDays: 7,
			DefaultProvider:   "razorpay",
			GatewayTimeout:    time.Second,
		},
		Webhook: config.WebhookConfig{PendingStaleAfter: 5 * time.Minute},
		Scheduler: config.SchedulerConfig{
			BatchSize:   2,
			WarningDays: []int{7, 3, 1},
			LockTTL:     time.Minute,
		},
	}
}

// User inserts a user row. Zero-valued plan fields are stored as NULL.
func User(t testing.TB, db *gorm.DB, id string, plan *models.Plan, expiresAt *time.Time, pending *models.Plan) *models.User {
	t.Helper()
	u := &models.User{ID: id, Email: id + "@example.com", PlanExpiresAt: expiresAt}
	if plan != nil {
		u.PlanID = &plan.ID
	}
	if pending != nil {
		u.PendingPlanID = &pending.ID
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Reload reads the user row back.
func Reload(t testing.TB, db *gorm.DB, id string) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.Where("id = ?", id).First(&u).Error)
	return &u
}

// TimePtr returns a pointer to t truncated to whole seconds.
func TimePtr(t time.Time) *time.Time {
	t = t.UTC().Truncate(time.Second)
	return &t
}

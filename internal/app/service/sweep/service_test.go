package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/fatflowers/plankeeper/internal/app/service/notification"
	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/app/service/servicetest"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/internal/platform/db/dbtest"
	"github.com/fatflowers/plankeeper/pkg/clock"
	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/lock"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/metrics"
	"github.com/fatflowers/plankeeper/pkg/types"
)

const day = 24 * time.Hour

type fixture struct {
	db  *gorm.DB
	cfg *config.Config
	cat *plancatalog.Service
	clk *clock.Fake
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.New(t)
	log := zap.NewNop().Sugar()
	f := &fixture{
		db:  gdb,
		cfg: servicetest.Config(),
		cat: servicetest.Catalog(t, gdb),
		clk: clock.NewFake(servicetest.Epoch),
	}
	f.svc = NewService(f.cfg, gdb, f.cat, notification.New(gdb, f.clk, log), f.clk, metrics.NewNopBusiness(), log)
	return f
}

func (f *fixture) plan(t *testing.T, slug string) *models.Plan {
	return servicetest.Plan(t, f.cat, slug)
}

func (f *fixture) notifications(t *testing.T, kind models.PlanNotificationKind) []models.PlanNotification {
	t.Helper()
	var rows []models.PlanNotification
	require.NoError(t, f.db.Where("kind = ?", kind).Order("user_id asc").Find(&rows).Error)
	return rows
}

func TestRunExpirySweep(t *testing.T) {
	f := newFixture(t)
	now := servicetest.Epoch
	pro, agency := f.plan(t, "pro"), f.plan(t, "agency")

	servicetest.User(t, f.db, "a-lapsed", pro, servicetest.TimePtr(now.Add(-time.Hour)), nil)
	servicetest.User(t, f.db, "b-queued", agency, servicetest.TimePtr(now.Add(-day)), pro)
	servicetest.User(t, f.db, "c-active", pro, servicetest.TimePtr(now.Add(day)), nil)
	servicetest.User(t, f.db, "d-lapsed", agency, servicetest.TimePtr(now.Add(-2*day)), nil)
	servicetest.User(t, f.db, "e-boundary", pro, servicetest.TimePtr(now), nil)
	servicetest.User(t, f.db, "f-free", f.plan(t, "free"), nil, nil)

	report, err := f.svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Report{Scanned: 3, Promoted: 1, FellBack: 2}, report)

	for _, id := range []string{"a-lapsed", "d-lapsed"} {
		u := servicetest.Reload(t, f.db, id)
		assert.Equal(t, f.plan(t, "free").ID, *u.PlanID, id)
		assert.Nil(t, u.PlanExpiresAt, id)
	}

	queued := servicetest.Reload(t, f.db, "b-queued")
	assert.Equal(t, pro.ID, *queued.PlanID)
	assert.True(t, now.Add(30*day).Equal(*queued.PlanExpiresAt))
	assert.Nil(t, queued.PendingPlanID)

	assert.Equal(t, pro.ID, *servicetest.Reload(t, f.db, "c-active").PlanID)
	assert.Equal(t, pro.ID, *servicetest.Reload(t, f.db, "e-boundary").PlanID)

	assert.Len(t, f.notifications(t, models.PlanNotificationPlanExpired), 2)
	assert.Len(t, f.notifications(t, models.PlanNotificationPendingPlanActivated), 1)

	var logs []models.PlanChangeLog
	require.NoError(t, f.db.Where("user_id = ?", "b-queued").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, types.PlanChangeReasonPendingPromoted, logs[0].Reason)

	again, err := f.svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Report{}, again)
}

func TestRunExpirySweepRepairsInvariant(t *testing.T) {
	f := newFixture(t)
	servicetest.User(t, f.db, "u1", f.plan(t, "agency"), nil, f.plan(t, "pro"))

	report, err := f.svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)

	u := servicetest.Reload(t, f.db, "u1")
	assert.Nil(t, u.PendingPlanID)
	assert.Equal(t, f.plan(t, "agency").ID, *u.PlanID)
}

func TestRunExpirySweepRepairsEveryViolator(t *testing.T) {
	f := newFixture(t)
	agency, pro := f.plan(t, "agency"), f.plan(t, "pro")
	ids := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, id := range ids {
		servicetest.User(t, f.db, id, agency, nil, pro)
	}

	report, err := f.svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(ids), report.Repaired)

	var left int64
	require.NoError(t, f.db.Model(&models.User{}).Where("pending_plan_id IS NOT NULL").Count(&left).Error)
	assert.Zero(t, left)
}

func TestRunExpirySweepStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	servicetest.User(t, f.db, "u1", f.plan(t, "pro"), servicetest.TimePtr(servicetest.Epoch.Add(-day)), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.svc.RunExpirySweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Scanned)
}

func TestRunExpiryWarnings(t *testing.T) {
	f := newFixture(t)
	now := servicetest.Epoch
	pro := f.plan(t, "pro")

	servicetest.User(t, f.db, "in-7", pro, servicetest.TimePtr(now.Add(7*day)), nil)
	servicetest.User(t, f.db, "in-3", pro, servicetest.TimePtr(now.Add(3*day-11*time.Hour)), nil)
	servicetest.User(t, f.db, "in-1", pro, servicetest.TimePtr(now.Add(day)), nil)
	servicetest.User(t, f.db, "in-5", pro, servicetest.TimePtr(now.Add(5*day)), nil)
	servicetest.User(t, f.db, "free", f.plan(t, "free"), nil, nil)

	n, err := f.svc.RunExpiryWarnings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows := f.notifications(t, models.PlanNotificationExpiringSoon)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"in-1", "in-3", "in-7"}, []string{rows[0].UserID, rows[1].UserID, rows[2].UserID})
	assert.Equal(t, "expiring:in-7:2025-03-08:7", rows[2].DedupeKey)

	f.clk.Advance(2 * time.Hour)
	_, err = f.svc.RunExpiryWarnings(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.notifications(t, models.PlanNotificationExpiringSoon), 3)
}

func TestSchedulerSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	locker := lock.NewMemoryLocker()
	s := NewScheduler(f.cfg, f.svc, locker, zap.NewNop().Sugar())

	release, ok, err := locker.TryAcquire(context.Background(), lockExpirySweep, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ran := s.runLocked(lockExpirySweep, func(context.Context) error { return nil })
	assert.False(t, ran)

	release()
	ran = s.runLocked(lockExpirySweep, func(context.Context) error { return nil })
	assert.True(t, ran)
}

func TestSchedulerPassesJobLogger(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zap.InfoLevel)
	s := NewScheduler(f.cfg, f.svc, lock.NewMemoryLocker(), zap.New(core).Sugar())

	ran := s.runLocked(lockExpiryWarnings, func(ctx context.Context) error {
		logctx.FromCtx(ctx, zap.NewNop().Sugar()).Infow("job body")
		return nil
	})
	require.True(t, ran)

	entries := logs.FilterMessage("job body").All()
	require.Len(t, entries, 1)
	assert.Equal(t, lockExpiryWarnings, entries[0].ContextMap()["job"])
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	f := newFixture(t)
	f.cfg.Scheduler.ExpirySpec = "every now and then"
	f.cfg.Scheduler.WarningSpec = "@daily"
	s := NewScheduler(f.cfg, f.svc, lock.NewMemoryLocker(), zap.NewNop().Sugar())
	require.Error(t, s.Start())
}

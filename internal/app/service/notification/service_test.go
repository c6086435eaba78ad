package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/internal/platform/db/dbtest"
	"github.com/fatflowers/plankeeper/pkg/clock"
)

func TestDispatchDeduplicates(t *testing.T) {
	gdb := dbtest.New(t)
	svc := New(gdb, clock.NewFake(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)), zap.NewNop().Sugar())
	ctx := context.Background()

	ev := Event{
		Kind:      models.PlanNotificationExpiringSoon,
		UserID:    "u1",
		DedupeKey: "expiring:u1:2025-03-08:7",
		Payload:   map[string]any{"days_left": 7},
	}
	svc.Dispatch(ctx, ev, ev)
	svc.Dispatch(ctx, ev)

	var rows []models.PlanNotification
	require.NoError(t, gdb.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, models.PlanNotificationExpiringSoon, rows[0].Kind)
	assert.Equal(t, json.Number("7"), rows[0].Payload["days_left"])
}

func TestDispatchWithoutDedupeKeyAlwaysQueues(t *testing.T) {
	gdb := dbtest.New(t)
	svc := New(gdb, clock.New(), zap.NewNop().Sugar())
	ctx := context.Background()

	ev := Event{Kind: models.PlanNotificationPlanExpired, UserID: "u1"}
	svc.Dispatch(ctx, ev, ev)

	var count int64
	require.NoError(t, gdb.Model(&models.PlanNotification{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

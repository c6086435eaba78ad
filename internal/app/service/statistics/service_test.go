package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fatflowers/plankeeper/internal/app/service/servicetest"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/internal/platform/db/dbtest"
	"github.com/fatflowers/plankeeper/pkg/tool"
	"github.com/fatflowers/plankeeper/pkg/types"
)

func payment(t *testing.T, db *gorm.DB, user string, plan *models.Plan, provider types.PaymentProvider, status types.PaymentStatus, at time.Time) {
	t.Helper()
	p := &models.Payment{
		ID:            tool.GenerateUUIDV7(),
		UserID:        user,
		PlanID:        plan.ID,
		Provider:      provider,
		GatewayLinkID: tool.GenerateUUIDV7(),
		Amount:        plan.Price,
		Currency:      "USD",
		Status:        status,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	if status == types.PaymentStatusCaptured {
		p.CapturedAt = servicetest.TimePtr(at)
	}
	require.NoError(t, db.Create(p).Error)
}

func TestCompute(t *testing.T) {
	db := dbtest.New(t)
	cat := servicetest.Catalog(t, db)
	free := servicetest.Plan(t, cat, "free")
	pro := servicetest.Plan(t, cat, "pro")
	agency := servicetest.Plan(t, cat, "agency")

	day1 := servicetest.Epoch
	day2 := servicetest.Epoch.Add(24 * time.Hour)

	servicetest.User(t, db, "u1", nil, nil, nil)
	servicetest.User(t, db, "u2", free, nil, nil)
	servicetest.User(t, db, "u3", pro, servicetest.TimePtr(day2), nil)
	servicetest.User(t, db, "u4", agency, servicetest.TimePtr(day2), nil)

	payment(t, db, "u3", pro, types.PaymentProviderRazorpay, types.PaymentStatusCaptured, day1)
	payment(t, db, "u4", agency, types.PaymentProviderStripe, types.PaymentStatusCaptured, day1)
	payment(t, db, "u3", pro, types.PaymentProviderRazorpay, types.PaymentStatusCaptured, day2)
	payment(t, db, "u2", pro, types.PaymentProviderRazorpay, types.PaymentStatusCancelled, day2)

	require.NoError(t, db.Create(&models.PlanChangeLog{
		ID: tool.GenerateUUIDV7(), UserID: "u3", Reason: types.PlanChangeReasonPaymentUpgrade, CreatedAt: day1,
	}).Error)

	svc := New(db, cat)
	res, err := svc.Compute(context.Background(), &Request{Items: []StatisticType{
		StatisticTypeDailyPaymentCount,
		StatisticTypeDailyRevenue,
		StatisticTypeTotalRevenue,
		StatisticTypePlanDistribution,
		StatisticTypeDailyPlanChanges,
		StatisticTypeDailyWebhookFailures,
	}})
	require.NoError(t, err)

	assert.Equal(t, []DataPoint{
		{Date: "2025-03-02", Label: "razorpay", Count: 1},
		{Date: "2025-03-01", Label: "razorpay", Count: 1},
		{Date: "2025-03-01", Label: "stripe", Count: 1},
	}, res.Items[StatisticTypeDailyPaymentCount])

	total := res.Items[StatisticTypeTotalRevenue]
	require.Len(t, total, 1)
	assert.Equal(t, "USD", total[0].Label)
	assert.Equal(t, int64(3), total[0].Count)
	require.NotNil(t, total[0].Amount)
	assert.True(t, decimal.NewFromInt(9+49+9).Equal(*total[0].Amount), total[0].Amount.String())

	daily := res.Items[StatisticTypeDailyRevenue]
	require.Len(t, daily, 2)
	assert.Equal(t, "2025-03-01", daily[1].Date)
	assert.True(t, decimal.NewFromInt(58).Equal(*daily[1].Amount))

	assert.Equal(t, []DataPoint{
		{Label: "agency", Count: 1},
		{Label: "free", Count: 2},
		{Label: "pro", Count: 1},
	}, res.Items[StatisticTypePlanDistribution])

	assert.Equal(t, []DataPoint{
		{Date: "2025-03-01", Label: string(types.PlanChangeReasonPaymentUpgrade), Count: 1},
	}, res.Items[StatisticTypeDailyPlanChanges])

	assert.Empty(t, res.Items[StatisticTypeDailyWebhookFailures])
	assert.Contains(t, res.Items, StatisticTypeDailyWebhookFailures)
}

func TestComputeRange(t *testing.T) {
	db := dbtest.New(t)
	cat := servicetest.Catalog(t, db)
	pro := servicetest.Plan(t, cat, "pro")
	servicetest.User(t, db, "u1", pro, nil, nil)
	payment(t, db, "u1", pro, types.PaymentProviderRazorpay, types.PaymentStatusCaptured, servicetest.Epoch)
	payment(t, db, "u1", pro, types.PaymentProviderRazorpay, types.PaymentStatusCaptured, servicetest.Epoch.Add(48*time.Hour))

	since := servicetest.Epoch.Add(24 * time.Hour)
	res, err := New(db, cat).Compute(context.Background(), &Request{
		Items: []StatisticType{StatisticTypeDailyPaymentCount},
		Since: &since,
	})
	require.NoError(t, err)
	assert.Equal(t, []DataPoint{{Date: "2025-03-03", Label: "razorpay", Count: 1}}, res.Items[StatisticTypeDailyPaymentCount])
}

func TestComputeUnknown(t *testing.T) {
	db := dbtest.New(t)
	cat := servicetest.Catalog(t, db)
	_, err := New(db, cat).Compute(context.Background(), &Request{Items: []StatisticType{"gmv_by_moon_phase"}})
	assert.ErrorIs(t, err, ErrUnknownStatistic)
}

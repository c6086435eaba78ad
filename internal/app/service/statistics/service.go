package statistics

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fatflowers/plankeeper/internal/app/service/entitlement"
	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/types"
)

type StatisticType string

const (
	// Captured payments per day, labelled by provider.
	StatisticTypeDailyPaymentCount StatisticType = "daily_payment_count"
	// Captured revenue per day, labelled by currency.
	StatisticTypeDailyRevenue StatisticType = "daily_revenue"
	StatisticTypeTotalRevenue StatisticType = "total_revenue"
	// Users per stored plan, labelled by plan slug.
	StatisticTypePlanDistribution StatisticType = "plan_distribution"
	// Plan change log rows per day, labelled by reason.
	StatisticTypeDailyPlanChanges StatisticType = "daily_plan_changes"
	// Failed webhook deliveries per day, labelled by event class.
	StatisticTypeDailyWebhookFailures StatisticType = "daily_webhook_failures"
)

var knownTypes = []StatisticType{
	StatisticTypeDailyPaymentCount,
	StatisticTypeDailyRevenue,
	StatisticTypeTotalRevenue,
	StatisticTypePlanDistribution,
	StatisticTypeDailyPlanChanges,
	StatisticTypeDailyWebhookFailures,
}

var ErrUnknownStatistic = errors.New("unknown statistic")

type Request struct {
	Items []StatisticType `json:"items" binding:"required"`
	// Since and Until bound the date column of daily statistics, inclusive
	// and exclusive respectively.
	Since *time.Time `json:"since"`
	Until *time.Time `json:"until"`
}

type DataPoint struct {
	Date   string           `json:"date,omitempty"`
	Label  string           `json:"label,omitempty"`
	Count  int64            `json:"count"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type Response struct {
	Items map[StatisticType][]DataPoint `json:"items"`
}

type Service struct {
	db      *gorm.DB
	catalog entitlement.PlanLookup
}

func New(db *gorm.DB, catalog *plancatalog.Service) *Service {
	return &Service{db: db, catalog: catalog}
}

// dayExpr renders col as YYYY-MM-DD for the connected dialect.
func (s *Service) dayExpr(col string) string {
	if s.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", col)
	}
	return fmt.Sprintf("substr(%s, 1, 10)", col)
}

func between(q *gorm.DB, col string, req *Request) *gorm.DB {
	if req.Since != nil {
		q = q.Where(col+" >= ?", req.Since.UTC())
	}
	if req.Until != nil {
		q = q.Where(col+" < ?", req.Until.UTC())
	}
	return q
}

func (s *Service) dailyPaymentCount(ctx context.Context, req *Request) ([]DataPoint, error) {
	var res []DataPoint
	day := s.dayExpr("captured_at")
	q := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select(day+" AS date, provider AS label, count(*) AS count").
		Where("status = ?", types.PaymentStatusCaptured)
	err := between(q, "captured_at", req).Group(day).Group("provider").Order("date DESC, label").Find(&res).Error
	return res, err
}

func (s *Service) dailyRevenue(ctx context.Context, req *Request) ([]DataPoint, error) {
	var res []DataPoint
	day := s.dayExpr("captured_at")
	q := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select(day+" AS date, currency AS label, count(*) AS count, sum(amount) AS amount").
		Where("status = ?", types.PaymentStatusCaptured)
	err := between(q, "captured_at", req).Group(day).Group("currency").Order("date DESC, label").Find(&res).Error
	return res, err
}

func (s *Service) totalRevenue(ctx context.Context, _ *Request) ([]DataPoint, error) {
	var res []DataPoint
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("currency AS label, count(*) AS count, sum(amount) AS amount").
		Where("status = ?", types.PaymentStatusCaptured).
		Group("currency").Order("label").Find(&res).Error
	return res, err
}

func (s *Service) planDistribution(ctx context.Context, _ *Request) ([]DataPoint, error) {
	var rows []struct {
		PlanID *string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("plan_id, count(*) AS count").Group("plan_id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	free := s.catalog.Free()
	counts := map[string]int64{}
	for _, r := range rows {
		slug := free.Slug
		if r.PlanID != nil {
			if p, ok := s.catalog.Get(*r.PlanID); ok {
				slug = p.Slug
			} else {
				slug = *r.PlanID
			}
		}
		counts[slug] += r.Count
	}
	res := lo.MapToSlice(counts, func(slug string, n int64) DataPoint { return DataPoint{Label: slug, Count: n} })
	slices.SortFunc(res, func(a, b DataPoint) int { return strings.Compare(a.Label, b.Label) })
	return res, nil
}

func (s *Service) dailyPlanChanges(ctx context.Context, req *Request) ([]DataPoint, error) {
	var res []DataPoint
	day := s.dayExpr("created_at")
	q := s.db.WithContext(ctx).Model(&models.PlanChangeLog{}).
		Select(day + " AS date, reason AS label, count(*) AS count")
	err := between(q, "created_at", req).Group(day).Group("reason").Order("date DESC, label").Find(&res).Error
	return res, err
}

func (s *Service) dailyWebhookFailures(ctx context.Context, req *Request) ([]DataPoint, error) {
	var res []DataPoint
	day := s.dayExpr("created_at")
	q := s.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Select(day+" AS date, event_class AS label, count(*) AS count").
		Where("status = ?", types.WebhookLogStatusFailed)
	err := between(q, "created_at", req).Group(day).Group("event_class").Order("date DESC, label").Find(&res).Error
	return res, err
}

func (s *Service) compute(ctx context.Context, req *Request, item StatisticType) ([]DataPoint, error) {
	switch item {
	case StatisticTypeDailyPaymentCount:
		return s.dailyPaymentCount(ctx, req)
	case StatisticTypeDailyRevenue:
		return s.dailyRevenue(ctx, req)
	case StatisticTypeTotalRevenue:
		return s.totalRevenue(ctx, req)
	case StatisticTypePlanDistribution:
		return s.planDistribution(ctx, req)
	case StatisticTypeDailyPlanChanges:
		return s.dailyPlanChanges(ctx, req)
	case StatisticTypeDailyWebhookFailures:
		return s.dailyWebhookFailures(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatistic, item)
	}
}

// Compute evaluates the requested statistics concurrently. Any failure
// fails the whole request.
func (s *Service) Compute(ctx context.Context, req *Request) (*Response, error) {
	items := lo.Uniq(req.Items)
	if unknown, found := lo.Find(items, func(t StatisticType) bool { return !lo.Contains(knownTypes, t) }); found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatistic, unknown)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(items))
	resChan := make(chan lo.Entry[StatisticType, []DataPoint], len(items))
	for _, item := range items {
		wg.Add(1)
		go func(item StatisticType) {
			defer wg.Done()
			res, err := s.compute(ctx, req, item)
			if err != nil {
				errChan <- fmt.Errorf("%s: %w", item, err)
				return
			}
			resChan <- lo.Entry[StatisticType, []DataPoint]{Key: item, Value: lo.Ternary(res == nil, []DataPoint{}, res)}
		}(item)
	}
	wg.Wait()
	close(errChan)
	close(resChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	out := &Response{Items: make(map[StatisticType][]DataPoint, len(items))}
	for e := range resChan {
		out.Items[e.Key] = e.Value
	}
	return out, nil
}

var Module = fx.Options(
	fx.Provide(New),
)

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/internal/app/service/statistics"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/response"
	"github.com/fatflowers/plankeeper/pkg/types"
)

type PaymentScanner interface {
	Scan(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[*models.Payment], error)
}

type WebhookLogScanner interface {
	Scan(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[*models.WebhookLog], error)
}

type StatisticsService interface {
	Compute(ctx context.Context, req *statistics.Request) (*statistics.Response, error)
}

type PlanUpserter interface {
	Upsert(ctx context.Context, seed *types.PlanSeed) (*models.Plan, error)
}

// @Summary      List payments (Admin)
// @Description  Retrieves a paginated and filterable list of payment attempts.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters and pagination"
// @Success      200  {object}  handlers.RespPaymentList
// @Router       /api/v1/admin/payments/list [post]
func ApiAdminListPayments(svc PaymentScanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, errorResponse(err))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List webhook logs (Admin)
// @Description  Retrieves a paginated and filterable list of received gateway webhooks.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters and pagination"
// @Success      200  {object}  handlers.RespWebhookLogList
// @Router       /api/v1/admin/webhook_logs/list [post]
func ApiAdminListWebhookLogs(svc WebhookLogScanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, errorResponse(err))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Upsert plan (Admin)
// @Description  Creates or updates a plan by slug. All instances reload their catalog.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.PlanSeed true "Plan"
// @Success      200  {object}  handlers.RespPlan
// @Router       /api/v1/admin/plans/upsert [post]
func ApiAdminUpsertPlan(svc PlanUpserter, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var seed types.PlanSeed
		if err := c.ShouldBindJSON(&seed); err != nil {
			c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		plan, err := svc.Upsert(c.Request.Context(), &seed)
		if err != nil {
			logctx.FromGin(c, log).Warnw("plan upsert failed", "slug", seed.Slug, "err", err)
			c.JSON(http.StatusOK, errorResponse(err))
			return
		}
		logctx.FromGin(c, log).Infow("plan upserted", "slug", plan.Slug, "plan_id", plan.ID)
		c.JSON(http.StatusOK, response.OKT(toPlanItem(plan)))
	}
}

// @Summary      Billing statistics (Admin)
// @Description  Computes the requested daily and total statistics over payments, plans and webhooks.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.Request true "Statistic items and date range"
// @Success      200  {object}  handlers.RespStatistics
// @Router       /api/v1/admin/statistics [post]
func ApiAdminStatistics(svc StatisticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.Compute(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, errorResponse(err))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type AdminServices struct {
	Payments PaymentScanner
	Webhooks WebhookLogScanner
	Plans    PlanUpserter
	Stats    StatisticsService
}

func RegisterAdminRoutes(r gin.IRouter, svc AdminServices, log *zap.SugaredLogger) {
	r.POST("/payments/list", ApiAdminListPayments(svc.Payments))
	r.POST("/webhook_logs/list", ApiAdminListWebhookLogs(svc.Webhooks))
	r.POST("/plans/upsert", ApiAdminUpsertPlan(svc.Plans, log))
	r.POST("/statistics", ApiAdminStatistics(svc.Stats))
}

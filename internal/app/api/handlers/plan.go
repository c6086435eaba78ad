package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	mw "github.com/fatflowers/plankeeper/internal/app/api/middleware"
	"github.com/fatflowers/plankeeper/internal/app/service/entitlement"
	"github.com/fatflowers/plankeeper/internal/app/service/planstate"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/response"
	"github.com/fatflowers/plankeeper/pkg/types"
)

// PlanService is the plan state machine as seen by the HTTP layer.
type PlanService interface {
	EnsureUser(ctx context.Context, id, email string) error
	Status(ctx context.Context, userID string) (*planstate.State, error)
	SelectPlan(ctx context.Context, userID, slug string, provider types.PaymentProvider) (*planstate.Selection, error)
	DowngradeToFree(ctx context.Context, userID string) (*planstate.State, error)
	ConfirmClientPayment(ctx context.Context, userID string, provider types.PaymentProvider, req *gateway.ClientConfirmation) (*planstate.State, error)
}

type PlanLister interface {
	List() []*models.Plan
}

type EntitlementChecker interface {
	Check(ctx context.Context, userID string, key types.FeatureKey, req entitlement.Request) (*entitlement.CheckResult, error)
}

type PlanItem struct {
	ID       string           `json:"id"`
	Slug     string           `json:"slug"`
	Name     string           `json:"name"`
	Price    decimal.Decimal  `json:"price"`
	Currency string           `json:"currency"`
	IsActive bool             `json:"is_active"`
	Features types.FeatureMap `json:"features"`
}

func toPlanItem(p *models.Plan) *PlanItem {
	return &PlanItem{
		ID:       p.ID,
		Slug:     p.Slug,
		Name:     p.Name,
		Price:    p.Price,
		Currency: p.Currency,
		IsActive: p.IsActive,
		Features: p.FeatureMap(),
	}
}

// @Summary      List plans
// @Description  Returns the active plans ordered by price.
// @Tags         Plan
// @Produce      json
// @Success      200  {object}  handlers.RespPlanList
// @Router       /api/v1/plans [get]
func ApiListPlans(plans PlanLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(lo.Map(plans.List(), func(p *models.Plan, _ int) *PlanItem { return toPlanItem(p) })))
	}
}

// @Summary      Plan status
// @Description  Returns the caller's current plan, effective plan, expiry and queued plan.
// @Tags         Plan
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespPlanState
// @Router       /api/v1/plan/status [get]
func ApiPlanStatus(svc PlanService) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svc.Status(c.Request.Context(), mw.UserID(c))
		if err != nil {
			c.JSON(http.StatusOK, errorResponse(err))
			return
		}
		c.JSON(http.StatusOK, response.OKT(st))
	}
}

type SelectPlanRequest struct {
	Plan     string                `json:"plan" binding:"required"`
	Provider types.PaymentProvider `json:"provider"`
}

// @Summary      Select plan
// @Description  Starts a purchase of a paid plan and returns the gateway redirect URL. Selecting the free plan downgrades directly.
// @Tags         Plan
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body handlers.SelectPlanRequest true "Plan selection"
// @Success      200  {object}  handlers.RespSelection
// @Router       /api/v1/plan/select [post]
func ApiSelectPlan(svc PlanService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SelectPlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		sel, err := svc.SelectPlan(c.Request.Context(), mw.UserID(c), req.Plan, req.Provider)
		if err != nil {
			logctx.FromGin(c, log).Warnw("select plan failed", "plan", req.Plan, "err", err)
			c.JSON(http.StatusOK, errorResponse(err))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sel))
	}
}

// @Summary      Downgrade to free
// @Description  Cancels open payment attempts. A running paid period stays active until it ends; otherwise the free plan applies immediately.
// @Tags         Plan
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespPlanState
// @Router       /api/v1/plan/downgrade_to_free [post]
func ApiDowngradeToFree(svc PlanService) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svc.DowngradeToFree(c.Request.Context(), mw.UserID(c))
		if err != nil {
			c.JSON(http.StatusOK, errorResponse(err))
			return
		}
		c.JSON(http.StatusOK, response.OKT(st))
	}
}

// @Summary      Check entitlement
// @Description  Evaluates one feature for the caller's effective plan. Pass count for numeric limits (including the item being created) or item for allowed sets.
// @Tags         Plan
// @Produce      json
// @Security     BearerAuth
// @Param        feature query string true  "Feature key"
// @Param        count   query int    false "Resource count including the new one"
// @Param        item    query string false "Item name"
// @Success      200  {object}  handlers.RespEntitlement
// @Router       /api/v1/entitlements/check [get]
func ApiCheckEntitlement(svc EntitlementChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := types.ParseFeatureKey(c.Query("feature"))
		if !ok {
			c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, "unknown feature"))
			return
		}
		req := entitlement.Flag()
		switch {
		case c.Query("count") != "":
			n, err := strconv.ParseInt(c.Query("count"), 10, 64)
			if err != nil || n < 0 {
				c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, "count must be a non-negative integer"))
				return
			}
			req = entitlement.Count(n)
		case c.Query("item") != "":
			req = entitlement.Item(c.Query("item"))
		}
		res, err := svc.Check(c.Request.Context(), mw.UserID(c), key, req)
		if err != nil {
			c.JSON(http.StatusOK, errorResponse(err))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// ensureUser creates the caller's account row on first use.
func ensureUser(svc PlanService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := ""
		if claims := mw.ClaimsFrom(c); claims != nil {
			email = claims.Email
		}
		if err := svc.EnsureUser(c.Request.Context(), mw.UserID(c), email); err != nil {
			logctx.FromGin(c, log).Errorw("ensure user failed", "err", err)
			c.AbortWithStatusJSON(http.StatusOK, errorResponse(err))
			return
		}
		c.Next()
	}
}

func RegisterPublicPlanRoutes(r gin.IRouter, plans PlanLister) {
	r.GET("/plans", ApiListPlans(plans))
}

func RegisterUserRoutes(r gin.IRouter, svc PlanService, checker EntitlementChecker, log *zap.SugaredLogger) {
	r.Use(ensureUser(svc, log))
	r.GET("/plan/status", ApiPlanStatus(svc))
	r.POST("/plan/select", ApiSelectPlan(svc, log))
	r.POST("/plan/downgrade_to_free", ApiDowngradeToFree(svc))
	r.POST("/payment/verify", ApiVerifyPayment(svc, log))
	r.GET("/entitlements/check", ApiCheckEntitlement(checker))
}

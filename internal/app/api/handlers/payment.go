package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/plankeeper/internal/app/api/middleware"
	"github.com/fatflowers/plankeeper/internal/app/service/webhook"
	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/response"
	"github.com/fatflowers/plankeeper/pkg/types"
)

const maxWebhookBody = 1 << 20

type WebhookHandler interface {
	Handle(ctx context.Context, provider types.PaymentProvider, header http.Header, body []byte) (*webhook.Result, error)
}

type VerifyPaymentRequest struct {
	Provider types.PaymentProvider `json:"provider"`
	gateway.ClientConfirmation
}

// @Summary      Verify payment
// @Description  Confirms a payment the browser reports as completed. The gateway signature is checked before the plan changes.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body handlers.VerifyPaymentRequest true "Client confirmation"
// @Success      200  {object}  handlers.RespPlanState
// @Router       /api/v1/payment/verify [post]
func ApiVerifyPayment(svc PlanService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		st, err := svc.ConfirmClientPayment(c.Request.Context(), mw.UserID(c), req.Provider, &req.ClientConfirmation)
		if err != nil {
			logctx.FromGin(c, log).Warnw("verify payment failed", "link_id", req.LinkID, "err", err)
			c.JSON(http.StatusOK, errorResponse(err))
			return
		}
		c.JSON(http.StatusOK, response.OKT(st))
	}
}

// webhookStatus maps a webhook outcome to the HTTP status the gateway sees.
// Anything but 2xx makes the gateway retry.
func webhookStatus(err error) (int, response.APIResponseCode) {
	switch {
	case err == nil:
		return http.StatusOK, response.APIResponseCodeOK
	case errors.Is(err, gateway.ErrInvalidSignature), errors.Is(err, gateway.ErrUnparseable), errors.Is(err, gateway.ErrUnknownProvider):
		return http.StatusBadRequest, response.APIResponseCodeBadRequest
	case errors.Is(err, webhook.ErrEventInFlight), errors.Is(err, gateway.ErrUnavailable):
		return http.StatusServiceUnavailable, response.APIResponseCodeUnavailable
	default:
		return http.StatusInternalServerError, response.APIResponseCodeError
	}
}

// @Summary      Payment webhook
// @Description  Receives gateway webhooks. The raw body is verified against the provider signature header.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        provider path string true "razorpay or stripe"
// @Success      200  {object}  handlers.RespOK
// @Failure      400  {object}  handlers.RespOK
// @Failure      503  {object}  handlers.RespOK
// @Router       /api/v1/payment/webhook/{provider} [post]
func ApiPaymentWebhook(h WebhookHandler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := types.PaymentProvider(c.Param("provider"))
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, "unreadable body"))
			return
		}

		res, err := h.Handle(c.Request.Context(), provider, c.Request.Header, body)
		status, code := webhookStatus(err)
		if err != nil {
			logctx.FromGin(c, log).Errorw("webhook_handle_error", "provider", provider, "status", status, "err", err)
			c.JSON(status, response.ErrorMsg(code, ""))
			return
		}
		logctx.FromGin(c, log).Debugw("webhook_handled", "provider", provider, "outcome", res.Outcome, "external_id", res.ExternalID)
		c.JSON(status, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h WebhookHandler, log *zap.SugaredLogger) {
	r.POST("/payment/webhook/:provider", ApiPaymentWebhook(h, log))
}

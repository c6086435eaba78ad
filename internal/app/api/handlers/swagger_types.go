package handlers

import (
	"github.com/fatflowers/plankeeper/internal/app/service/entitlement"
	"github.com/fatflowers/plankeeper/internal/app/service/planstate"
	"github.com/fatflowers/plankeeper/internal/app/service/statistics"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespPlanList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []PlanItem               `json:"data"`
}

type RespPlan struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PlanItem                 `json:"data"`
}

type RespPlanState struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    planstate.State          `json:"data"`
}

type RespSelection struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    planstate.Selection      `json:"data"`
}

type RespEntitlement struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    entitlement.CheckResult  `json:"data"`
}

// PaymentPage documents types.ScanResponse[*models.Payment].
type PaymentPage struct {
	Items []models.Payment `json:"items"`
	Total int64            `json:"total"`
}

type RespPaymentList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PaymentPage              `json:"data"`
}

// WebhookLogPage documents types.ScanResponse[*models.WebhookLog].
type WebhookLogPage struct {
	Items []models.WebhookLog `json:"items"`
	Total int64               `json:"total"`
}

type RespWebhookLogList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    WebhookLogPage           `json:"data"`
}

type RespStatistics struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Response      `json:"data"`
}

package handlers

import (
	"errors"

	"github.com/fatflowers/plankeeper/internal/app/service/entitlement"
	"github.com/fatflowers/plankeeper/internal/app/service/ledger"
	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/app/service/planstate"
	"github.com/fatflowers/plankeeper/internal/app/service/statistics"
	"github.com/fatflowers/plankeeper/internal/platform/db"
	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/response"
)

// codeFor maps service errors to envelope codes.
func codeFor(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, plancatalog.ErrPlanNotFound),
		errors.Is(err, ledger.ErrPaymentNotFound),
		errors.Is(err, planstate.ErrUserNotFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, ledger.ErrPlanNotPayable),
		errors.Is(err, ledger.ErrRenewalWindowClosed),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, plancatalog.ErrCatalogInvalid),
		errors.Is(err, entitlement.ErrUnknownFeature),
		errors.Is(err, gateway.ErrUnknownProvider),
		errors.Is(err, gateway.ErrInvalidSignature),
		errors.Is(err, gateway.ErrNotPaid),
		errors.Is(err, statistics.ErrUnknownStatistic),
		errors.Is(err, db.ErrInvalidScan):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, gateway.ErrUnavailable):
		return response.APIResponseCodeUnavailable
	default:
		return response.APIResponseCodeError
	}
}

// errorResponse hides internal error text behind the generic message.
func errorResponse(err error) *response.APIResponse[any] {
	code := codeFor(err)
	if code == response.APIResponseCodeError {
		return response.ErrorMsg(code, "")
	}
	return response.ErrorMsg(code, err.Error())
}

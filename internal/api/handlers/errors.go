package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

// statusFor maps the domain taxonomy onto HTTP status codes. This is the
// only place the mapping exists.
func statusFor(err error) int {
	switch {
	case domainerrors.IsInvalidAccount(err):
		return http.StatusNotFound
	case domainerrors.IsAccountSuspended(err):
		return http.StatusForbidden
	case domainerrors.IsDuplicateTransaction(err),
		domainerrors.IsNotReversible(err),
		domainerrors.IsConcurrentModification(err):
		return http.StatusConflict
	case domainerrors.IsRateLimit(err):
		return http.StatusTooManyRequests
	case domainerrors.IsInvalidAmount(err),
		domainerrors.IsNegativeResult(err),
		domainerrors.IsCurrencyMismatch(err),
		domainerrors.IsInsufficientFunds(err),
		domainerrors.IsInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the standard error body for a domain error.
// Internal failures are masked; everything else surfaces its code,
// message, and details verbatim.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)

	body := entities.ErrorResponse{
		Code:    domainerrors.GetCode(err),
		Message: err.Error(),
		Details: domainerrors.GetDetails(err),
	}
	if status == http.StatusInternalServerError {
		body = entities.ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "internal server error",
		}
	}

	c.AbortWithStatusJSON(status, body)
}

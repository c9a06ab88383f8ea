package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	accountsvc "github.com/ledger-service/ledger_service/internal/domain/services/account"
	idempotencysvc "github.com/ledger-service/ledger_service/internal/domain/services/idempotency"
	paymentsvc "github.com/ledger-service/ledger_service/internal/domain/services/payment"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

// TransferHandler serves POST /transfers.
type TransferHandler struct {
	payments *paymentsvc.Service
	accounts *accountsvc.Service
	logger   *logger.Logger
}

// NewTransferHandler creates the transfer handler.
func NewTransferHandler(payments *paymentsvc.Service, accounts *accountsvc.Service, log *logger.Logger) *TransferHandler {
	return &TransferHandler{payments: payments, accounts: accounts, logger: log}
}

type transferRequest struct {
	FromAccountID  string          `json:"from_account_id" binding:"required"`
	ToAccountID    string          `json:"to_account_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Currency       string          `json:"currency" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
	Description    *string         `json:"description"`
	ReferenceID    *string         `json:"reference_id"`
}

// Create handles POST /transfers.
func (h *TransferHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		var req transferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, domainerrors.ValidationError("body", err.Error()))
			return
		}

		fromID, err := uuid.Parse(req.FromAccountID)
		if err != nil {
			respondError(c, domainerrors.ValidationError("from_account_id", "must be a valid UUID"))
			return
		}
		toID, err := uuid.Parse(req.ToAccountID)
		if err != nil {
			respondError(c, domainerrors.ValidationError("to_account_id", "must be a valid UUID"))
			return
		}

		amount, err := entities.NewMoney(req.Amount, req.Currency)
		if err != nil {
			respondError(c, err)
			return
		}

		// Callers may only move funds out of their own accounts.
		source, err := h.accounts.Get(c.Request.Context(), fromID)
		if err != nil {
			respondError(c, err)
			return
		}
		if source.UserID != userID {
			respondError(c, domainerrors.InvalidAccountError(fromID))
			return
		}

		// Without a caller-supplied key every request is a distinct
		// transfer.
		if req.IdempotencyKey == "" {
			req.IdempotencyKey = uuid.NewString()
		}

		requestHash, err := idempotencysvc.HashRequest(map[string]interface{}{
			"from_account_id": req.FromAccountID,
			"to_account_id":   req.ToAccountID,
			"amount":          req.Amount.String(),
			"currency":        req.Currency,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		tx, err := h.payments.Transfer(c.Request.Context(), paymentsvc.TransferParams{
			FromAccountID:  fromID,
			ToAccountID:    toID,
			Amount:         amount,
			IdempotencyKey: req.IdempotencyKey,
			ReferenceID:    req.ReferenceID,
			Description:    req.Description,
			RequestHash:    requestHash,
			Meta:           auditMeta(c),
		})
		if err != nil {
			if domainerrors.IsDuplicateTransaction(err) {
				metrics.TransfersTotal.WithLabelValues("duplicate").Inc()
			} else {
				metrics.TransfersTotal.WithLabelValues("rejected").Inc()
			}
			respondError(c, err)
			return
		}

		metrics.TransfersTotal.WithLabelValues("completed").Inc()
		c.JSON(http.StatusCreated, tx)
	}
}

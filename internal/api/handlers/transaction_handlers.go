package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	accountsvc "github.com/ledger-service/ledger_service/internal/domain/services/account"
	paymentsvc "github.com/ledger-service/ledger_service/internal/domain/services/payment"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// TransactionHandler serves transaction reads and reversals.
type TransactionHandler struct {
	payments *paymentsvc.Service
	accounts *accountsvc.Service
	logger   *logger.Logger
}

// NewTransactionHandler creates the transaction handler.
func NewTransactionHandler(payments *paymentsvc.Service, accounts *accountsvc.Service, log *logger.Logger) *TransactionHandler {
	return &TransactionHandler{payments: payments, accounts: accounts, logger: log}
}

// ownsAccount reports whether the account exists and belongs to the user.
func (h *TransactionHandler) ownsAccount(c *gin.Context, accountID *uuid.UUID, userID uuid.UUID) bool {
	if accountID == nil {
		return false
	}
	account, err := h.accounts.Get(c.Request.Context(), *accountID)
	if err != nil {
		return false
	}
	return account.UserID == userID
}

// Get handles GET /transactions/:id.
func (h *TransactionHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		transactionID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		tx, entries, err := h.payments.GetTransaction(c.Request.Context(), transactionID)
		if err != nil {
			respondError(c, err)
			return
		}

		// A transaction on someone else's accounts reads as missing.
		if !h.ownsAccount(c, tx.FromAccountID, userID) && !h.ownsAccount(c, tx.ToAccountID, userID) {
			respondError(c, domainerrors.TransactionNotFoundError(transactionID))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"transaction": tx,
			"entries":     entries,
		})
	}
}

// History handles GET /transactions/account/:id/history.
func (h *TransactionHandler) History() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		accountID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		account, err := h.accounts.Get(c.Request.Context(), accountID)
		if err != nil {
			respondError(c, err)
			return
		}
		if account.UserID != userID {
			respondError(c, domainerrors.InvalidAccountError(accountID))
			return
		}

		filter, err := historyFilter(c)
		if err != nil {
			respondError(c, err)
			return
		}

		page, err := h.payments.GetAccountTransactions(c.Request.Context(), accountID, filter)
		if err != nil {
			respondError(c, err)
			return
		}

		// Keep the JSON array non-null on empty pages.
		transactions := page.Transactions
		if transactions == nil {
			transactions = make([]*entities.Transaction, 0)
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": transactions,
			"total_count":  page.TotalCount,
			"limit":        page.Limit,
			"offset":       page.Offset,
		})
	}
}

func historyFilter(c *gin.Context) (repositories.TransactionFilter, error) {
	var filter repositories.TransactionFilter

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, domainerrors.ValidationError("limit", "must be an integer")
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return filter, domainerrors.ValidationError("offset", "must be an integer")
		}
		filter.Offset = offset
	}
	if raw := c.Query("start_date"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, domainerrors.ValidationError("start_date", "must be RFC 3339")
		}
		filter.StartDate = &start
	}
	if raw := c.Query("end_date"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, domainerrors.ValidationError("end_date", "must be RFC 3339")
		}
		filter.EndDate = &end
	}
	return filter, nil
}

type reverseRequest struct {
	Reason         string `json:"reason" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Reverse handles POST /transactions/:id/reverse.
func (h *TransactionHandler) Reverse() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		transactionID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req reverseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, domainerrors.ValidationError("reason", "reason is required"))
			return
		}

		// Only the owner of the debited account may unwind a transfer,
		// mirroring the transfer-source rule. Foreign transactions read
		// as missing.
		original, _, err := h.payments.GetTransaction(c.Request.Context(), transactionID)
		if err != nil {
			respondError(c, err)
			return
		}
		if !h.ownsAccount(c, original.FromAccountID, userID) {
			respondError(c, domainerrors.TransactionNotFoundError(transactionID))
			return
		}

		reversal, err := h.payments.Reverse(c.Request.Context(), transactionID, req.Reason, req.IdempotencyKey, auditMeta(c))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, reversal)
	}
}

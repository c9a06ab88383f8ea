package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	accountsvc "github.com/ledger-service/ledger_service/internal/domain/services/account"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// AccountHandler serves the account endpoints.
type AccountHandler struct {
	accounts *accountsvc.Service
	logger   *logger.Logger
}

// NewAccountHandler creates the account handler.
func NewAccountHandler(accounts *accountsvc.Service, log *logger.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: log}
}

type createAccountRequest struct {
	Currency       string           `json:"currency" binding:"required"`
	InitialBalance *decimal.Decimal `json:"initial_balance"`
}

type accountResponse struct {
	AccountID string          `json:"account_id"`
	UserID    string          `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func toAccountResponse(account *entities.Account) accountResponse {
	return accountResponse{
		AccountID: account.ID.String(),
		UserID:    account.UserID.String(),
		Currency:  account.Currency,
		Balance:   account.Balance,
		Status:    string(account.Status),
		CreatedAt: account.CreatedAt,
	}
}

// Create handles POST /accounts.
func (h *AccountHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		var req createAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, domainerrors.ValidationError("body", err.Error()))
			return
		}

		opening := decimal.Zero
		if req.InitialBalance != nil {
			opening = *req.InitialBalance
		}
		money, err := entities.NewMoney(opening, req.Currency)
		if err != nil {
			respondError(c, err)
			return
		}

		account, err := h.accounts.Create(c.Request.Context(), userID, money, auditMeta(c))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, toAccountResponse(account))
	}
}

// Get handles GET /accounts/:id.
func (h *AccountHandler) Get() gin.HandlerFunc {
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
		// Foreign accounts are indistinguishable from missing ones.
		if account.UserID != userID {
			respondError(c, domainerrors.InvalidAccountError(accountID))
			return
		}

		c.JSON(http.StatusOK, toAccountResponse(account))
	}
}

// GetBalance handles GET /accounts/:id/balance.
func (h *AccountHandler) GetBalance() gin.HandlerFunc {
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

		balance, err := h.accounts.GetBalance(c.Request.Context(), accountID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"account_id": balance.AccountID.String(),
			"balance":    balance.Balance.Amount,
			"currency":   balance.Balance.Currency,
			"status":     string(balance.Status),
			"version":    balance.Version,
			"as_of":      balance.AsOf,
		})
	}
}

// List handles GET /accounts?currency=.
func (h *AccountHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		accounts, err := h.accounts.ListByUser(c.Request.Context(), userID, c.Query("currency"))
		if err != nil {
			respondError(c, err)
			return
		}

		out := make([]accountResponse, 0, len(accounts))
		for _, account := range accounts {
			out = append(out, toAccountResponse(account))
		}
		c.JSON(http.StatusOK, gin.H{"accounts": out})
	}
}

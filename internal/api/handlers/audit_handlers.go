package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// AuditHandler serves the audit trail listing.
type AuditHandler struct {
	store  repositories.LedgerStore
	logger *logger.Logger
}

// NewAuditHandler creates the audit handler.
func NewAuditHandler(store repositories.LedgerStore, log *logger.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: log}
}

// List handles GET /audit-logs.
func (h *AuditHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireUserID(c); !ok {
			return
		}

		filter, err := auditFilter(c)
		if err != nil {
			respondError(c, err)
			return
		}

		logs, err := h.store.ListAuditLogs(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
	}
}

func auditFilter(c *gin.Context) (repositories.AuditLogFilter, error) {
	var filter repositories.AuditLogFilter

	if raw := c.Query("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, domainerrors.ValidationError("account_id", "must be a valid UUID")
		}
		filter.AccountID = &id
	}
	if raw := c.Query("transaction_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, domainerrors.ValidationError("transaction_id", "must be a valid UUID")
		}
		filter.TransactionID = &id
	}
	if raw := c.Query("action"); raw != "" {
		filter.Action = &raw
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
	return filter, nil
}

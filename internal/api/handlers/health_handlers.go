package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/internal/infrastructure/database"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db     *sqlx.DB
	cache  cache.Cache
	logger *logger.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(db *sqlx.DB, c cache.Cache, log *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, cache: c, logger: log}
}

// Live handles GET /health. It reports process liveness only.
func (h *HealthHandler) Live() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Ready handles GET /health/ready. Readiness requires the database; the
// cache degrades gracefully so its state is reported but not gating.
func (h *HealthHandler) Ready() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{"database": "ok", "cache": "ok"}
		status := http.StatusOK

		if err := database.HealthCheck(h.db); err != nil {
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
			h.logger.Error("readiness check failed", "component", "database", "error", err)
		}
		if err := h.cache.Ping(c.Request.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		c.JSON(status, gin.H{"status": checks})
	}
}

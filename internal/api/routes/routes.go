// Package routes wires the middleware chain and handlers onto the gin
// engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/ledger-service/ledger_service/internal/api/handlers"
	"github.com/ledger-service/ledger_service/internal/api/middleware"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	accountsvc "github.com/ledger-service/ledger_service/internal/domain/services/account"
	paymentsvc "github.com/ledger-service/ledger_service/internal/domain/services/payment"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/internal/infrastructure/config"
	"github.com/ledger-service/ledger_service/pkg/auth"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
	"github.com/ledger-service/ledger_service/pkg/ratelimit"
)

// Dependencies carries everything the router needs.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *sqlx.DB
	Cache       cache.Cache
	Store       repositories.LedgerStore
	Accounts    *accountsvc.Service
	Payments    *paymentsvc.Service
	AuthManager *auth.Manager
	RateLimiter ratelimit.Allower
}

// Setup builds the gin engine with the full middleware chain and all
// routes.
func Setup(deps Dependencies) *gin.Engine {
	if deps.Config.Environment == "production" || deps.Config.Environment == "staging" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(deps.Logger),
		middleware.Logger(deps.Logger),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
		middleware.CORS(deps.Config.Server.AllowedOrigins),
	)

	health := handlers.NewHealthHandler(deps.DB, deps.Cache, deps.Logger)
	router.GET("/health", health.Live())
	router.GET("/health/ready", health.Ready())
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	accountHandler := handlers.NewAccountHandler(deps.Accounts, deps.Logger)
	transferHandler := handlers.NewTransferHandler(deps.Payments, deps.Accounts, deps.Logger)
	transactionHandler := handlers.NewTransactionHandler(deps.Payments, deps.Accounts, deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.Store, deps.Logger)

	// Without shared limiter storage, fall back to an in-process bucket.
	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = ratelimit.NewLocalLimiter(deps.Config.Server.RateLimitPerMin)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(deps.AuthManager))
	v1.Use(middleware.RateLimit(limiter))
	{
		v1.POST("/accounts", accountHandler.Create())
		v1.GET("/accounts", accountHandler.List())
		v1.GET("/accounts/:id", accountHandler.Get())
		v1.GET("/accounts/:id/balance", accountHandler.GetBalance())

		v1.POST("/transfers", transferHandler.Create())

		v1.GET("/transactions/:id", transactionHandler.Get())
		v1.POST("/transactions/:id/reverse", transactionHandler.Reverse())
		v1.GET("/transactions/account/:id/history", transactionHandler.History())

		v1.GET("/audit-logs", auditHandler.List())
	}

	return router
}

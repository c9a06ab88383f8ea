package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ledger-service/ledger_service/internal/api/routes"
	accountsvc "github.com/ledger-service/ledger_service/internal/domain/services/account"
	idempotencysvc "github.com/ledger-service/ledger_service/internal/domain/services/idempotency"
	paymentsvc "github.com/ledger-service/ledger_service/internal/domain/services/payment"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/internal/infrastructure/config"
	"github.com/ledger-service/ledger_service/internal/infrastructure/database"
	pgrepo "github.com/ledger-service/ledger_service/internal/infrastructure/repositories"
	"github.com/ledger-service/ledger_service/internal/workers"
	"github.com/ledger-service/ledger_service/pkg/auth"
	"github.com/ledger-service/ledger_service/pkg/graceful"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/ratelimit"
	"github.com/ledger-service/ledger_service/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	shutdown := graceful.NewManager(30*time.Second, log)

	tracerShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("init tracing", "error", err)
	}
	shutdown.Register("tracing", tracerShutdown)

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("connect to database", "error", err)
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("run migrations", "error", err)
	}
	log.Info("migrations applied")

	cacheClient, redisClient, err := cache.NewRedisCache(&cfg.Redis, log)
	if err != nil {
		log.Fatal("connect to redis", "error", err)
	}
	shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })

	store := pgrepo.NewStore(db, log)

	accounts := accountsvc.NewService(store, cacheClient,
		time.Duration(cfg.Ledger.BalanceCacheTTLSeconds)*time.Second, log)
	idempotency := idempotencysvc.NewService(store, cacheClient,
		time.Duration(cfg.Ledger.IdempotencyKeyTTLSeconds)*time.Second, log)
	payments := paymentsvc.NewService(store, accounts, idempotency,
		cfg.Ledger.MaxTransferRetries, log)

	sweeper := workers.NewIdempotencySweeper(store, cfg.Ledger.SweepSchedule, log)
	if err := sweeper.Start(); err != nil {
		log.Fatal("start idempotency sweeper", "error", err)
	}
	shutdown.Register("idempotency-sweeper", sweeper.Stop)

	authManager := auth.NewManager(cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessTTL)*time.Second, cfg.JWT.Issuer)
	limiter := ratelimit.NewLimiter(redisClient,
		cfg.Server.RateLimitPerMin, cfg.Server.RateLimitPerHour, log)

	router := routes.Setup(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		DB:          db,
		Cache:       cacheClient,
		Store:       store,
		Accounts:    accounts,
		Payments:    payments,
		AuthManager: authManager,
		RateLimiter: limiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	shutdown.Register("http-server", server.Shutdown)

	go func() {
		log.Info("server starting", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	shutdown.Wait()
	shutdown.Shutdown()
	log.Info("server stopped")
}

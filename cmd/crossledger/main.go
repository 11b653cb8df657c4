package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crossledger/crossledger/internal/app"
	"github.com/crossledger/crossledger/internal/audit"
	"github.com/crossledger/crossledger/internal/business"
	"github.com/crossledger/crossledger/internal/cashflow"
	"github.com/crossledger/crossledger/internal/ledger"
	"github.com/crossledger/crossledger/internal/observability"
	"github.com/crossledger/crossledger/internal/platform/cache"
	"github.com/crossledger/crossledger/internal/platform/db"
	"github.com/crossledger/crossledger/internal/shared"
	"github.com/crossledger/crossledger/internal/transfer"
	"github.com/crossledger/crossledger/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, api-key caching disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	if redisClient != nil {
		usersService.WithKeyCache(users.NewKeyCache(redisClient, 5*time.Minute))
	}
	usersHandler := users.NewHandler(logger, usersService)

	businessRepo := business.NewRepository(pool)
	businessService := business.NewService(businessRepo, auditLogger)
	businessHandler := business.NewHandler(logger, businessService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, businessRepo, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(transferRepo, businessRepo, ledgerService, auditLogger, metrics)
	transferHandler := transfer.NewHandler(logger, transferService, idempotencyStore)

	cashflowRepo := cashflow.NewRepository(pool)
	cashflowService := cashflow.NewService(cashflowRepo, businessRepo)
	cashflowHandler := cashflow.NewHandler(logger, cashflowService)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo, businessRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		UsersService:    usersService,
		UsersHandler:    usersHandler,
		BusinessHandler: businessHandler,
		LedgerHandler:   ledgerHandler,
		TransferHandler: transferHandler,
		CashflowHandler: cashflowHandler,
		AuditHandler:    auditHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

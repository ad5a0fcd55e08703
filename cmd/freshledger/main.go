package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/freshledger/freshledger/internal/app"
	"github.com/freshledger/freshledger/internal/catalog"
	"github.com/freshledger/freshledger/internal/expense"
	"github.com/freshledger/freshledger/internal/ledger"
	"github.com/freshledger/freshledger/internal/platform/cache"
	"github.com/freshledger/freshledger/internal/platform/db"
	"github.com/freshledger/freshledger/internal/profitloss"
	"github.com/freshledger/freshledger/internal/shared"
	"github.com/freshledger/freshledger/internal/summary"
	"github.com/freshledger/freshledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	categoryLock := shared.NewCategoryLock(redisClient, cfg.LockTTL, cfg.LockWait, cfg.LockRetry)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, catalogService, categoryLock, auditLogger, idempotencyStore, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	loc := cfg.Location()

	summaryRepo := summary.NewRepository(pool)
	summaryService := summary.NewService(summaryRepo, loc)
	summaryHandler := summary.NewHandler(logger, summaryService)

	profitLossRepo := profitloss.NewRepository(pool, cfg.LedgerTimezone)
	profitLossService := profitloss.NewService(profitLossRepo, loc)
	profitLossHandler := profitloss.NewHandler(logger, profitLossService)

	expenseRepo := expense.NewRepository(pool)
	expenseService := expense.NewService(expenseRepo)
	expenseHandler := expense.NewHandler(logger, expenseService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		CatalogHandler:    catalogHandler,
		SummaryHandler:    summaryHandler,
		ProfitLossHandler: profitLossHandler,
		ExpenseHandler:    expenseHandler,
		JobHandler:        jobHandler,
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

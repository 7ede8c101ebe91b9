// Package main is the entry point for the hashcard treasury back-office
// server.  Runs on its own port behind an IP whitelist and exposes the
// operator endpoints plus the Prometheus scrape target.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashcard/treasury/internal/backoffice"
	"github.com/hashcard/treasury/internal/config"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/hashcard/treasury/internal/service"
	"github.com/hashcard/treasury/internal/signer"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func main() {
	// ── Config + logger ───────────────────────────────────────────────────────
	_ = godotenv.Load()
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting treasury backoffice server",
		"env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	// ── Database ──────────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── Repositories ──────────────────────────────────────────────────────────
	walletRepo := repository.NewWalletRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	swapRepo := repository.NewSwapRepository(db)
	cashoutRepo := repository.NewCashoutRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	defaults := domain.SettingsSnapshot{
		LowInventoryThreshold: decimal.NewFromFloat(cfg.Treasury.LowInventoryBTC),
		HoldDuration:          cfg.Treasury.DefaultHoldDuration,
		DailyBuyLimitUSD:      decimal.NewFromFloat(cfg.Treasury.DailyBuyLimitUSD),
		MinCashoutUSD:         decimal.NewFromFloat(cfg.Treasury.MinCashoutUSD),
	}

	inventorySvc := service.NewInventoryService(db, inventoryRepo, auditRepo)
	fulfillmentSvc := service.NewFulfillmentService(db, orderRepo, auditRepo, inventorySvc)
	cashoutSvc := service.NewCashoutService(cashoutRepo, customerRepo, settingsRepo, auditRepo, defaults)

	// The manual processor run shares one signer and the same guarded
	// transitions with the scheduled runs in the API server, so a double-start
	// can never double-send.
	signerClient := signer.New(cfg.Signer.URL, cfg.Signer.APIKey, cfg.Signer.Timeout)
	processorSvc := service.NewProcessorService(
		db, orderRepo, swapRepo, customerRepo, settingsRepo,
		inventorySvc, fulfillmentSvc, signerClient,
		defaults, cfg.Treasury.ProcessorBatchSize,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		InventorySvc:   inventorySvc,
		FulfillmentSvc: fulfillmentSvc,
		CashoutSvc:     cashoutSvc,
		ProcessorSvc:   processorSvc,
		WalletRepo:     walletRepo,
		SettingsRepo:   settingsRepo,
		AuditRepo:      auditRepo,
		Cfg:            cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}

	db.Close()
	logger.Info("backoffice server stopped cleanly")
}

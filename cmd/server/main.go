// Package main is the entry point for the hashcard treasury API server.  It
// wires together the repositories and services, applies migrations, starts
// the background scheduler, and serves the customer-facing HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/hashcard/treasury/internal/api"
	"github.com/hashcard/treasury/internal/chain"
	"github.com/hashcard/treasury/internal/config"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/hashcard/treasury/internal/scheduler"
	"github.com/hashcard/treasury/internal/service"
	"github.com/hashcard/treasury/internal/signer"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // postgres driver
	"github.com/shopspring/decimal"
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting treasury server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Database ───────────────────────────────────────────────────────────
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

	// ── 3. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 4. Repositories ───────────────────────────────────────────────────────
	walletRepo := repository.NewWalletRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	swapRepo := repository.NewSwapRepository(db)
	cashoutRepo := repository.NewCashoutRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	cardRepo := repository.NewCardRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// ── 5. Chain + signer clients ─────────────────────────────────────────────
	chainHTTP := &http.Client{Timeout: cfg.Chain.FetchTimeout}
	btcClient := chain.NewBTCClient(cfg.Chain.BTCExplorerURL, chainHTTP)
	evmClient := chain.NewEVMClient(cfg.Chain.EVMExplorerURL, cfg.Chain.EVMAPIKey, chainHTTP)
	signerClient := signer.New(cfg.Signer.URL, cfg.Signer.APIKey, cfg.Signer.Timeout)

	// ── 6. Services (order matters for injection) ─────────────────────────────
	defaults := settingsDefaults(cfg)

	quoteSvc := service.NewQuoteService(cfg)
	inventorySvc := service.NewInventoryService(db, inventoryRepo, auditRepo)
	fulfillmentSvc := service.NewFulfillmentService(db, orderRepo, auditRepo, inventorySvc)
	swapSvc := service.NewSwapService(swapRepo, customerRepo, settingsRepo, quoteSvc, defaults)
	cardSvc := service.NewCardService(db, cardRepo, auditRepo, quoteSvc, fulfillmentSvc)
	cashoutSvc := service.NewCashoutService(cashoutRepo, customerRepo, settingsRepo, auditRepo, defaults)
	verifierSvc := service.NewVerifierService(
		db, evmClient, swapRepo, orderRepo, walletRepo, auditRepo, fulfillmentSvc,
		cfg.Chain.USDCContract, cfg.Chain.MinConfirmations,
	)
	monitorSvc := service.NewMonitorService(
		db, btcClient, swapRepo, orderRepo, walletRepo, auditRepo,
		cfg.Chain.BTCMinConfirmations, cfg.Treasury.ProcessorBatchSize,
	)
	processorSvc := service.NewProcessorService(
		db, orderRepo, swapRepo, customerRepo, settingsRepo,
		inventorySvc, fulfillmentSvc, signerClient,
		defaults, cfg.Treasury.ProcessorBatchSize,
	)

	// ── 7. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 8. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(processorSvc, monitorSvc, inventorySvc, settingsRepo, defaults, cfg, logger)
	if err = sched.Start(); err != nil {
		logger.Error("scheduler start failed", "err", err)
		os.Exit(1)
	}

	// ── 9. HTTP Router ────────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		CardSvc:     cardSvc,
		SwapSvc:     swapSvc,
		VerifierSvc: verifierSvc,
		CashoutSvc:  cashoutSvc,
		Cfg:         cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 10. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 11. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	// Let in-flight scheduled jobs finish; a mid-run kill would leave orders in
	// SENDING for the operator to resolve.
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduler jobs still running at shutdown deadline")
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// settingsDefaults builds the fallback operational-controls snapshot used when
// system_settings has no row (or a malformed value) for a key.
func settingsDefaults(cfg *config.Config) domain.SettingsSnapshot {
	return domain.SettingsSnapshot{
		PayoutsPaused:         false,
		LowInventoryThreshold: decimal.NewFromFloat(cfg.Treasury.LowInventoryBTC),
		HoldDuration:          cfg.Treasury.DefaultHoldDuration,
		DailyBuyLimitUSD:      decimal.NewFromFloat(cfg.Treasury.DailyBuyLimitUSD),
		MinCashoutUSD:         decimal.NewFromFloat(cfg.Treasury.MinCashoutUSD),
	}
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}

// Package scheduler runs the engine's recurring jobs on cron schedules:
//  1. processor run       – drains the fulfillment queue (default every minute).
//  2. chain reconcile     – matches BTC deposits and confirms outgoing sends.
//  3. inventory watch     – warns when eligible inventory drops below threshold.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashcard/treasury/internal/config"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/hashcard/treasury/internal/service"
	"github.com/robfig/cron/v3"
)

// jobTimeout bounds every scheduled run so a stuck chain call cannot pile up
// overlapping jobs behind it.
const jobTimeout = 5 * time.Minute

// Scheduler owns the cron instance and the job bodies.  Call Start once from
// main(); Stop drains in-flight jobs.
type Scheduler struct {
	processor    *service.ProcessorService
	monitor      *service.MonitorService
	inventory    *service.InventoryService
	settingsRepo *repository.SettingsRepository
	defaults     domain.SettingsSnapshot
	cfg          *config.Config
	logger       *slog.Logger
	cron         *cron.Cron
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	processor *service.ProcessorService,
	monitor *service.MonitorService,
	inventory *service.InventoryService,
	settingsRepo *repository.SettingsRepository,
	defaults domain.SettingsSnapshot,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		processor:    processor,
		monitor:      monitor,
		inventory:    inventory,
		settingsRepo: settingsRepo,
		defaults:     defaults,
		cfg:          cfg,
		logger:       logger,
		cron:         cron.New(cron.WithChain(cron.Recover(cronLogger))),
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context)
	}{
		{"processor", s.cfg.Treasury.ProcessorSchedule, s.runProcessor},
		{"chain_reconcile", s.cfg.Treasury.ReconcileSchedule, s.runReconcile},
		{"inventory_watch", s.cfg.Treasury.InventoryWatchSchedule, s.runInventoryWatch},
	}

	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			j.run(ctx)
		}); err != nil {
			return err
		}
		s.logger.Info("scheduled job", "job", j.name, "schedule", j.schedule)
	}

	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop stops the cron scheduler and returns a context that is done once
// in-flight jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ──────────────────────────────────────────────────────────────────────────────
// Job bodies
// ──────────────────────────────────────────────────────────────────────────────

// runProcessor triggers one settlement queue pass.  An overlapping manual run
// is not an error; the processor's own single-flight lock reports it.
func (s *Scheduler) runProcessor(ctx context.Context) {
	report, err := s.processor.Run(ctx)
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			s.logger.Info("processor: previous run still in flight, skipping tick")
			return
		}
		s.logger.Error("processor run failed", "err", err)
		return
	}
	if report.Paused {
		s.logger.Info("processor run skipped, payouts paused", "blocked", report.Blocked)
	}
}

// runReconcile matches incoming BTC deposits to pending sell orders, then
// promotes SENT orders whose transactions confirmed on chain.
func (s *Scheduler) runReconcile(ctx context.Context) {
	matched, err := s.monitor.ReconcileSellDeposits(ctx)
	if err != nil {
		s.logger.Error("chain reconcile: deposits", "err", err)
	} else if matched > 0 {
		s.logger.Info("chain reconcile: deposits matched", "count", matched)
	}

	confirmed, err := s.monitor.ConfirmOutgoing(ctx)
	if err != nil {
		s.logger.Error("chain reconcile: outgoing", "err", err)
	} else if confirmed > 0 {
		s.logger.Info("chain reconcile: sends confirmed", "count", confirmed)
	}
}

// runInventoryWatch compares eligible inventory against the configured floor
// and logs a warning for the on-call operator when it is breached.
func (s *Scheduler) runInventoryWatch(ctx context.Context) {
	stats, err := s.inventory.Stats(ctx)
	if err != nil {
		s.logger.Error("inventory watch: stats", "err", err)
		return
	}

	snap, err := s.settingsRepo.Snapshot(ctx, s.defaults)
	if err != nil {
		s.logger.Error("inventory watch: settings", "err", err)
		return
	}

	if snap.LowInventoryThreshold.IsPositive() && stats.EligibleBTC.LessThan(snap.LowInventoryThreshold) {
		s.logger.Warn("eligible inventory below threshold",
			"eligible_btc", stats.EligibleBTC,
			"threshold_btc", snap.LowInventoryThreshold,
			"locked_btc", stats.LockedBTC)
	}
}

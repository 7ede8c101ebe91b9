package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/metrics"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/hashcard/treasury/internal/signer"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ErrRunInProgress is returned when a processor run is requested while the
// previous one is still going.  The caller simply waits for the next tick.
var ErrRunInProgress = errors.New("processor run already in progress")

// Sender is the slice of the signer client the processor consumes.
type Sender interface {
	SendBTC(ctx context.Context, req signer.SendRequest) (string, error)
}

// SettingsSource is the slice of the settings repository the processor reads.
type SettingsSource interface {
	Snapshot(ctx context.Context, defaults domain.SettingsSnapshot) (domain.SettingsSnapshot, error)
}

// OrderQueue is the slice of the order repository the processor walks.
type OrderQueue interface {
	ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.FulfillmentOrder, error)
	SetBlockedReason(ctx context.Context, orderID uuid.UUID, reason string) error
	MarkSent(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, txHash string) error
}

// ProcessorReport summarises one queue-processor run.
type ProcessorReport struct {
	Paused      bool            `json:"paused"`
	EligibleBTC decimal.Decimal `json:"eligible_btc"`
	Intake      int             `json:"intake"`    // SUBMITTED orders admitted
	Advanced    int             `json:"advanced"`  // KYC / inventory gates passed
	Sent        int             `json:"sent"`      // payments broadcast
	Blocked     int             `json:"blocked"`   // orders held back by a gate
	Failed      int             `json:"failed"`    // per-order errors this run
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ProcessorService
// ──────────────────────────────────────────────────────────────────────────────

// ProcessorService is the queue processor: the only component that advances
// fulfillment orders.  Each run reads the operational settings once, then
// walks the queue oldest-first, one transaction per order, so a single bad
// order can never stall the rest of the batch.
type ProcessorService struct {
	db           *sqlx.DB
	orderRepo    OrderQueue
	swapRepo     *repository.SwapRepository
	customerRepo *repository.CustomerRepository
	settingsRepo SettingsSource
	inventory    *InventoryService
	fulfillment  *FulfillmentService
	sender       Sender

	defaults  domain.SettingsSnapshot // fallbacks when a settings key is absent
	batchSize int

	mu sync.Mutex // one run at a time
}

// NewProcessorService creates a ProcessorService.
func NewProcessorService(
	db *sqlx.DB,
	orderRepo OrderQueue,
	swapRepo *repository.SwapRepository,
	customerRepo *repository.CustomerRepository,
	settingsRepo SettingsSource,
	inventory *InventoryService,
	fulfillment *FulfillmentService,
	sender Sender,
	defaults domain.SettingsSnapshot,
	batchSize int,
) *ProcessorService {
	return &ProcessorService{
		db:           db,
		orderRepo:    orderRepo,
		swapRepo:     swapRepo,
		customerRepo: customerRepo,
		settingsRepo: settingsRepo,
		inventory:    inventory,
		fulfillment:  fulfillment,
		sender:       sender,
		defaults:     defaults,
		batchSize:    batchSize,
	}
}

// Run executes one full processing cycle and returns its report.  Re-running
// immediately after a completed run with no new input is a no-op by
// construction: every advance is guarded by the state machine and every
// allocation by the lot balance checks.
func (s *ProcessorService) Run(ctx context.Context) (*ProcessorReport, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	started := time.Now().UTC()
	report := &ProcessorReport{StartedAt: started}

	// Settings are read once; a flag flipped mid-run applies next run.
	snap, err := s.settingsRepo.Snapshot(ctx, s.defaults)
	if err != nil {
		metrics.ProcessorRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("processor_service.Run: %w", err)
	}
	report.Paused = snap.PayoutsPaused

	// Kill switch: a paused engine freezes the whole queue.  No pass runs
	// and no inventory moves; ready orders get the pause stamped so the
	// backoffice shows why nothing is leaving.
	if snap.PayoutsPaused {
		s.markPaused(ctx, report)
		metrics.ProcessorRuns.WithLabelValues("paused").Inc()
		report.Duration = time.Since(started)
		slog.Info("processor run skipped, payouts paused",
			"blocked", report.Blocked, "duration", report.Duration)
		return report, nil
	}

	stats, err := s.inventory.Stats(ctx)
	if err != nil {
		metrics.ProcessorRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("processor_service.Run: %w", err)
	}
	report.EligibleBTC = stats.EligibleBTC

	s.intakePass(ctx, report)
	s.kycPass(ctx, report)
	s.inventoryPass(ctx, report, stats.EligibleBTC)
	s.sendPass(ctx, report)
	metrics.ProcessorRuns.WithLabelValues("ok").Inc()

	report.Duration = time.Since(started)
	slog.Info("processor run finished",
		"eligible_btc", report.EligibleBTC,
		"intake", report.Intake,
		"advanced", report.Advanced,
		"sent", report.Sent,
		"blocked", report.Blocked,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Passes
// ──────────────────────────────────────────────────────────────────────────────

// intakePass admits SUBMITTED orders into the pipeline.
func (s *ProcessorService) intakePass(ctx context.Context, report *ProcessorReport) {
	orders, err := s.orderRepo.ListByStatus(ctx, domain.OrderSubmitted, s.batchSize)
	if err != nil {
		log.Printf("[processor] intake list: %v", err)
		report.Failed++
		return
	}
	for _, order := range orders {
		if err := s.advanceOne(ctx, order, domain.OrderKYCPending, nil); err != nil {
			log.Printf("[processor] intake order %s: %v", order.ID, err)
			report.Failed++
			continue
		}
		report.Intake++
	}
}

// kycPass moves orders past the KYC gate or records why they stay.
func (s *ProcessorService) kycPass(ctx context.Context, report *ProcessorReport) {
	orders, err := s.orderRepo.ListByStatus(ctx, domain.OrderKYCPending, s.batchSize)
	if err != nil {
		log.Printf("[processor] kyc list: %v", err)
		report.Failed++
		return
	}
	for _, order := range orders {
		status, err := s.customerRepo.GetKYCStatus(ctx, order.CustomerID)
		if err != nil {
			log.Printf("[processor] kyc order %s: %v", order.ID, err)
			report.Failed++
			continue
		}
		if !status.IsApproved() {
			s.block(ctx, order, domain.BlockedKYCPending, report)
			continue
		}
		if err := s.advanceOne(ctx, order, domain.OrderWaitingInventory, nil); err != nil {
			log.Printf("[processor] kyc order %s: %v", order.ID, err)
			report.Failed++
			continue
		}
		report.Advanced++
	}
}

// inventoryPass reserves BTC for waiting orders, oldest first.  A local
// remaining counter tracks what this run has already committed, so an order
// larger than what is left is blocked without opening a transaction just to
// fail it.
func (s *ProcessorService) inventoryPass(ctx context.Context, report *ProcessorReport, eligible decimal.Decimal) {
	orders, err := s.orderRepo.ListByStatus(ctx, domain.OrderWaitingInventory, s.batchSize)
	if err != nil {
		log.Printf("[processor] inventory list: %v", err)
		report.Failed++
		return
	}

	remaining := eligible
	for _, order := range orders {
		if order.DestinationAddress == "" {
			s.block(ctx, order, domain.BlockedMissingDestination, report)
			continue
		}
		if order.BTCAmount.GreaterThan(remaining) {
			s.block(ctx, order, domain.BlockedInsufficientInventory, report)
			continue
		}

		if err := s.allocateAndAdvance(ctx, order); err != nil {
			if errors.Is(err, domain.ErrInsufficientInventory) {
				s.block(ctx, order, domain.BlockedInsufficientInventory, report)
				continue
			}
			log.Printf("[processor] allocate order %s: %v", order.ID, err)
			report.Failed++
			continue
		}
		remaining = remaining.Sub(order.BTCAmount)
		report.Advanced++
	}
}

// allocateAndAdvance reserves inventory and moves the order to READY_TO_SEND
// in one transaction; rollback leaves no partial reservation.
func (s *ProcessorService) allocateAndAdvance(ctx context.Context, order *domain.FulfillmentOrder) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.inventory.AllocateTx(ctx, tx, order.ID, order.BTCAmount); err != nil {
		return err
	}
	if err = s.fulfillment.AdvanceTx(ctx, tx, order, domain.OrderReadyToSend, nil, "processor"); err != nil {
		return err
	}
	if order.SwapOrderID != nil {
		if err = s.swapRepo.SetInventoryAllocated(ctx, tx, *order.SwapOrderID); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// sendPass broadcasts READY_TO_SEND orders through the signer.
//
// The order is moved to SENDING and committed before the signer call, so a
// crash mid-send leaves it visibly in flight for operator review instead of
// silently re-sending.  A definitive signer rejection proves nothing was
// broadcast, so the order fails and its inventory returns to the lots.  Any
// other signer error keeps the order in SENDING with the error recorded; it
// is never retried automatically because the payment may still have gone out.
func (s *ProcessorService) sendPass(ctx context.Context, report *ProcessorReport) {
	orders, err := s.orderRepo.ListByStatus(ctx, domain.OrderReadyToSend, s.batchSize)
	if err != nil {
		log.Printf("[processor] send list: %v", err)
		report.Failed++
		return
	}
	for _, order := range orders {
		if err := s.advanceOne(ctx, order, domain.OrderSending, nil); err != nil {
			log.Printf("[processor] send order %s: %v", order.ID, err)
			report.Failed++
			continue
		}

		txHash, err := s.sender.SendBTC(ctx, signer.SendRequest{
			OrderID: order.ID.String(),
			Address: order.DestinationAddress,
			Amount:  order.BTCAmount,
		})
		if err != nil {
			if errors.Is(err, signer.ErrRejected) {
				log.Printf("[processor] signer rejected order %s: %v", order.ID, err)
				if ferr := s.fulfillment.FailAndReverse(ctx, order.ID, "signer: "+err.Error(), "processor"); ferr != nil {
					log.Printf("[processor] fail order %s: %v", order.ID, ferr)
				}
				report.Failed++
				continue
			}
			log.Printf("[processor] signer order %s: %v", order.ID, err)
			_ = s.orderRepo.SetBlockedReason(ctx, order.ID, "signer: "+err.Error())
			report.Failed++
			continue
		}

		if err := s.markSent(ctx, order, txHash); err != nil {
			log.Printf("[processor] mark sent order %s: %v", order.ID, err)
			report.Failed++
			continue
		}
		report.Sent++
	}
}

// markSent records the broadcast hash in its own transaction.
func (s *ProcessorService) markSent(ctx context.Context, order *domain.FulfillmentOrder, txHash string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.orderRepo.MarkSent(ctx, tx, order.ID, txHash); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	metrics.OrdersAdvanced.WithLabelValues(string(domain.OrderSent)).Inc()
	return nil
}

// markPaused stamps the pause reason on orders that would otherwise send.
func (s *ProcessorService) markPaused(ctx context.Context, report *ProcessorReport) {
	orders, err := s.orderRepo.ListByStatus(ctx, domain.OrderReadyToSend, s.batchSize)
	if err != nil {
		log.Printf("[processor] pause list: %v", err)
		return
	}
	for _, order := range orders {
		if err := s.orderRepo.SetBlockedReason(ctx, order.ID, domain.BlockedPayoutsPaused); err != nil {
			log.Printf("[processor] pause order %s: %v", order.ID, err)
			continue
		}
		report.Blocked++
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// advanceOne moves a single order along one edge in its own transaction.
func (s *ProcessorService) advanceOne(ctx context.Context, order *domain.FulfillmentOrder, to domain.OrderStatus, blockedReason *string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.fulfillment.AdvanceTx(ctx, tx, order, to, blockedReason, "processor"); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// block records why a gate refused an order, without changing its status.
func (s *ProcessorService) block(ctx context.Context, order *domain.FulfillmentOrder, reason string, report *ProcessorReport) {
	if err := s.orderRepo.SetBlockedReason(ctx, order.ID, reason); err != nil {
		log.Printf("[processor] block order %s: %v", order.ID, err)
		report.Failed++
		return
	}
	report.Blocked++
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/metrics"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// InventoryService
// ──────────────────────────────────────────────────────────────────────────────

// InventoryService owns the BTC inventory ledger: lot creation, the FIFO
// allocator and allocation reversal.  Every mutation runs inside a single
// PostgreSQL transaction with the touched lot rows locked.
type InventoryService struct {
	db            *sqlx.DB
	inventoryRepo *repository.InventoryRepository
	auditRepo     *repository.AuditRepository
}

// NewInventoryService creates an InventoryService.
func NewInventoryService(
	db *sqlx.DB,
	inventoryRepo *repository.InventoryRepository,
	auditRepo *repository.AuditRepository,
) *InventoryService {
	return &InventoryService{
		db:            db,
		inventoryRepo: inventoryRepo,
		auditRepo:     auditRepo,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// TopUp
// ──────────────────────────────────────────────────────────────────────────────

// TopUp records a new batch of BTC received into the treasury.  The lot
// becomes allocatable once hold has elapsed from receivedAt.
func (s *InventoryService) TopUp(ctx context.Context, amount decimal.Decimal, source domain.LotSource, receivedAt time.Time, hold time.Duration, actor string) (*domain.InventoryLot, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}
	if !source.IsValid() {
		return nil, fmt.Errorf("inventory_service.TopUp: unknown source %q", source)
	}

	amount = amount.RoundDown(domain.BTCScale)
	now := time.Now().UTC()
	if receivedAt.IsZero() {
		receivedAt = now
	}

	lot := &domain.InventoryLot{
		ID:              uuid.New(),
		AmountTotal:     amount,
		AmountAvailable: amount,
		Source:          source,
		ReceivedAt:      receivedAt,
		EligibleAt:      receivedAt.Add(hold),
		CreatedAt:       now,
	}
	if err := s.inventoryRepo.CreateLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("inventory_service.TopUp: %w", err)
	}

	_ = s.auditRepo.Append(ctx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   "lot_created:" + lot.ID.String(),
		EventType: domain.AuditLotCreated,
		Actor:     actor,
		Detail: fmt.Sprintf("lot %s: %s BTC from %s, eligible at %s",
			lot.ID, amount.StringFixed(domain.BTCScale), source, lot.EligibleAt.Format(time.RFC3339)),
		CreatedAt: now,
	})

	return lot, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Allocation
// ──────────────────────────────────────────────────────────────────────────────

// AllocateTx reserves requested BTC for an order inside the caller's
// transaction.  Lot rows are locked for the walk, the plan is all-or-nothing,
// and each draw is a guarded decrement plus an allocation row.  On
// ErrInsufficientInventory nothing has been written; the caller decides
// whether to roll back other work.
func (s *InventoryService) AllocateTx(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, requested decimal.Decimal) ([]domain.LotDraw, error) {
	now := time.Now().UTC()

	lots, err := s.inventoryRepo.GetEligibleForUpdate(ctx, tx, now)
	if err != nil {
		metrics.Allocations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("inventory_service.AllocateTx: %w", err)
	}

	// The query already filters on eligibility; re-filtering keeps the rule
	// next to the planner and guards against a stale lot in the result set.
	draws, err := domain.PlanAllocation(domain.EligibleLots(lots, now), requested)
	if err != nil {
		metrics.Allocations.WithLabelValues("insufficient").Inc()
		return nil, err
	}

	for _, draw := range draws {
		if err := s.inventoryRepo.DecrementAvailable(ctx, tx, draw.LotID, draw.Amount); err != nil {
			metrics.Allocations.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("inventory_service.AllocateTx: decrement lot %s: %w", draw.LotID, err)
		}
		alloc := &domain.LotAllocation{
			ID:        uuid.New(),
			LotID:     draw.LotID,
			OrderID:   orderID,
			Amount:    draw.Amount,
			CreatedAt: now,
		}
		if err := s.inventoryRepo.InsertAllocation(ctx, tx, alloc); err != nil {
			metrics.Allocations.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("inventory_service.AllocateTx: insert allocation: %w", err)
		}
	}

	orderIDCopy := orderID
	if err := s.auditRepo.AppendTx(ctx, tx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   "allocation:" + orderID.String(),
		EventType: domain.AuditAllocation,
		OrderID:   &orderIDCopy,
		Actor:     "processor",
		Detail: fmt.Sprintf("%s BTC reserved across %d lot(s)",
			requested.StringFixed(domain.BTCScale), len(draws)),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("inventory_service.AllocateTx: audit: %w", err)
	}

	metrics.Allocations.WithLabelValues("ok").Inc()
	return draws, nil
}

// ReverseTx restores every active allocation of an order back to its lots,
// inside the caller's transaction.  The allocation rows are locked first so a
// concurrent reversal blocks and then finds nothing left to reverse
// (ErrAllocationNotFound).
func (s *InventoryService) ReverseTx(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, actor string) error {
	allocs, err := s.inventoryRepo.ActiveAllocationsForUpdate(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("inventory_service.ReverseTx: %w", err)
	}
	if len(allocs) == 0 {
		return domain.ErrAllocationNotFound
	}

	total := decimal.Zero
	for _, a := range allocs {
		if err := s.inventoryRepo.RestoreAvailable(ctx, tx, a.LotID, a.Amount); err != nil {
			return fmt.Errorf("inventory_service.ReverseTx: restore lot %s: %w", a.LotID, err)
		}
		total = total.Add(a.Amount)
	}

	n, err := s.inventoryRepo.MarkAllocationsReversed(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("inventory_service.ReverseTx: %w", err)
	}
	if n != int64(len(allocs)) {
		// Rows changed between the lock and the update; abort the tx.
		return fmt.Errorf("inventory_service.ReverseTx: reversed %d of %d allocations: %w",
			n, len(allocs), domain.ErrLotInvariantViolated)
	}

	now := time.Now().UTC()
	orderIDCopy := orderID
	if err := s.auditRepo.AppendTx(ctx, tx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   "allocation_reversed:" + orderID.String(),
		EventType: domain.AuditAllocationReversed,
		OrderID:   &orderIDCopy,
		Actor:     actor,
		Detail: fmt.Sprintf("%s BTC restored across %d lot(s)",
			total.StringFixed(domain.BTCScale), len(allocs)),
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("inventory_service.ReverseTx: audit: %w", err)
	}

	return nil
}

// Reverse runs ReverseTx in its own transaction, for backoffice-initiated
// reversals.
func (s *InventoryService) Reverse(ctx context.Context, orderID uuid.UUID, actor string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("inventory_service.Reverse: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.ReverseTx(ctx, tx, orderID, actor); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("inventory_service.Reverse: commit: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// Stats returns the aggregate treasury position and refreshes the inventory
// gauges.
func (s *InventoryService) Stats(ctx context.Context) (*domain.InventoryStats, error) {
	stats, err := s.inventoryRepo.Stats(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("inventory_service.Stats: %w", err)
	}

	eligible, _ := stats.EligibleBTC.Float64()
	locked, _ := stats.LockedBTC.Float64()
	metrics.EligibleBTC.Set(eligible)
	metrics.LockedBTC.Set(locked)

	return stats, nil
}

// ListLots returns lots newest-first for the backoffice.
func (s *InventoryService) ListLots(ctx context.Context, limit, offset int) ([]*domain.InventoryLot, error) {
	lots, err := s.inventoryRepo.ListLots(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("inventory_service.ListLots: %w", err)
	}
	return lots, nil
}

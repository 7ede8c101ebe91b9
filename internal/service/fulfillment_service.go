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
// FulfillmentService
// ──────────────────────────────────────────────────────────────────────────────

// FulfillmentService owns fulfillment order lifecycle: creation from card
// redemptions and verified buy orders, state-machine advancement, and the
// admin hold/release controls.  Sends themselves are driven by the queue
// processor.
type FulfillmentService struct {
	db        *sqlx.DB
	orderRepo *repository.OrderRepository
	auditRepo *repository.AuditRepository
	inventory *InventoryService
}

// NewFulfillmentService creates a FulfillmentService.
func NewFulfillmentService(
	db *sqlx.DB,
	orderRepo *repository.OrderRepository,
	auditRepo *repository.AuditRepository,
	inventory *InventoryService,
) *FulfillmentService {
	return &FulfillmentService{
		db:        db,
		orderRepo: orderRepo,
		auditRepo: auditRepo,
		inventory: inventory,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Creation
// ──────────────────────────────────────────────────────────────────────────────

// CreateForRedemptionTx opens a REDEMPTION order for a redeemed card inside
// the caller's transaction, so the card flip and the order appear together.
func (s *FulfillmentService) CreateForRedemptionTx(ctx context.Context, tx *sqlx.Tx, customerID, cardID uuid.UUID, usdValue, btcAmount decimal.Decimal, destination string) (*domain.FulfillmentOrder, error) {
	now := time.Now().UTC()
	cardIDCopy := cardID
	order := &domain.FulfillmentOrder{
		ID:                 uuid.New(),
		OrderType:          domain.OrderTypeRedemption,
		CustomerID:         customerID,
		CardID:             &cardIDCopy,
		USDValue:           usdValue,
		BTCAmount:          btcAmount.RoundDown(domain.BTCScale),
		DestinationAddress: destination,
		Status:             domain.OrderSubmitted,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("fulfillment_service.CreateForRedemptionTx: %w", err)
	}
	return order, nil
}

// CreateForBuyTx opens a BUY_ORDER for a verified buy swap inside the
// caller's transaction.
func (s *FulfillmentService) CreateForBuyTx(ctx context.Context, tx *sqlx.Tx, swap *domain.CustomerSwapOrder) (*domain.FulfillmentOrder, error) {
	destination := ""
	if swap.DestinationAddress != nil {
		destination = *swap.DestinationAddress
	}

	now := time.Now().UTC()
	swapIDCopy := swap.ID
	order := &domain.FulfillmentOrder{
		ID:                 uuid.New(),
		OrderType:          domain.OrderTypeBuyOrder,
		CustomerID:         swap.CustomerID,
		SwapOrderID:        &swapIDCopy,
		USDValue:           swap.USDCAmount,
		BTCAmount:          swap.BTCAmount.RoundDown(domain.BTCScale),
		DestinationAddress: destination,
		Status:             domain.OrderSubmitted,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("fulfillment_service.CreateForBuyTx: %w", err)
	}
	return order, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Advancement
// ──────────────────────────────────────────────────────────────────────────────

// AdvanceTx moves an order along one legal state-machine edge inside the
// caller's transaction and audits the move.  The edge is checked against the
// transition table first, then the repo's WHERE status = $from guard protects
// against a concurrent advance.
func (s *FulfillmentService) AdvanceTx(ctx context.Context, tx *sqlx.Tx, order *domain.FulfillmentOrder, to domain.OrderStatus, blockedReason *string, actor string) error {
	if !domain.CanTransition(order.Status, to) {
		return domain.ErrInvalidTransition
	}
	if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, order.Status, to, blockedReason); err != nil {
		return fmt.Errorf("fulfillment_service.AdvanceTx: %w", err)
	}

	orderIDCopy := order.ID
	if err := s.auditRepo.AppendTx(ctx, tx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   fmt.Sprintf("order_transition:%s:%s->%s", order.ID, order.Status, to),
		EventType: domain.AuditOrderTransition,
		OrderID:   &orderIDCopy,
		Actor:     actor,
		Detail:    fmt.Sprintf("%s -> %s", order.Status, to),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("fulfillment_service.AdvanceTx: audit: %w", err)
	}

	metrics.OrdersAdvanced.WithLabelValues(string(to)).Inc()
	order.Status = to
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Admin hold / release
// ──────────────────────────────────────────────────────────────────────────────

// Hold forces a gated order to HOLD.  Orders that are in flight (SENDING,
// SENT) or terminal cannot be held.
func (s *FulfillmentService) Hold(ctx context.Context, orderID uuid.UUID, actor string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fulfillment_service.Hold: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("fulfillment_service.Hold: %w", err)
	}
	if !order.Status.Holdable() {
		err = domain.ErrOrderNotHoldable
		return err
	}

	reason := domain.BlockedAdminHold
	if err = s.AdvanceTx(ctx, tx, order, domain.OrderHold, &reason, actor); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("fulfillment_service.Hold: commit: %w", err)
	}
	return nil
}

// Release lifts an admin hold.  The order re-enters at KYC_PENDING so every
// gate is re-evaluated on the next processor run.
func (s *FulfillmentService) Release(ctx context.Context, orderID uuid.UUID, actor string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fulfillment_service.Release: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("fulfillment_service.Release: %w", err)
	}
	if order.Status != domain.OrderHold {
		err = domain.ErrInvalidTransition
		return err
	}

	if err = s.AdvanceTx(ctx, tx, order, domain.OrderKYCPending, nil, actor); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("fulfillment_service.Release: commit: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Failure handling
// ──────────────────────────────────────────────────────────────────────────────

// FailAndReverse moves an in-flight order to FAILED and restores its
// inventory allocations in one transaction, so the conservation invariant
// holds at the commit point.
func (s *FulfillmentService) FailAndReverse(ctx context.Context, orderID uuid.UUID, reason, actor string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fulfillment_service.FailAndReverse: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.orderRepo.MarkFailed(ctx, tx, orderID, reason); err != nil {
		return fmt.Errorf("fulfillment_service.FailAndReverse: %w", err)
	}
	if err = s.inventory.ReverseTx(ctx, tx, orderID, actor); err != nil {
		// An order that never got inventory has nothing to reverse.
		if err != domain.ErrAllocationNotFound {
			return err
		}
		err = nil
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("fulfillment_service.FailAndReverse: commit: %w", err)
	}
	metrics.OrdersAdvanced.WithLabelValues(string(domain.OrderFailed)).Inc()
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// Get returns one order by id.
func (s *FulfillmentService) Get(ctx context.Context, orderID uuid.UUID) (*domain.FulfillmentOrder, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("fulfillment_service.Get: %w", err)
	}
	return order, nil
}

// ListActive returns the non-terminal queue, oldest first.
func (s *FulfillmentService) ListActive(ctx context.Context, limit, offset int) ([]*domain.FulfillmentOrder, error) {
	orders, err := s.orderRepo.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fulfillment_service.ListActive: %w", err)
	}
	return orders, nil
}

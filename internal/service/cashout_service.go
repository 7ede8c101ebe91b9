package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// CashoutService
// ──────────────────────────────────────────────────────────────────────────────

// CashoutService handles USD off-ramp requests: customer creation, manual
// backoffice review and ACH settlement marking.  Cashouts never touch the
// BTC inventory.
type CashoutService struct {
	cashoutRepo  *repository.CashoutRepository
	customerRepo *repository.CustomerRepository
	settingsRepo *repository.SettingsRepository
	auditRepo    *repository.AuditRepository

	defaults domain.SettingsSnapshot
}

// NewCashoutService creates a CashoutService.
func NewCashoutService(
	cashoutRepo *repository.CashoutRepository,
	customerRepo *repository.CustomerRepository,
	settingsRepo *repository.SettingsRepository,
	auditRepo *repository.AuditRepository,
	defaults domain.SettingsSnapshot,
) *CashoutService {
	return &CashoutService{
		cashoutRepo:  cashoutRepo,
		customerRepo: customerRepo,
		settingsRepo: settingsRepo,
		auditRepo:    auditRepo,
		defaults:     defaults,
	}
}

// Request opens a pending cashout for review.
func (s *CashoutService) Request(ctx context.Context, customerID uuid.UUID, amountUSD decimal.Decimal, bankAccountID string) (*domain.CashoutOrder, error) {
	if amountUSD.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}
	if bankAccountID == "" {
		return nil, domain.ErrMissingDestination
	}
	if _, err := s.customerRepo.GetByID(ctx, customerID); err != nil {
		return nil, fmt.Errorf("cashout_service.Request: %w", err)
	}

	snap, err := s.settingsRepo.Snapshot(ctx, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("cashout_service.Request: %w", err)
	}
	if amountUSD.LessThan(snap.MinCashoutUSD) {
		return nil, domain.ErrBelowMinCashout
	}

	order := &domain.CashoutOrder{
		ID:            uuid.New(),
		CustomerID:    customerID,
		AmountUSD:     amountUSD.Round(2),
		BankAccountID: bankAccountID,
		Status:        domain.CashoutPending,
		RequestedAt:   time.Now().UTC(),
	}
	if err := s.cashoutRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("cashout_service.Request: %w", err)
	}
	return order, nil
}

// Review records an approve/reject decision by a backoffice operator.
func (s *CashoutService) Review(ctx context.Context, cashoutID uuid.UUID, approve bool, note, reviewer string) error {
	status := domain.CashoutRejected
	if approve {
		status = domain.CashoutApproved
	}
	if err := s.cashoutRepo.Review(ctx, cashoutID, status, note, reviewer); err != nil {
		return fmt.Errorf("cashout_service.Review: %w", err)
	}

	_ = s.auditRepo.Append(ctx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   fmt.Sprintf("cashout_review:%s:%s", cashoutID, status),
		EventType: domain.AuditOrderTransition,
		Actor:     reviewer,
		Detail:    fmt.Sprintf("cashout %s %s: %s", cashoutID, status, note),
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Settle marks an approved cashout as paid over ACH.
func (s *CashoutService) Settle(ctx context.Context, cashoutID uuid.UUID, actor string) error {
	if err := s.cashoutRepo.MarkSettled(ctx, cashoutID); err != nil {
		return fmt.Errorf("cashout_service.Settle: %w", err)
	}

	_ = s.auditRepo.Append(ctx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   "cashout_settled:" + cashoutID.String(),
		EventType: domain.AuditOrderTransition,
		Actor:     actor,
		Detail:    fmt.Sprintf("cashout %s settled", cashoutID),
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Get returns one cashout order, restricted to its owner.
func (s *CashoutService) Get(ctx context.Context, cashoutID, customerID uuid.UUID) (*domain.CashoutOrder, error) {
	order, err := s.cashoutRepo.GetByID(ctx, cashoutID)
	if err != nil {
		return nil, fmt.Errorf("cashout_service.Get: %w", err)
	}
	if order.CustomerID != customerID {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

// List returns cashouts for the backoffice review queue.
func (s *CashoutService) List(ctx context.Context, status string, limit, offset int) ([]*domain.CashoutOrder, error) {
	orders, err := s.cashoutRepo.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("cashout_service.List: %w", err)
	}
	return orders, nil
}

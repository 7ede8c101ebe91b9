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
// SwapService
// ──────────────────────────────────────────────────────────────────────────────

// SwapService opens customer BUY_BTC / SELL_BTC orders, quoted at creation
// time.  Settlement is driven elsewhere: the verifier for buy payments, the
// chain monitor for sell deposits, the processor for BTC delivery.
type SwapService struct {
	swapRepo     *repository.SwapRepository
	customerRepo *repository.CustomerRepository
	settingsRepo *repository.SettingsRepository
	quotes       *QuoteService

	defaults domain.SettingsSnapshot
}

// NewSwapService creates a SwapService.
func NewSwapService(
	swapRepo *repository.SwapRepository,
	customerRepo *repository.CustomerRepository,
	settingsRepo *repository.SettingsRepository,
	quotes *QuoteService,
	defaults domain.SettingsSnapshot,
) *SwapService {
	return &SwapService{
		swapRepo:     swapRepo,
		customerRepo: customerRepo,
		settingsRepo: settingsRepo,
		quotes:       quotes,
		defaults:     defaults,
	}
}

// Create validates and opens a swap order.  BUY_BTC is sized by its USDC
// amount, SELL_BTC by its BTC amount; the counter-amount is quoted here and
// frozen into the order.
func (s *SwapService) Create(ctx context.Context, req domain.CreateSwapRequest) (*domain.CustomerSwapOrder, error) {
	if !req.Side.IsValid() {
		return nil, fmt.Errorf("swap_service.Create: unknown side %q: %w", req.Side, domain.ErrInvalidAmount)
	}

	// Customer must exist; KYC is gated later, at fulfillment.
	if _, err := s.customerRepo.GetByID(ctx, req.CustomerID); err != nil {
		return nil, fmt.Errorf("swap_service.Create: %w", err)
	}

	price, _, err := s.quotes.BTCUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap_service.Create: quote: %w", err)
	}

	now := time.Now().UTC()
	order := &domain.CustomerSwapOrder{
		ID:              uuid.New(),
		CustomerID:      req.CustomerID,
		Side:            req.Side,
		BTCPriceAtOrder: price,
		Status:          domain.SwapPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	switch req.Side {
	case domain.SwapBuyBTC:
		if req.USDCAmount.LessThanOrEqual(decimal.Zero) {
			return nil, domain.ErrInvalidAmount
		}
		if req.DestinationAddress == "" {
			return nil, domain.ErrMissingDestination
		}
		if err := s.checkDailyLimit(ctx, req.CustomerID, req.USDCAmount); err != nil {
			return nil, err
		}
		dest := req.DestinationAddress
		order.USDCAmount = req.USDCAmount.Round(2)
		order.BTCAmount = req.USDCAmount.Div(price).RoundDown(domain.BTCScale)
		order.DestinationAddress = &dest

	case domain.SwapSellBTC:
		if req.BTCAmount.LessThanOrEqual(decimal.Zero) {
			return nil, domain.ErrInvalidAmount
		}
		order.BTCAmount = req.BTCAmount.RoundDown(domain.BTCScale)
		order.USDCAmount = order.BTCAmount.Mul(price).Round(2)
		if req.SourceAddress != "" {
			src := req.SourceAddress
			order.SourceAddress = &src
		}
	}

	if order.BTCAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}

	if err := s.swapRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("swap_service.Create: %w", err)
	}
	return order, nil
}

// checkDailyLimit enforces the per-customer daily BUY_BTC volume cap.
func (s *SwapService) checkDailyLimit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) error {
	snap, err := s.settingsRepo.Snapshot(ctx, s.defaults)
	if err != nil {
		return fmt.Errorf("swap_service.checkDailyLimit: %w", err)
	}
	if snap.DailyBuyLimitUSD.LessThanOrEqual(decimal.Zero) {
		return nil // no limit configured
	}

	total, err := s.swapRepo.DailyBuyTotal(ctx, customerID)
	if err != nil {
		return fmt.Errorf("swap_service.checkDailyLimit: %w", err)
	}
	if total.Add(amount).GreaterThan(snap.DailyBuyLimitUSD) {
		return domain.ErrDailyLimitExceeded
	}
	return nil
}

// Get returns one swap order, restricted to its owner.
func (s *SwapService) Get(ctx context.Context, orderID, customerID uuid.UUID) (*domain.CustomerSwapOrder, error) {
	order, err := s.swapRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("swap_service.Get: %w", err)
	}
	if order.CustomerID != customerID {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

// ListMine returns a customer's swap history, paginated.
func (s *SwapService) ListMine(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*domain.CustomerSwapOrder, error) {
	orders, err := s.swapRepo.ListByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("swap_service.ListMine: %w", err)
	}
	return orders, nil
}

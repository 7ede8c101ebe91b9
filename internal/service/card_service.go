package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// CardService
// ──────────────────────────────────────────────────────────────────────────────

// CardService handles the prepaid card lifecycle: merchant activation at the
// point of sale and customer redemption, which turns the card's face value
// into a REDEMPTION fulfillment order.
type CardService struct {
	db          *sqlx.DB
	cardRepo    *repository.CardRepository
	auditRepo   *repository.AuditRepository
	quotes      *QuoteService
	fulfillment *FulfillmentService
}

// NewCardService creates a CardService.
func NewCardService(
	db *sqlx.DB,
	cardRepo *repository.CardRepository,
	auditRepo *repository.AuditRepository,
	quotes *QuoteService,
	fulfillment *FulfillmentService,
) *CardService {
	return &CardService{
		db:          db,
		cardRepo:    cardRepo,
		auditRepo:   auditRepo,
		quotes:      quotes,
		fulfillment: fulfillment,
	}
}

// Activate flips an inactive card to active for the selling merchant.
func (s *CardService) Activate(ctx context.Context, code string, merchantID uuid.UUID) (*domain.Card, error) {
	// Existence check first so an unknown code is a 404, not a conflict.
	card, err := s.cardRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("card_service.Activate: %w", err)
	}
	if card.Status != domain.CardInactive {
		return nil, domain.ErrCardAlreadyActive
	}

	if err := s.cardRepo.Activate(ctx, code, merchantID); err != nil {
		return nil, fmt.Errorf("card_service.Activate: %w", err)
	}

	card, err = s.cardRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("card_service.Activate: reload: %w", err)
	}
	return card, nil
}

// Redeem claims an active card for a customer: the card flips to redeemed
// and a REDEMPTION fulfillment order for its face value is created, both in
// one transaction.  The guarded card update makes a concurrent double-redeem
// roll the whole thing back.
//
// The BTC amount is sized at the current quote; delivery happens later via
// the queue processor, so the customer bears quote movement between
// redemption and send, like any market order.
func (s *CardService) Redeem(ctx context.Context, code string, customerID uuid.UUID, destinationAddress string) (*domain.FulfillmentOrder, error) {
	card, err := s.cardRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("card_service.Redeem: %w", err)
	}
	if !card.IsRedeemable() {
		return nil, domain.ErrCardNotRedeemable
	}

	// Quote before the transaction so no lock is held across a network call.
	price, _, err := s.quotes.BTCUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("card_service.Redeem: quote: %w", err)
	}
	btcAmount := card.FaceValueUSD.Div(price).RoundDown(domain.BTCScale)
	if btcAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("card_service.Redeem: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.cardRepo.Redeem(ctx, tx, card.ID); err != nil {
		return nil, fmt.Errorf("card_service.Redeem: %w", err)
	}

	order, err := s.fulfillment.CreateForRedemptionTx(ctx, tx,
		customerID, card.ID, card.FaceValueUSD, btcAmount, destinationAddress)
	if err != nil {
		return nil, err
	}

	orderIDCopy := order.ID
	if err = s.auditRepo.AppendTx(ctx, tx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   "card_redeemed:" + card.ID.String(),
		EventType: domain.AuditOrderTransition,
		OrderID:   &orderIDCopy,
		Actor:     "customer:" + customerID.String(),
		Detail: fmt.Sprintf("card %s redeemed: %s USD -> %s BTC at %s",
			card.ID, card.FaceValueUSD.StringFixed(2),
			btcAmount.StringFixed(domain.BTCScale), price.StringFixed(2)),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("card_service.Redeem: audit: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("card_service.Redeem: commit: %w", err)
	}
	return order, nil
}

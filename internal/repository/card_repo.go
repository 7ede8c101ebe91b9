package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/jmoiron/sqlx"
)

// CardRepository handles database operations for prepaid cards.
type CardRepository struct {
	db *sqlx.DB
}

// NewCardRepository creates a new CardRepository.
func NewCardRepository(db *sqlx.DB) *CardRepository {
	return &CardRepository{db: db}
}

// GetByCode fetches a card by its redemption code.
func (r *CardRepository) GetByCode(ctx context.Context, code string) (*domain.Card, error) {
	var c domain.Card
	err := r.db.GetContext(ctx, &c, `SELECT * FROM cards WHERE code = $1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCardNotFound
		}
		return nil, fmt.Errorf("card_repo.GetByCode: %w", err)
	}
	return &c, nil
}

// GetByID fetches a card by its primary key.
func (r *CardRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	var c domain.Card
	err := r.db.GetContext(ctx, &c, `SELECT * FROM cards WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCardNotFound
		}
		return nil, fmt.Errorf("card_repo.GetByID: %w", err)
	}
	return &c, nil
}

// Activate flips an inactive card to active at point of sale.  The status
// guard makes a second activation affect zero rows; the caller reports
// ErrCardAlreadyActive.
func (r *CardRepository) Activate(ctx context.Context, code string, merchantID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cards
		SET status       = 'active',
		    merchant_id  = $1,
		    activated_at = now()
		WHERE code = $2 AND status = 'inactive'`,
		merchantID, code)
	if err != nil {
		return fmt.Errorf("card_repo.Activate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCardAlreadyActive
	}
	return nil
}

// Redeem flips an active card to redeemed inside the redemption transaction.
// The status guard makes a concurrent double-redeem affect zero rows; the
// transaction rolls back and no second fulfillment order is created.
func (r *CardRepository) Redeem(ctx context.Context, tx *sqlx.Tx, cardID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET status      = 'redeemed',
		    redeemed_at = now()
		WHERE id = $1 AND status = 'active'`,
		cardID)
	if err != nil {
		return fmt.Errorf("card_repo.Redeem: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCardNotRedeemable
	}
	return nil
}

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

// CashoutRepository handles database operations for USD cashout orders.
type CashoutRepository struct {
	db *sqlx.DB
}

// NewCashoutRepository creates a new CashoutRepository.
func NewCashoutRepository(db *sqlx.DB) *CashoutRepository {
	return &CashoutRepository{db: db}
}

// Create inserts a new cashout order.
func (r *CashoutRepository) Create(ctx context.Context, c *domain.CashoutOrder) error {
	query := `
		INSERT INTO cashout_orders
			(id, customer_id, amount_usd, bank_account_id, status, review_note, requested_at)
		VALUES
			(:id, :customer_id, :amount_usd, :bank_account_id, :status, :review_note, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("cashout_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a cashout order by its primary key.
func (r *CashoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CashoutOrder, error) {
	var c domain.CashoutOrder
	err := r.db.GetContext(ctx, &c, `SELECT * FROM cashout_orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCashoutNotFound
		}
		return nil, fmt.Errorf("cashout_repo.GetByID: %w", err)
	}
	return &c, nil
}

// ListByStatus returns cashout orders filtered by status, oldest-first.
// status="" means all statuses.
func (r *CashoutRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*domain.CashoutOrder, error) {
	var orders []*domain.CashoutOrder
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &orders, `
			SELECT * FROM cashout_orders
			WHERE status = $1
			ORDER BY requested_at ASC
			LIMIT $2 OFFSET $3`,
			status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &orders, `
			SELECT * FROM cashout_orders
			ORDER BY requested_at ASC
			LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("cashout_repo.ListByStatus: %w", err)
	}
	return orders, nil
}

// Review records an approve/reject decision.  Only pending orders can be
// reviewed; zero rows affected means the order was already decided.
func (r *CashoutRepository) Review(ctx context.Context, id uuid.UUID, status domain.CashoutStatus, note, reviewer string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cashout_orders
		SET status      = $1,
		    review_note = $2,
		    reviewed_by = $3,
		    reviewed_at = now()
		WHERE id = $4 AND status = 'pending'`,
		string(status), note, reviewer, id)
	if err != nil {
		return fmt.Errorf("cashout_repo.Review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// MarkSettled records ACH settlement of an approved cashout.
func (r *CashoutRepository) MarkSettled(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cashout_orders
		SET status     = 'settled',
		    settled_at = now()
		WHERE id = $1 AND status = 'approved'`,
		id)
	if err != nil {
		return fmt.Errorf("cashout_repo.MarkSettled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

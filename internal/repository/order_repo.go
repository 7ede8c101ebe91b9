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

// OrderRepository handles database operations for fulfillment orders.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new fulfillment order inside an existing transaction.
func (r *OrderRepository) Create(ctx context.Context, tx *sqlx.Tx, o *domain.FulfillmentOrder) error {
	query := `
		INSERT INTO fulfillment_orders
			(id, order_type, customer_id, swap_order_id, card_id, usd_value, btc_amount,
			 destination_address, status, blocked_reason, created_at, updated_at)
		VALUES
			(:id, :order_type, :customer_id, :swap_order_id, :card_id, :usd_value, :btc_amount,
			 :destination_address, :status, :blocked_reason, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("order_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a fulfillment order by its primary key.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FulfillmentOrder, error) {
	var o domain.FulfillmentOrder
	err := r.db.GetContext(ctx, &o, `SELECT * FROM fulfillment_orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order_repo.GetByID: %w", err)
	}
	return &o, nil
}

// GetByIDForUpdate fetches an order with its row locked, inside a transaction.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.FulfillmentOrder, error) {
	var o domain.FulfillmentOrder
	err := tx.GetContext(ctx, &o, `SELECT * FROM fulfillment_orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order_repo.GetByIDForUpdate: %w", err)
	}
	return &o, nil
}

// UpdateStatus moves an order from one status to another inside a
// transaction.  The WHERE status = $from guard turns a concurrent or repeated
// advance into zero rows affected, surfaced as ErrInvalidTransition.
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, from, to domain.OrderStatus, blockedReason *string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE fulfillment_orders
		SET status         = $1,
		    blocked_reason = $2,
		    updated_at     = now()
		WHERE id = $3 AND status = $4`,
		string(to), blockedReason, orderID, string(from))
	if err != nil {
		return fmt.Errorf("order_repo.UpdateStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// SetBlockedReason records why a gate refused to advance an order without
// changing its status.
func (r *OrderRepository) SetBlockedReason(ctx context.Context, orderID uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE fulfillment_orders
		SET blocked_reason = $1,
		    updated_at     = now()
		WHERE id = $2`,
		reason, orderID)
	if err != nil {
		return fmt.Errorf("order_repo.SetBlockedReason: %w", err)
	}
	return nil
}

// MarkSent records the broadcast transaction hash and moves SENDING → SENT,
// inside a transaction.
func (r *OrderRepository) MarkSent(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, txHash string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE fulfillment_orders
		SET status         = 'sent',
		    tx_hash        = $1,
		    blocked_reason = NULL,
		    sent_at        = now(),
		    updated_at     = now()
		WHERE id = $2 AND status = 'sending'`,
		txHash, orderID)
	if err != nil {
		return fmt.Errorf("order_repo.MarkSent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// MarkCompleted moves SENT → COMPLETED once the outgoing transaction has
// enough confirmations.
func (r *OrderRepository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE fulfillment_orders
		SET status       = 'completed',
		    completed_at = now(),
		    updated_at   = now()
		WHERE id = $1 AND status = 'sent'`,
		orderID)
	if err != nil {
		return fmt.Errorf("order_repo.MarkCompleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// MarkFailed moves an in-flight order to FAILED with the failure reason,
// inside a transaction.  Legal only from SENDING or SENT.
func (r *OrderRepository) MarkFailed(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, reason string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE fulfillment_orders
		SET status         = 'failed',
		    blocked_reason = $1,
		    updated_at     = now()
		WHERE id = $2 AND status IN ('sending', 'sent')`,
		reason, orderID)
	if err != nil {
		return fmt.Errorf("order_repo.MarkFailed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// ListByStatus returns orders in a given status, oldest-first, so the
// processor serves the queue fairly.
func (r *OrderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.FulfillmentOrder, error) {
	var orders []*domain.FulfillmentOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM fulfillment_orders
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListByStatus: %w", err)
	}
	return orders, nil
}

// ListActive returns every non-terminal order, oldest-first, for the
// backoffice queue view.
func (r *OrderRepository) ListActive(ctx context.Context, limit, offset int) ([]*domain.FulfillmentOrder, error) {
	var orders []*domain.FulfillmentOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM fulfillment_orders
		WHERE status NOT IN ('completed', 'failed')
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListActive: %w", err)
	}
	return orders, nil
}

// TxHashExists reports whether a transaction hash is already recorded on any
// fulfillment order.  Part of the anti-replay check.
func (r *OrderRepository) TxHashExists(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM fulfillment_orders WHERE tx_hash = $1)`,
		txHash)
	if err != nil {
		return false, fmt.Errorf("order_repo.TxHashExists: %w", err)
	}
	return exists, nil
}

// PendingBTCTotal sums the BTC committed to non-terminal orders, for the
// low-inventory watch.
func (r *OrderRepository) PendingBTCTotal(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(btc_amount), 0)
		FROM fulfillment_orders
		WHERE status NOT IN ('completed', 'failed')`)
	if err != nil {
		return 0, fmt.Errorf("order_repo.PendingBTCTotal: %w", err)
	}
	return total, nil
}
